package controllers

import (
	"net/http"

	"github.com/osvaldoandrade/gradeq/internal/services"

	"github.com/gin-gonic/gin"
)

type runSummaryController struct{ svc services.RunService }

func NewRunSummaryController(s services.RunService) *runSummaryController {
	return &runSummaryController{svc: s}
}

func (h *runSummaryController) Handle(c *gin.Context) {
	runID := c.Param("id")
	sum, err := h.svc.Summary(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}
