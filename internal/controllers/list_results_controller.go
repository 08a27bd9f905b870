package controllers

import (
	"net/http"

	"github.com/osvaldoandrade/gradeq/internal/services"

	"github.com/gin-gonic/gin"
)

type listResultsController struct{ svc services.RunService }

func NewListResultsController(s services.RunService) *listResultsController {
	return &listResultsController{svc: s}
}

func (h *listResultsController) Handle(c *gin.Context) {
	runID := c.Param("id")
	results, err := h.svc.Results(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": runID, "count": len(results), "results": results})
}
