package controllers

import (
	"errors"
	"net/http"

	"github.com/osvaldoandrade/gradeq/internal/repository"
	"github.com/osvaldoandrade/gradeq/internal/services"

	"github.com/gin-gonic/gin"
)

type runProgressController struct{ svc services.RunService }

func NewRunProgressController(s services.RunService) *runProgressController {
	return &runProgressController{svc: s}
}

func (h *runProgressController) Handle(c *gin.Context) {
	runID := c.Param("id")
	state, err := h.svc.Progress(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}
