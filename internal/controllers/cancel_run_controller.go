package controllers

import (
	"errors"
	"net/http"

	"github.com/osvaldoandrade/gradeq/internal/services"

	"github.com/gin-gonic/gin"
)

type cancelRunController struct{ svc services.RunService }

func NewCancelRunController(s services.RunService) *cancelRunController {
	return &cancelRunController{svc: s}
}

func (h *cancelRunController) Handle(c *gin.Context) {
	runID := c.Param("id")
	if err := h.svc.Cancel(c.Request.Context(), runID); err != nil {
		if errors.Is(err, services.ErrRunNotActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": runID, "status": "cancelling"})
}
