package controllers

import (
	"errors"
	"net/http"

	"github.com/osvaldoandrade/gradeq/internal/repository"
	"github.com/osvaldoandrade/gradeq/internal/services"

	"github.com/gin-gonic/gin"
)

type getResultController struct{ svc services.RunService }

func NewGetResultController(s services.RunService) *getResultController {
	return &getResultController{svc: s}
}

func (h *getResultController) Handle(c *gin.Context) {
	runID := c.Param("id")
	submissionID := c.Param("submission")
	res, err := h.svc.Result(c.Request.Context(), runID, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}
