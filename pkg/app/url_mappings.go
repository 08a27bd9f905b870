package app

import (
	"net/http"

	"github.com/osvaldoandrade/gradeq/internal/controllers"
	"github.com/osvaldoandrade/gradeq/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	app.Engine.GET("/healthz", func(c *gin.Context) {
		if err := app.Store.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := app.Engine.Group("/v1/gradeq")
	authed := v1.Group("", middleware.AuthMiddleware(app.Config))
	{
		runs := authed.Group("/runs")
		runs.GET("/:id/results", controllers.NewListResultsController(app.Runs).Handle)
		runs.GET("/:id/results/:submission", controllers.NewGetResultController(app.Runs).Handle)
		runs.GET("/:id/summary", controllers.NewRunSummaryController(app.Runs).Handle)
		runs.GET("/:id/progress", controllers.NewRunProgressController(app.Runs).Handle)

		admin := runs.Group("", middleware.RequireAdmin())
		admin.POST("/:id/cancel", controllers.NewCancelRunController(app.Runs).Handle)
	}
}
