package router

import (
	"schemabench/internal/handler"
	"schemabench/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRouter(svcCtx *service.ServiceContext) *gin.Engine {
	r := gin.Default()

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	testHandler := handler.NewTestHandler(svcCtx)
	modelHandler := handler.NewModelHandler(svcCtx.Models)

	api := r.Group("/api")
	{
		tests := api.Group("/tests")
		{
			tests.POST("/run", testHandler.StartRun)
			tests.GET("/progress/:id", testHandler.GetProgress)
			tests.POST("/cancel/:id", testHandler.CancelRun)
			tests.GET("/runs", testHandler.ListRuns)
			tests.GET("/runs/:id", testHandler.GetRun)
			tests.DELETE("/runs/:id", testHandler.DeleteRun)
		}

		api.GET("/models", modelHandler.ListModels)
		api.GET("/scenarios", modelHandler.ListScenarios)
	}

	return r
}
