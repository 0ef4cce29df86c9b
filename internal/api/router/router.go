package router

import (
	"github.com/gin-gonic/gin"
	"github.com/hpetrik/styletransfer-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	jobHandler := handler.NewJobHandler(deps)

	// Health check endpoints
	r.GET("/", jobHandler.HealthCheck)
	r.GET("/health", jobHandler.HealthCheck)

	// Job orchestration endpoints
	r.POST("/process", jobHandler.ProcessImage)
	r.GET("/status/:job_id", jobHandler.GetJobStatus)
	r.GET("/jobs", jobHandler.ListJobs)

	// Durable result store endpoints
	v1 := r.Group("/api/v1")
	{
		results := v1.Group("/results")
		{
			results.POST("", jobHandler.SaveResults)
			results.GET("", jobHandler.ListResults)
		}
	}

	return r
}
