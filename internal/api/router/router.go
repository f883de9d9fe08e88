package router

import (
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/job-collector/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	r.GET("/health", healthHandler.Health)

	// Collector routes
	submit := r.Group("", BodyLimitMiddleware(deps.MaxBodyBytes))
	{
		submit.POST("/analyze", jobHandler.Analyze)
		submit.POST("/analyze_images", jobHandler.AnalyzeImages)
	}
	r.GET("/status/:job_id", jobHandler.GetJobStatus)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a document
			jobs.POST("", BodyLimitMiddleware(deps.MaxBodyBytes), jobHandler.Analyze)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job status and result
			jobs.GET("/:job_id", jobHandler.GetJobStatus)
		}
	}

	return r
}
