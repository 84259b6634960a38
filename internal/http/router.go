package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/leadflow/backend/internal/config"
	"github.com/leadflow/backend/internal/http/handlers"
	"github.com/leadflow/backend/internal/http/middleware"
	"github.com/leadflow/backend/internal/metrics"
	"github.com/leadflow/backend/internal/service"

	_ "github.com/leadflow/backend/docs"
)

type Deps struct {
	Store      handlers.Catalog
	Service    *service.AssignmentService
	Aggregator *service.AnalyticsAggregator
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

func Router(cfg config.Config, deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Deadline(cfg.RequestTimeout))
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.AdminKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if origins := cfg.CORSOrigins(); len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:      deps.Store,
		Service:    deps.Service,
		Aggregator: deps.Aggregator,
		Validator:  validator.New(),
		Logger:     deps.Logger,
	}

	r.GET("/healthz", h.Healthz)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		api.GET("/skills", h.SkillsList)
		api.GET("/consultants", h.ConsultantsList)
		api.GET("/assignments/:id", h.AssignmentDetails)
		api.GET("/assignments/:id/history", h.AssignmentHistory)
		api.GET("/assignments/:id/events", h.AssignmentEvents)
		api.GET("/analytics/daily", h.AnalyticsDaily)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	if cfg.RateLimitRPM > 0 {
		admin.Use(middleware.NewRateLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst).Middleware())
	}
	{
		admin.POST("/assignments", h.Assign)
		admin.POST("/assignments/:id/reassign", h.Reassign)
		admin.POST("/debug/matches", h.DebugMatches)
		admin.POST("/analytics/aggregate", h.AnalyticsAggregate)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
