package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/handler"
	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/config"
	"github.com/noah-isme/tutorhub-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutorhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutorhub-api/pkg/middleware/requestid"
)

type routerDeps struct {
	tokens        middleware.TokenValidator
	metrics       middleware.RequestObserver
	audit         middleware.AuditRecorder
	availability  *handler.AvailabilityHandler
	bookings      *handler.BookingHandler
	courses       *handler.CourseHandler
	notifications *handler.NotificationHandler
	ops           *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", deps.ops.Health)
	r.GET("/ready", deps.ops.Ready)
	r.GET("/metrics", deps.ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auditLog := logr.Named("audit")
	api := r.Group(cfg.APIPrefix)

	api.GET("/courses", deps.courses.List)
	api.GET("/courses/:id", deps.courses.Get)
	api.GET("/teachers/:id/availability", deps.availability.Resolve)
	api.GET("/teachers/:id/slots", deps.availability.Slots)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.tokens))

	courses := secured.Group("/courses")
	courses.Use(middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin))
	courses.Use(middleware.Audit(deps.audit, auditLog, models.AuditActionCourseChange, "course"))
	courses.POST("", deps.courses.Create)
	courses.PATCH("/:id", deps.courses.Update)

	availability := secured.Group("/availability")
	availability.Use(middleware.RequireRoles(models.RoleTeacher))
	availability.GET("/weekly", deps.availability.ListWeeklyRules)
	availability.GET("/overrides", deps.availability.ListOverrides)
	availabilityWrites := availability.Group("")
	availabilityWrites.Use(middleware.Audit(deps.audit, auditLog, models.AuditActionAvailabilityChange, "availability"))
	availabilityWrites.POST("/weekly", deps.availability.CreateWeeklyRule)
	availabilityWrites.DELETE("/weekly/:id", deps.availability.DeleteWeeklyRule)
	availabilityWrites.PUT("/overrides", deps.availability.UpsertOverride)
	availabilityWrites.DELETE("/overrides/:date", deps.availability.DeleteOverride)

	bookings := secured.Group("/bookings")
	bookings.GET("", deps.bookings.List)
	bookings.GET("/:id", deps.bookings.Get)
	bookings.POST("", middleware.RequireRoles(models.RoleStudent), middleware.Audit(deps.audit, auditLog, models.AuditActionBookingCreate, "booking"), deps.bookings.Create)
	bookings.PATCH("/:id/status", middleware.Audit(deps.audit, auditLog, models.AuditActionBookingStatus, "booking"), deps.bookings.UpdateStatus)

	notifications := secured.Group("/notifications")
	notifications.GET("", deps.notifications.List)
	notifications.POST("/:id/read", deps.notifications.MarkRead)

	return r
}
