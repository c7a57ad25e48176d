package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/klarolink/notifications/internal/auth"
	"github.com/klarolink/notifications/internal/middleware"
)

// Router holds all handlers and creates the chi router
type Router struct {
	notificationHandler *NotificationHandler
	healthHandler       *HealthHandler
	// jwtManager guards the admin routes. Nil leaves them open.
	jwtManager     *auth.JWTManager
	allowedOrigins []string
	logger         *zap.Logger
}

// NewRouter creates a new router
func NewRouter(
	notificationHandler *NotificationHandler,
	healthHandler *HealthHandler,
	jwtManager *auth.JWTManager,
	allowedOrigins []string,
	logger *zap.Logger,
) *Router {
	return &Router{
		notificationHandler: notificationHandler,
		healthHandler:       healthHandler,
		jwtManager:          jwtManager,
		allowedOrigins:      allowedOrigins,
		logger:              logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.CORSMiddleware(rt.allowedOrigins))
	r.Use(chimiddleware.Compress(5))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", rt.healthHandler.Health)
		r.Get("/ready", rt.healthHandler.Ready)
		r.Get("/live", rt.healthHandler.Live)
	})

	r.Route("/api/admin/notifications", func(r chi.Router) {
		if rt.jwtManager != nil {
			r.Use(middleware.AdminAuth(rt.jwtManager))
		}

		r.Get("/", rt.notificationHandler.ListNotifications)
		r.Post("/", rt.notificationHandler.CreateNotification)
		r.Post("/bulk", rt.notificationHandler.BulkUpdate)
		r.Get("/{id}", rt.notificationHandler.GetNotification)
		r.Patch("/{id}", rt.notificationHandler.UpdateNotification)
		r.Delete("/{id}", rt.notificationHandler.DeleteNotification)
	})

	return r
}
