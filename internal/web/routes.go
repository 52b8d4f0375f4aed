package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	configHandler := handlers.NewConfigHandler(s.config)
	enrollmentsHandler := handlers.NewEnrollmentsHandler(s.services.Enrollment)
	attendanceHandler := handlers.NewAttendanceHandler(s.services.Attendance)

	// Health check and metrics are not rate limited
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Method("GET", "/metrics", s.services.Metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.config.Web.RateLimit, s.config.Web.RateBurst))

		// Config
		r.Get("/config", configHandler.Get)

		// Enrollments (identity ids may contain slashes)
		r.Get("/enrollments", enrollmentsHandler.List)
		r.Post("/enrollments", enrollmentsHandler.Create)
		r.Get("/enrollments/*", enrollmentsHandler.Get)

		// Attendance
		r.Post("/attendance/mark", attendanceHandler.Mark)
		r.Get("/attendance", attendanceHandler.List)
		r.Get("/attendance/summary", attendanceHandler.Summary)
		r.Get("/attendance/export.csv", attendanceHandler.Export)
	})
}
