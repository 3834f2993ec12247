package routes

import (
	"github.com/gin-gonic/gin"

	"service_hours_backend/domain/registration"
	"service_hours_backend/handlers"
	"service_hours_backend/middleware"
)

// SetupRoutes configures all the routes for the application
func SetupRoutes(r *gin.Engine, db handlers.Pinger, svc *registration.Service, jwtSecret []byte) {
	healthHandler := handlers.NewHealthHandler(db)
	registrationHandler := handlers.NewRegistrationHandler(svc)
	attendanceHandler := handlers.NewAttendanceHandler(svc)
	feedbackHandler := handlers.NewFeedbackHandler(svc)

	// Public routes
	r.GET("/health", healthHandler.HealthCheck)

	// Protected routes
	protected := r.Group("/")
	protected.Use(middleware.AuthMiddleware(jwtSecret))
	{
		// Registration routes
		protected.POST("/activities/:id/registrations", registrationHandler.Register)
		protected.POST("/activities/:id/registrations/cancel", registrationHandler.Cancel)
		protected.GET("/me/registrations", registrationHandler.ListMine)

		// Attendance routes
		protected.POST("/activities/:id/attendance", attendanceHandler.RecordAttendance)

		// Feedback routes
		protected.GET("/activities/:id/feedback", feedbackHandler.GetFeedback)
		protected.POST("/activities/:id/feedback", feedbackHandler.SubmitFeedback)

		// Review routes
		protected.POST("/registrations/:id/decision", middleware.RequireRole(registration.RoleAdmin), feedbackHandler.Decide)
	}
}
