package http

import (
	"net/http"

	"go-medical-reservation/internal/delivery/http/handler"
	"go-medical-reservation/internal/delivery/http/middleware"

	"github.com/gorilla/mux"
)

type Router struct {
	router                  *mux.Router
	authHandler             *handler.AuthHandler
	doctorHandler           *handler.DoctorHandler
	doctorScheduleHandler   *handler.DoctorScheduleHandler
	availabilityHandler     *handler.AvailabilityHandler
	appointmentHandler      *handler.AppointmentHandler
	adminAppointmentHandler *handler.AdminAppointmentHandler
	auditLogHandler         *handler.AuditLogHandler
	authMiddleware          *middleware.AuthMiddleware
	corsMiddleware          *middleware.CORSMiddleware
}

func NewRouter(
	authHandler *handler.AuthHandler,
	doctorHandler *handler.DoctorHandler,
	doctorScheduleHandler *handler.DoctorScheduleHandler,
	availabilityHandler *handler.AvailabilityHandler,
	appointmentHandler *handler.AppointmentHandler,
	adminAppointmentHandler *handler.AdminAppointmentHandler,
	auditLogHandler *handler.AuditLogHandler,
	authMiddleware *middleware.AuthMiddleware,
	corsMiddleware *middleware.CORSMiddleware,
) *Router {
	return &Router{
		router:                  mux.NewRouter(),
		authHandler:             authHandler,
		doctorHandler:           doctorHandler,
		doctorScheduleHandler:   doctorScheduleHandler,
		availabilityHandler:     availabilityHandler,
		appointmentHandler:      appointmentHandler,
		adminAppointmentHandler: adminAppointmentHandler,
		auditLogHandler:         auditLogHandler,
		authMiddleware:          authMiddleware,
		corsMiddleware:          corsMiddleware,
	}
}

func (r *Router) Setup() http.Handler {
	// API versioning
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)

	// Auth routes (public)
	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", r.authHandler.RegisterPatient).Methods(http.MethodPost)
	auth.HandleFunc("/login", r.authHandler.Login).Methods(http.MethodPost)
	auth.HandleFunc("/refresh-token", r.authHandler.RefreshToken).Methods(http.MethodPost)

	// Auth routes (protected)
	authProtected := api.PathPrefix("/auth").Subrouter()
	authProtected.Use(r.authMiddleware.Authenticate)
	authProtected.HandleFunc("/logout", r.authHandler.Logout).Methods(http.MethodPost)
	authProtected.HandleFunc("/me", r.authHandler.GetCurrentUser).Methods(http.MethodGet)

	// Doctor directory (public, caller identified when a token is sent)
	doctors := api.PathPrefix("/doctors").Subrouter()
	doctors.Use(r.authMiddleware.Optional)
	doctors.HandleFunc("", r.doctorHandler.GetAllDoctors).Methods(http.MethodGet)
	doctors.HandleFunc("/{id}", r.doctorHandler.GetDoctor).Methods(http.MethodGet)
	doctors.HandleFunc("/{id}/availability", r.availabilityHandler.GetAvailability).Methods(http.MethodGet)

	// Appointment routes (protected)
	appointments := api.PathPrefix("/appointments").Subrouter()
	appointments.Use(r.authMiddleware.Authenticate)
	appointments.HandleFunc("/me", r.appointmentHandler.GetMyBookings).Methods(http.MethodGet)
	appointments.HandleFunc("/{id}", r.appointmentHandler.GetBooking).Methods(http.MethodGet)
	appointments.HandleFunc("/{id}/cancel", r.appointmentHandler.CancelBooking).Methods(http.MethodPost)

	// Hold and confirm flow (patients only)
	patient := api.PathPrefix("/appointments").Subrouter()
	patient.Use(r.authMiddleware.Authenticate)
	patient.Use(middleware.RequirePatient)
	patient.HandleFunc("/block", r.appointmentHandler.BlockSlot).Methods(http.MethodPost)
	patient.HandleFunc("/holds/{id}", r.appointmentHandler.ReleaseHold).Methods(http.MethodDelete)
	patient.HandleFunc("", r.appointmentHandler.ConfirmBooking).Methods(http.MethodPost)

	// Schedules of one doctor (admins and doctors)
	staff := api.PathPrefix("/schedules").Subrouter()
	staff.Use(r.authMiddleware.Authenticate)
	staff.Use(middleware.RequireAdminOrDoctor)
	staff.HandleFunc("/doctor/{doctorId}", r.doctorScheduleHandler.GetSchedulesByDoctor).Methods(http.MethodGet)

	// Admin routes (protected - admin only)
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(r.authMiddleware.Authenticate)
	admin.Use(middleware.RequireAdmin)

	// Doctor management (admin)
	admin.HandleFunc("/doctors", r.doctorHandler.CreateDoctor).Methods(http.MethodPost)

	// Schedule management (admin)
	admin.HandleFunc("/schedules", r.doctorScheduleHandler.CreateSchedule).Methods(http.MethodPost)
	admin.HandleFunc("/schedules", r.doctorScheduleHandler.GetAllSchedules).Methods(http.MethodGet)
	admin.HandleFunc("/schedules/{id}", r.doctorScheduleHandler.GetSchedule).Methods(http.MethodGet)
	admin.HandleFunc("/schedules/{id}", r.doctorScheduleHandler.UpdateSchedule).Methods(http.MethodPut)
	admin.HandleFunc("/schedules/{id}", r.doctorScheduleHandler.DeleteSchedule).Methods(http.MethodDelete)

	// Appointment management (admin)
	admin.HandleFunc("/appointments", r.adminAppointmentHandler.GetAllBookings).Methods(http.MethodGet)
	admin.HandleFunc("/appointments", r.adminAppointmentHandler.CreateBooking).Methods(http.MethodPost)
	admin.HandleFunc("/appointments/{id}", r.adminAppointmentHandler.GetBooking).Methods(http.MethodGet)
	admin.HandleFunc("/appointments/{id}/status", r.adminAppointmentHandler.UpdateStatus).Methods(http.MethodPut)

	// Audit trail (admin)
	admin.HandleFunc("/audit-logs", r.auditLogHandler.GetAllAuditLogs).Methods(http.MethodGet)
	admin.HandleFunc("/audit-logs/{id}", r.auditLogHandler.GetAuditLog).Methods(http.MethodGet)

	// CORS wraps the whole router so preflight requests never hit a 405
	return r.corsMiddleware.Handle(r.router)
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}
