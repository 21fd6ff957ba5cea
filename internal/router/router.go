package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/handler"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/middleware"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
)

// RegisterRoutes registers the unauthenticated probes.  deps are pinged by
// /readyz; /healthz only reports that the process is serving.
func RegisterRoutes(e *echo.Echo, deps map[string]handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(deps))
}

// RegisterAuth registers session endpoints.  Register, login, validate,
// refresh and logout carry their own credentials and live under /v1/auth;
// /v1/me and logout-all need a live session.  loginLimit guards only the
// login route.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, sessions middleware.SessionValidator, loginLimit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login, loginLimit)
	g.POST("/validate", a.Validate)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.SessionAuth(sessions))
	auth.GET("/me", a.Me)
	auth.POST("/auth/logout-all", a.LogoutAll)
}

// RegisterDirectory registers the specialty and doctor listings.  Listings
// are public and go through the response cache; availability changes are
// limited to doctors and purge that cache.
func RegisterDirectory(e *echo.Echo, d *handler.DirectoryHandler, sessions middleware.SessionValidator, cache, purge echo.MiddlewareFunc) {
	e.GET("/v1/specialties", d.Specialties)
	e.GET("/v1/doctors", d.Doctors, cache)

	e.PUT("/v1/doctors/me/availability", d.SetAvailability,
		middleware.SessionAuth(sessions), middleware.RequireRole(model.RoleDoctor), purge)
}

// RegisterAppointments registers the appointment endpoints.  All of them
// need a live session; role and ownership checks happen in the scheduler so
// that a missing appointment reports 404 before a 403.
func RegisterAppointments(e *echo.Echo, h *handler.AppointmentHandler, sessions middleware.SessionValidator) {
	g := e.Group("/v1", middleware.SessionAuth(sessions))

	g.POST("/appointments", h.Create)
	g.GET("/appointments/:id", h.Get)
	g.POST("/appointments/:id/approve", h.Approve)
	g.POST("/appointments/:id/reject", h.Reject)
	g.POST("/appointments/:id/cancel", h.Cancel)
	g.PUT("/appointments/:id/note", h.SetNote)

	g.GET("/patients/:id/appointments", h.ListForPatient)
	g.GET("/doctors/:id/appointments", h.ListForDoctor)
}
