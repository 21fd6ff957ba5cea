package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/middleware"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/model"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/service"
)

// AppointmentHandler exposes the scheduler.  Every call goes through the
// session-checked boundary with the bearer token; acting ids omitted from
// the request default to the session's user.
type AppointmentHandler struct {
    Sched *service.AuthorizedScheduler
}

func NewAppointmentHandler(s *service.AuthorizedScheduler) *AppointmentHandler {
    return &AppointmentHandler{Sched: s}
}

type createReq struct {
    DoctorID    string    `json:"doctor_id"`
    PatientID   string    `json:"patient_id"`
    ScheduledAt time.Time `json:"scheduled_at"` // RFC 3339
    PatientNote string    `json:"patient_note"`
}

type actingReq struct {
    ActingUserID string `json:"acting_user_id"`
}

type noteReq struct {
    ActingUserID string  `json:"acting_user_id"`
    Note         *string `json:"note"`
}

// acting returns explicit if set, else the session user.
func acting(c echo.Context, explicit string) string {
    if explicit != "" {
        return explicit
    }
    return middleware.UserID(c)
}

// Create: POST /v1/appointments
func (h *AppointmentHandler) Create(c echo.Context) error {
    var req createReq
    if err := bindOrFail(c, &req); err != nil {
        return respondError(c, err)
    }
    if req.DoctorID == "" || req.ScheduledAt.IsZero() {
        return respondError(c, apperr.NewValidation("", "doctor_id and scheduled_at are required"))
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    a, err := h.Sched.Create(ctx, middleware.SessionToken(c), req.DoctorID, acting(c, req.PatientID), req.ScheduledAt, req.PatientNote)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusCreated, a)
}

// Get: GET /v1/appointments/:id
func (h *AppointmentHandler) Get(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    a, err := h.Sched.Get(ctx, middleware.SessionToken(c), c.Param("id"), acting(c, c.QueryParam("acting_user_id")))
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, a)
}

// transitionOp is the shape shared by Approve, Reject and Cancel.
type transitionOp func(ctx context.Context, token, appointmentID, actingID string) (model.Appointment, error)

// Approve: POST /v1/appointments/:id/approve
func (h *AppointmentHandler) Approve(c echo.Context) error {
    return h.transition(c, h.Sched.Approve)
}

// Reject: POST /v1/appointments/:id/reject
func (h *AppointmentHandler) Reject(c echo.Context) error {
    return h.transition(c, h.Sched.Reject)
}

// Cancel: POST /v1/appointments/:id/cancel
func (h *AppointmentHandler) Cancel(c echo.Context) error {
    return h.transition(c, h.Sched.Cancel)
}

func (h *AppointmentHandler) transition(c echo.Context, op transitionOp) error {
    var req actingReq
    // the body is optional for transitions
    if c.Request().ContentLength > 0 {
        if err := bindOrFail(c, &req); err != nil {
            return respondError(c, err)
        }
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    a, err := op(ctx, middleware.SessionToken(c), c.Param("id"), acting(c, req.ActingUserID))
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, a)
}

// SetNote: PUT /v1/appointments/:id/note
func (h *AppointmentHandler) SetNote(c echo.Context) error {
    var req noteReq
    if err := bindOrFail(c, &req); err != nil {
        return respondError(c, err)
    }
    if req.Note == nil {
        return respondError(c, apperr.NewValidation("", "note is required"))
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    a, err := h.Sched.SetDoctorNote(ctx, middleware.SessionToken(c), c.Param("id"), acting(c, req.ActingUserID), *req.Note)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, a)
}

// ListForPatient: GET /v1/patients/:id/appointments
func (h *AppointmentHandler) ListForPatient(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    list, err := h.Sched.ListForPatient(ctx, middleware.SessionToken(c), c.Param("id"))
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, list)
}

// ListForDoctor: GET /v1/doctors/:id/appointments
func (h *AppointmentHandler) ListForDoctor(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    list, err := h.Sched.ListForDoctor(ctx, middleware.SessionToken(c), c.Param("id"))
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, list)
}
