package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/middleware"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/model"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/service"
)

// DirectoryHandler serves the specialty and doctor listings.
type DirectoryHandler struct {
    Dir *service.Directory
}

func NewDirectoryHandler(dir *service.Directory) *DirectoryHandler {
    return &DirectoryHandler{Dir: dir}
}

// Specialties: GET /v1/specialties
func (h *DirectoryHandler) Specialties(c echo.Context) error {
    return c.JSON(http.StatusOK, h.Dir.Specialties())
}

// Doctors: GET /v1/doctors?specialty=Cardiology
func (h *DirectoryHandler) Doctors(c echo.Context) error {
    sp := c.QueryParam("specialty")
    if sp == "" {
        return respondError(c, apperr.NewValidation("", "specialty query parameter is required"))
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    docs, err := h.Dir.DoctorsBySpecialty(ctx, model.Specialty(sp))
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, docs)
}

type availabilityReq struct {
    Available *bool `json:"available"`
}

// SetAvailability: PUT /v1/doctors/me/availability {"available": false}
func (h *DirectoryHandler) SetAvailability(c echo.Context) error {
    var req availabilityReq
    if err := bindOrFail(c, &req); err != nil {
        return respondError(c, err)
    }
    if req.Available == nil {
        return respondError(c, apperr.NewValidation("", "available is required"))
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    if err := h.Dir.SetAvailability(ctx, middleware.UserID(c), *req.Available); err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"available": *req.Available})
}
