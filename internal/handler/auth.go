package handler

import (
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/middleware"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/model"
    "github.com/iliyamo/clinic-appointment-scheduler/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Dir      *service.Directory
    Sessions *service.SessionService
}

func NewAuthHandler(dir *service.Directory, sessions *service.SessionService) *AuthHandler {
    return &AuthHandler{Dir: dir, Sessions: sessions}
}

// ----- DTOs -----

type registerReq struct {
    Role      string `json:"role"` // PATIENT | DOCTOR
    Email     string `json:"email"`
    Password  string `json:"password"`
    Name      string `json:"name"`
    Surname   string `json:"surname"`
    BirthDate string `json:"birth_date"` // YYYY-MM-DD
    PhoneNo   string `json:"phone_no"`
    Specialty string `json:"specialty"` // doctors only
}

type loginReq struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}

type sessionResp struct {
    Token     string     `json:"token"`
    UserID    string     `json:"user_id"`
    Role      model.Role `json:"role"`
    ExpiresAt time.Time  `json:"expires_at"`
}

type userResp struct {
    ID        string          `json:"id"`
    Email     string          `json:"email"`
    Role      model.Role      `json:"role"`
    Specialty model.Specialty `json:"specialty,omitempty"`
    Name      string          `json:"name"`
    Surname   string          `json:"surname"`
    BirthDate string          `json:"birth_date"`
    Age       int             `json:"age"`
    PhoneNo   string          `json:"phone_no,omitempty"`
    Available *bool           `json:"available,omitempty"`
}

func toUserResp(u model.User, now time.Time) userResp {
    r := userResp{
        ID: u.ID, Email: u.Email, Role: u.Role, Specialty: u.Specialty,
        Name: u.Name, Surname: u.Surname, BirthDate: u.BirthDate.Format("2006-01-02"),
        Age: u.Age(now), PhoneNo: u.PhoneNo,
    }
    if u.Role == model.RoleDoctor {
        avail := u.Available
        r.Available = &avail
    }
    return r
}

func toSessionResp(s model.Session) sessionResp {
    return sessionResp{Token: s.Token, UserID: s.UserID, Role: s.Role, ExpiresAt: s.ExpiresAt}
}

// Register creates a patient or doctor and opens a session for it.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := bindOrFail(c, &req); err != nil {
        return respondError(c, err)
    }
    birth, err := time.Parse("2006-01-02", strings.TrimSpace(req.BirthDate))
    if err != nil {
        return respondError(c, apperr.NewValidation("", "birth_date must be YYYY-MM-DD"))
    }
    reg := service.Registration{
        Email: req.Email, Password: req.Password, Name: req.Name, Surname: req.Surname,
        BirthDate: birth, PhoneNo: req.PhoneNo, Specialty: model.Specialty(strings.TrimSpace(req.Specialty)),
    }

    ctx, cancel := reqCtx(c)
    defer cancel()

    var u model.User
    switch model.Role(strings.ToUpper(strings.TrimSpace(req.Role))) {
    case model.RoleDoctor:
        u, err = h.Dir.RegisterDoctor(ctx, reg)
    case model.RolePatient, "":
        u, err = h.Dir.RegisterPatient(ctx, reg)
    default:
        err = apperr.NewValidation("", "role must be PATIENT or DOCTOR")
    }
    if err != nil {
        return respondError(c, err)
    }

    sess, err := h.Sessions.Login(ctx, req.Email, req.Password)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "user":    toUserResp(u, time.Now()),
        "session": toSessionResp(sess),
    })
}

// Login verifies credentials and returns a new session token.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := bindOrFail(c, &req); err != nil {
        return respondError(c, err)
    }
    if strings.TrimSpace(req.Email) == "" || req.Password == "" {
        return respondError(c, apperr.NewValidation("", "email and password are required"))
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    sess, err := h.Sessions.Login(ctx, req.Email, req.Password)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, toSessionResp(sess))
}

// Validate reports the identity behind the bearer token.
func (h *AuthHandler) Validate(c echo.Context) error {
    tok, ok := middleware.BearerToken(c)
    if !ok {
        return respondError(c, apperr.NewSessionExpired("missing bearer token"))
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    id, err := h.Sessions.Validate(ctx, tok)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, id)
}

// Refresh slides the bearer token's expiry forward.  The token is unchanged.
func (h *AuthHandler) Refresh(c echo.Context) error {
    tok, ok := middleware.BearerToken(c)
    if !ok {
        return respondError(c, apperr.NewSessionExpired("missing bearer token"))
    }
    ctx, cancel := reqCtx(c)
    defer cancel()

    sess, err := h.Sessions.Refresh(ctx, tok)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, toSessionResp(sess))
}

// Logout revokes the bearer token.  Always 204 unless storage fails.
func (h *AuthHandler) Logout(c echo.Context) error {
    tok, _ := middleware.BearerToken(c)
    ctx, cancel := reqCtx(c)
    defer cancel()

    if err := h.Sessions.Logout(ctx, tok); err != nil {
        return respondError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// LogoutAll revokes every session of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    if err := h.Sessions.LogoutAll(ctx, middleware.SessionToken(c)); err != nil {
        return respondError(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c echo.Context) error {
    ctx, cancel := reqCtx(c)
    defer cancel()

    u, err := h.Dir.Profile(ctx, middleware.UserID(c))
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, toUserResp(u, time.Now()))
}
