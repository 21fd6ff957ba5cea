package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/logger"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/utils"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// Registration is the input for creating a patient or doctor.
type Registration struct {
	Email     string
	Password  string
	Name      string
	Surname   string
	BirthDate time.Time
	PhoneNo   string
	Specialty model.Specialty // doctors only
}

// Directory answers identity questions about users.  It is the only place
// that handles password material.
type Directory struct {
	users     UserStore
	cost      int
	dummyHash string
	now       func() time.Time
	log       *logger.Logger
}

// NewDirectory returns a Directory hashing passwords at bcrypt cost.
func NewDirectory(users UserStore, cost int, log *logger.Logger) *Directory {
	d := &Directory{users: users, cost: cost, now: time.Now, log: log}
	// compared against when the email is unknown so both paths pay one bcrypt
	d.dummyHash, _ = utils.HashPassword("not-a-real-password", cost)
	return d
}

// WithClock overrides the time source.  Tests use it.
func (d *Directory) WithClock(now func() time.Time) *Directory {
	d.now = now
	return d
}

// ResolveUser returns the scheduler's view of a user.
func (d *Directory) ResolveUser(ctx context.Context, id string) (model.UserRef, error) {
	if id == "" {
		return model.UserRef{}, apperr.NewNotFound("user not found")
	}
	u, err := d.users.GetByID(ctx, id)
	if err != nil {
		return model.UserRef{}, err
	}
	return u.Ref(), nil
}

// Profile returns the full user record without its password hash.
func (d *Directory) Profile(ctx context.Context, id string) (model.User, error) {
	u, err := d.users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	u.PasswordHash = ""
	return u, nil
}

// VerifyCredentials checks an email/password pair and returns the user id.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (d *Directory) VerifyCredentials(ctx context.Context, email, password string) (string, error) {
	u, err := d.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, apperr.NotFound):
		utils.VerifyPassword(d.dummyHash, password)
		return "", apperr.NewAuthentication("invalid email or password")
	case err != nil:
		return "", err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return "", apperr.NewAuthentication("invalid email or password")
	}
	return u.ID, nil
}

// Specialties returns the fixed specialty list.
func (d *Directory) Specialties() []model.Specialty { return model.Specialties() }

// DoctorsBySpecialty lists the doctors of one specialty.
func (d *Directory) DoctorsBySpecialty(ctx context.Context, s model.Specialty) ([]model.DoctorSummary, error) {
	if !s.Valid() {
		return nil, apperr.NewValidation("", "unknown specialty: "+string(s))
	}
	docs, err := d.users.ListDoctorsBySpecialty(ctx, s)
	if err != nil {
		return nil, err
	}
	out := make([]model.DoctorSummary, 0, len(docs))
	for _, u := range docs {
		out = append(out, model.DoctorSummary{ID: u.ID, Name: u.FullName(), Specialty: u.Specialty, Availability: u.Available})
	}
	return out, nil
}

// RegisterPatient creates a patient account.
func (d *Directory) RegisterPatient(ctx context.Context, r Registration) (model.User, error) {
	if r.Specialty != "" {
		return model.User{}, apperr.NewValidation("", "patients have no specialty")
	}
	return d.register(ctx, model.RolePatient, r)
}

// RegisterDoctor creates a doctor account; the specialty is required.
func (d *Directory) RegisterDoctor(ctx context.Context, r Registration) (model.User, error) {
	if !r.Specialty.Valid() {
		return model.User{}, apperr.NewValidation("", "doctor specialty must be one of the fixed list")
	}
	return d.register(ctx, model.RoleDoctor, r)
}

// SetAvailability toggles whether a doctor accepts new requests.
func (d *Directory) SetAvailability(ctx context.Context, doctorID string, available bool) error {
	if err := d.users.SetAvailability(ctx, doctorID, available); err != nil {
		return err
	}
	d.log.Audit(doctorID, "set_availability", "user:"+doctorID, true, map[string]interface{}{"available": available})
	return nil
}

func (d *Directory) register(ctx context.Context, role model.Role, r Registration) (model.User, error) {
	if err := validateRegistration(r, d.now()); err != nil {
		return model.User{}, err
	}
	hash, err := utils.HashPassword(r.Password, d.cost)
	if err != nil {
		return model.User{}, apperr.NewInternal("hash password", err)
	}
	now := d.now().UTC().Truncate(time.Second)
	u := model.User{
		ID:           uuid.NewString(),
		Email:        r.Email,
		PasswordHash: hash,
		Role:         role,
		Specialty:    r.Specialty,
		Name:         strings.TrimSpace(r.Name),
		Surname:      strings.TrimSpace(r.Surname),
		BirthDate:    r.BirthDate.UTC(),
		PhoneNo:      strings.TrimSpace(r.PhoneNo),
		Available:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.users.Create(ctx, &u); err != nil {
		return model.User{}, err
	}
	d.log.WithComponent("directory").WithField("user_id", u.ID).WithField("role", role).Info("user registered")
	u.PasswordHash = ""
	return u, nil
}

func validateRegistration(r Registration, now time.Time) error {
	if _, err := mail.ParseAddress(strings.TrimSpace(r.Email)); err != nil {
		return apperr.NewValidation("", "email is not a valid address")
	}
	if utf8.RuneCountInString(r.Password) < MinPasswordLength {
		return apperr.NewValidation("", "password must be at least 8 characters")
	}
	if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Surname) == "" {
		return apperr.NewValidation("", "name and surname are required")
	}
	if r.BirthDate.IsZero() || model.AgeAt(r.BirthDate, now) < model.MinimumAge {
		return apperr.NewValidation("", "users must be at least 18 years old")
	}
	return nil
}
