// Package service holds the clinic's core: the directory, the session
// service, the appointment scheduler and the session-checked boundary in
// front of it.  Storage is reached only through the interfaces below, so the
// same logic runs over MySQL/Redis and over the in-memory stores.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/queue"
)

// AppointmentStore persists appointments.  Insert must reject a second
// active appointment for the same doctor and instant with a SlotConflict
// error, atomically.  Transition must run fn and the write-back inside one
// transaction holding the row.
type AppointmentStore interface {
	Insert(ctx context.Context, a *model.Appointment) error
	Get(ctx context.Context, id string) (model.Appointment, error)
	Transition(ctx context.Context, id string, fn func(*model.Appointment) (bool, error)) (model.Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]model.Appointment, error)
}

// UserStore persists users.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	ListDoctorsBySpecialty(ctx context.Context, s model.Specialty) ([]model.User, error)
	SetAvailability(ctx context.Context, doctorID string, available bool) error
}

// SessionStore persists sessions by token hash.  Extend is a
// compare-and-swap: it moves ExpiresAt from prev to next only if the record
// still holds prev and is live at now.
type SessionStore interface {
	Create(ctx context.Context, s model.Session) error
	Get(ctx context.Context, tokenHash string) (model.Session, error)
	Extend(ctx context.Context, tokenHash string, prev, next, now time.Time) (bool, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAll(ctx context.Context, userID string) error
}

// ExpiredSessionDeleter is implemented by stores that need proactive
// cleanup.  Redis expires keys itself and does not implement it.
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserResolver is the slice of the directory the scheduler depends on.
type UserResolver interface {
	ResolveUser(ctx context.Context, id string) (model.UserRef, error)
}

// CredentialVerifier is the slice of the directory the session service
// depends on.
type CredentialVerifier interface {
	UserResolver
	VerifyCredentials(ctx context.Context, email, password string) (string, error)
}

// EventPublisher ships appointment events after commit.  It is called on the
// request path, so implementations enqueue rather than deliver.
type EventPublisher interface {
	PublishAppointmentEvent(ctx context.Context, ev queue.AppointmentEvent) error
}
