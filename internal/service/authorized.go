package service

import (
	"context"
	"time"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
)

// AuthorizedScheduler puts session validation in front of every scheduler
// operation: the token must be live and belong to the acting user.
type AuthorizedScheduler struct {
	sessions *SessionService
	sched    *Scheduler
}

// NewAuthorizedScheduler wires the boundary.
func NewAuthorizedScheduler(sessions *SessionService, sched *Scheduler) *AuthorizedScheduler {
	return &AuthorizedScheduler{sessions: sessions, sched: sched}
}

// bind validates token and checks that it names actingID.
func (a *AuthorizedScheduler) bind(ctx context.Context, token, actingID string) error {
	id, err := a.sessions.Validate(ctx, token)
	if err != nil {
		return err
	}
	if id.UserID != actingID {
		return apperr.NewAuthorization("session does not belong to the acting user")
	}
	return nil
}

func (a *AuthorizedScheduler) Create(ctx context.Context, token, doctorID, patientID string, scheduledAt time.Time, patientNote string) (model.Appointment, error) {
	if err := a.bind(ctx, token, patientID); err != nil {
		return model.Appointment{}, err
	}
	return a.sched.Create(ctx, doctorID, patientID, scheduledAt, patientNote)
}

func (a *AuthorizedScheduler) Approve(ctx context.Context, token, appointmentID, actingDoctorID string) (model.Appointment, error) {
	if err := a.bind(ctx, token, actingDoctorID); err != nil {
		return model.Appointment{}, err
	}
	return a.sched.Approve(ctx, appointmentID, actingDoctorID)
}

func (a *AuthorizedScheduler) Reject(ctx context.Context, token, appointmentID, actingDoctorID string) (model.Appointment, error) {
	if err := a.bind(ctx, token, actingDoctorID); err != nil {
		return model.Appointment{}, err
	}
	return a.sched.Reject(ctx, appointmentID, actingDoctorID)
}

func (a *AuthorizedScheduler) Cancel(ctx context.Context, token, appointmentID, actingUserID string) (model.Appointment, error) {
	if err := a.bind(ctx, token, actingUserID); err != nil {
		return model.Appointment{}, err
	}
	return a.sched.Cancel(ctx, appointmentID, actingUserID)
}

func (a *AuthorizedScheduler) SetDoctorNote(ctx context.Context, token, appointmentID, actingDoctorID, note string) (model.Appointment, error) {
	if err := a.bind(ctx, token, actingDoctorID); err != nil {
		return model.Appointment{}, err
	}
	return a.sched.SetDoctorNote(ctx, appointmentID, actingDoctorID, note)
}

func (a *AuthorizedScheduler) Get(ctx context.Context, token, appointmentID, actingUserID string) (model.Appointment, error) {
	if err := a.bind(ctx, token, actingUserID); err != nil {
		return model.Appointment{}, err
	}
	return a.sched.Get(ctx, appointmentID, actingUserID)
}

// ListForPatient requires the session to belong to the listed patient.
func (a *AuthorizedScheduler) ListForPatient(ctx context.Context, token, patientID string) ([]model.Appointment, error) {
	if err := a.bind(ctx, token, patientID); err != nil {
		return nil, err
	}
	return a.sched.ListForPatient(ctx, patientID)
}

// ListForDoctor requires the session to belong to the listed doctor.
func (a *AuthorizedScheduler) ListForDoctor(ctx context.Context, token, doctorID string) ([]model.Appointment, error) {
	if err := a.bind(ctx, token, doctorID); err != nil {
		return nil, err
	}
	return a.sched.ListForDoctor(ctx, doctorID)
}
