package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/logger"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/queue"
)

// Note length limits, in characters.
const (
	MaxPatientNote = 1000
	MaxDoctorNote  = 2000
)

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	CreateRetries      int           // retries after a transient insert failure
	CreateRetryBackoff time.Duration // first retry delay; doubles per attempt
	StorageTimeout     time.Duration // bound on each storage call
	Now                func() time.Time
}

// Scheduler owns the appointment lifecycle.  It trusts the ids it is given;
// AuthorizedScheduler binds them to a session first.
type Scheduler struct {
	store   AppointmentStore
	users   UserResolver
	events  EventPublisher
	log     *logger.Logger
	retries int
	backoff time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewScheduler wires a scheduler.  events may be nil.
func NewScheduler(store AppointmentStore, users UserResolver, events EventPublisher, opts SchedulerOptions, log *logger.Logger) *Scheduler {
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}
	if opts.CreateRetries < 0 {
		opts.CreateRetries = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		store: store, users: users, events: events, log: log,
		retries: opts.CreateRetries, backoff: opts.CreateRetryBackoff,
		timeout: opts.StorageTimeout, now: opts.Now,
	}
}

// Create books doctorID at scheduledAt for patientID.  The new appointment
// is PENDING.
func (s *Scheduler) Create(ctx context.Context, doctorID, patientID string, scheduledAt time.Time, patientNote string) (model.Appointment, error) {
	if utf8.RuneCountInString(patientNote) > MaxPatientNote {
		return model.Appointment{}, apperr.NewValidation("", "patient note exceeds 1000 characters")
	}
	slot := model.NormalizeSlot(scheduledAt)
	now := s.now().UTC()
	if slot.Before(model.NormalizeSlot(now)) {
		return model.Appointment{}, apperr.NewValidation(apperr.CodeSlotInPast, "appointment time is in the past")
	}

	doctor, err := s.resolve(ctx, doctorID)
	if err != nil {
		return model.Appointment{}, err
	}
	if doctor.Role != model.RoleDoctor {
		return model.Appointment{}, apperr.NewValidation(apperr.CodeRoleMismatch, "doctorId does not name a doctor")
	}
	if !doctor.Available {
		return model.Appointment{}, apperr.NewValidation(apperr.CodeDoctorUnavailable, "doctor is not accepting appointments")
	}
	patient, err := s.resolve(ctx, patientID)
	if err != nil {
		return model.Appointment{}, err
	}
	if patient.Role != model.RolePatient {
		return model.Appointment{}, apperr.NewValidation(apperr.CodeRoleMismatch, "patientId does not name a patient")
	}

	stamp := now.Truncate(time.Microsecond)
	a := model.Appointment{
		ID:          uuid.NewString(),
		DoctorID:    doctor.ID,
		PatientID:   patient.ID,
		ScheduledAt: slot,
		Status:      model.StatusPending,
		PatientNote: patientNote,
		CreatedAt:   stamp,
		UpdatedAt:   stamp,
	}
	if err := s.insertWithRetry(ctx, &a); err != nil {
		return model.Appointment{}, err
	}

	s.audit(patient.ID, queue.EventCreated, a)
	return a, nil
}

// insertWithRetry retries transient failures with exponential backoff.
// Business failures are returned at once.
func (s *Scheduler) insertWithRetry(ctx context.Context, a *model.Appointment) error {
	delay := s.backoff
	for attempt := 0; ; attempt++ {
		err := s.withTimeout(ctx, func(ctx context.Context) error { return s.store.Insert(ctx, a) })
		if err == nil {
			return nil
		}
		// an earlier attempt may have committed before its reply was lost
		if attempt > 0 && errors.Is(err, apperr.SlotConflict) {
			if got, gerr := s.get(ctx, a.ID); gerr == nil && got.PatientID == a.PatientID {
				*a = got
				return nil
			}
		}
		if !errors.Is(err, apperr.Transient) {
			return err
		}
		if attempt >= s.retries || ctx.Err() != nil {
			s.log.WithComponent("scheduler").WithError(err).WithField("attempts", attempt+1).Warn("create gave up after transient failures")
			return apperr.NewTransient("could not create appointment, try again", err)
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return apperr.NewTransient("could not create appointment, try again", ctx.Err())
		case <-t.C:
		}
		delay *= 2
	}
}

// Approve confirms a PENDING appointment.
func (s *Scheduler) Approve(ctx context.Context, appointmentID, actingDoctorID string) (model.Appointment, error) {
	return s.doctorAction(ctx, appointmentID, actingDoctorID, model.ActionApprove, queue.EventApproved)
}

// Reject cancels a PENDING appointment on the doctor's behalf.
func (s *Scheduler) Reject(ctx context.Context, appointmentID, actingDoctorID string) (model.Appointment, error) {
	return s.doctorAction(ctx, appointmentID, actingDoctorID, model.ActionReject, queue.EventRejected)
}

func (s *Scheduler) doctorAction(ctx context.Context, id, actingDoctorID string, act model.Action, event string) (model.Appointment, error) {
	var a model.Appointment
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.store.Transition(ctx, id, func(a *model.Appointment) (bool, error) {
			if a.DoctorID != actingDoctorID {
				return false, apperr.NewAuthorization("appointment belongs to another doctor")
			}
			next, ok := a.Status.Next(act)
			if !ok {
				return false, apperr.NewInvalidTransition("cannot " + string(act) + " a " + string(a.Status) + " appointment")
			}
			a.Status = next
			a.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
			return true, nil
		})
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.audit(actingDoctorID, event, a)
	return a, nil
}

// Cancel cancels an appointment on behalf of its patient or its doctor.
// Cancelling an already cancelled appointment succeeds without changes.
func (s *Scheduler) Cancel(ctx context.Context, appointmentID, actingUserID string) (model.Appointment, error) {
	changed := false
	var a model.Appointment
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.store.Transition(ctx, appointmentID, func(a *model.Appointment) (bool, error) {
			if a.PatientID != actingUserID && a.DoctorID != actingUserID {
				return false, apperr.NewAuthorization("only the appointment's patient or doctor may cancel it")
			}
			if a.Status == model.StatusCancelled {
				return false, nil
			}
			next, ok := a.Status.Next(model.ActionCancel)
			if !ok {
				return false, apperr.NewInvalidTransition("cannot cancel a " + string(a.Status) + " appointment")
			}
			a.Status = next
			a.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
			changed = true
			return true, nil
		})
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if changed {
		s.audit(actingUserID, queue.EventCancelled, a)
	}
	return a, nil
}

// SetDoctorNote replaces the doctor's note.  Allowed in every status; the
// status never changes.
func (s *Scheduler) SetDoctorNote(ctx context.Context, appointmentID, actingDoctorID, note string) (model.Appointment, error) {
	if utf8.RuneCountInString(note) > MaxDoctorNote {
		return model.Appointment{}, apperr.NewValidation("", "doctor note exceeds 2000 characters")
	}
	var a model.Appointment
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.store.Transition(ctx, appointmentID, func(a *model.Appointment) (bool, error) {
			if a.DoctorID != actingDoctorID {
				return false, apperr.NewAuthorization("appointment belongs to another doctor")
			}
			a.DoctorNote = note
			a.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)
			return true, nil
		})
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	s.audit(actingDoctorID, queue.EventNoted, a)
	return a, nil
}

// Get returns one appointment to its patient or doctor.
func (s *Scheduler) Get(ctx context.Context, appointmentID, actingUserID string) (model.Appointment, error) {
	a, err := s.get(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if a.PatientID != actingUserID && a.DoctorID != actingUserID {
		return model.Appointment{}, apperr.NewAuthorization("appointment belongs to someone else")
	}
	return a, nil
}

// ListForPatient returns a patient's appointments in slot order.
func (s *Scheduler) ListForPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	var out []model.Appointment
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.store.ListByPatient(ctx, patientID)
		return err
	})
	return out, err
}

// ListForDoctor returns a doctor's appointments in slot order.
func (s *Scheduler) ListForDoctor(ctx context.Context, doctorID string) ([]model.Appointment, error) {
	var out []model.Appointment
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.store.ListByDoctor(ctx, doctorID)
		return err
	})
	return out, err
}

func (s *Scheduler) get(ctx context.Context, id string) (model.Appointment, error) {
	var a model.Appointment
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.store.Get(ctx, id)
		return err
	})
	return a, err
}

func (s *Scheduler) resolve(ctx context.Context, id string) (model.UserRef, error) {
	var ref model.UserRef
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		ref, err = s.users.ResolveUser(ctx, id)
		return err
	})
	return ref, err
}

func (s *Scheduler) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

// audit logs a committed change and hands it to the event publisher.  The
// publisher must not block; production wires a queue.Outbox.
func (s *Scheduler) audit(actorID, event string, a model.Appointment) {
	s.log.Audit(actorID, event, "appointment:"+a.ID, true, map[string]interface{}{
		"status":       a.Status,
		"doctor_id":    a.DoctorID,
		"patient_id":   a.PatientID,
		"scheduled_at": a.ScheduledAt.Format(time.RFC3339),
	})
	if s.events == nil {
		return
	}
	ev := queue.AppointmentEvent{
		Type:          event,
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		ActorID:       actorID,
		Status:        string(a.Status),
		ScheduledAt:   a.ScheduledAt,
		OccurredAt:    a.UpdatedAt,
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.events.PublishAppointmentEvent(ctx, ev); err != nil {
		s.log.WithComponent("scheduler").WithError(err).WithField("event", event).Warn("event publish failed")
	}
}
