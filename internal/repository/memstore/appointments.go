// Package memstore provides mutex-guarded, in-process implementations of
// the appointment, session and user stores.  They back APP_STORAGE=memory
// and the service tests, and give the same guarantees as the MySQL and
// Redis stores: check-and-insert and read-modify-write are atomic.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
)

type slotKey struct {
	doctorID string
	at       int64 // unix seconds of the normalized slot
}

// Appointments is an in-memory appointment store.
type Appointments struct {
	mu     sync.Mutex
	byID   map[string]model.Appointment
	active map[slotKey]string // slot -> id of the PENDING/CONFIRMED appointment holding it
}

// NewAppointments returns an empty store.
func NewAppointments() *Appointments {
	return &Appointments{
		byID:   map[string]model.Appointment{},
		active: map[slotKey]string{},
	}
}

func keyOf(a model.Appointment) slotKey {
	return slotKey{doctorID: a.DoctorID, at: a.ScheduledAt.Unix()}
}

// Insert stores a new appointment unless the doctor's slot is already held.
func (s *Appointments) Insert(ctx context.Context, a *model.Appointment) error {
	if err := ctx.Err(); err != nil {
		return apperr.NewTransient("insert appointment", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(*a)
	if a.Status.Active() {
		if _, taken := s.active[k]; taken {
			return apperr.NewSlotConflict("doctor already has an active appointment at this time")
		}
		s.active[k] = a.ID
	}
	s.byID[a.ID] = *a
	return nil
}

// Get returns a copy of one appointment.
func (s *Appointments) Get(ctx context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return model.Appointment{}, apperr.NewNotFound("appointment not found")
	}
	return a, nil
}

// Transition applies fn to a copy of the appointment under the store lock
// and commits the copy only when fn reports a change and no error.
func (s *Appointments) Transition(ctx context.Context, id string, fn func(*model.Appointment) (bool, error)) (model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return model.Appointment{}, apperr.NewTransient("transition appointment", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return model.Appointment{}, apperr.NewNotFound("appointment not found")
	}
	next := cur
	changed, err := fn(&next)
	if err != nil {
		return model.Appointment{}, err
	}
	if !changed {
		return cur, nil
	}
	if cur.Status.Active() && !next.Status.Active() {
		delete(s.active, keyOf(cur))
	}
	s.byID[id] = next
	return next, nil
}

// ListByPatient returns a patient's appointments ordered by slot.
func (s *Appointments) ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	return s.list(func(a model.Appointment) bool { return a.PatientID == patientID }), nil
}

// ListByDoctor returns a doctor's appointments ordered by slot.
func (s *Appointments) ListByDoctor(ctx context.Context, doctorID string) ([]model.Appointment, error) {
	return s.list(func(a model.Appointment) bool { return a.DoctorID == doctorID }), nil
}

func (s *Appointments) list(match func(model.Appointment) bool) []model.Appointment {
	s.mu.Lock()
	out := []model.Appointment{}
	for _, a := range s.byID {
		if match(a) {
			out = append(out, a)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActiveAt reports which appointment holds a doctor's slot, if any.
func (s *Appointments) ActiveAt(doctorID string, at time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[slotKey{doctorID: doctorID, at: model.NormalizeSlot(at).Unix()}]
	return id, ok
}
