package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
	"github.com/iliyamo/clinic-appointment-scheduler/internal/model"
)

// AppointmentRepo persists appointments in MySQL.  The no-double-booking
// rule is enforced by the uq_appointments_active_slot unique key, so two
// concurrent inserts for the same doctor and instant cannot both commit.
type AppointmentRepo struct {
	db *sql.DB
}

// NewAppointmentRepo returns an AppointmentRepo bound to db.
func NewAppointmentRepo(db *sql.DB) *AppointmentRepo { return &AppointmentRepo{db: db} }

// DB exposes the underlying handle for health checks.
func (r *AppointmentRepo) DB() *sql.DB { return r.db }

const appointmentColumns = "id,doctor_id,patient_id,scheduled_at,status,patient_note,doctor_note,created_at,updated_at"

// Insert stores a new appointment.  An active appointment already holding
// the doctor's slot yields a SlotConflict error.
func (r *AppointmentRepo) Insert(ctx context.Context, a *model.Appointment) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO appointments ("+appointmentColumns+") VALUES (?,?,?,?,?,?,?,?,?)",
		a.ID, a.DoctorID, a.PatientID, a.ScheduledAt, string(a.Status),
		a.PatientNote, a.DoctorNote, a.CreatedAt, a.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case IsDuplicate(err):
		return apperr.NewSlotConflict("doctor already has an active appointment at this time")
	case mysqlNumber(err) == errNoReferencedRow:
		return apperr.NewNotFound("doctor or patient not found")
	}
	return classify("insert appointment", err)
}

// Get returns a single appointment.
func (r *AppointmentRepo) Get(ctx context.Context, id string) (model.Appointment, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+appointmentColumns+" FROM appointments WHERE id=?", id)
	return scanAppointment(row, "get appointment")
}

// Transition runs fn against the current row while holding its lock.  When
// fn reports a change, status, doctor_note and updated_at are written back
// before commit.  An error from fn rolls back and is returned unchanged, so
// a rejected transition never modifies the row.
func (r *AppointmentRepo) Transition(ctx context.Context, id string, fn func(*model.Appointment) (bool, error)) (model.Appointment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Appointment{}, classify("begin transition", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx,
		"SELECT "+appointmentColumns+" FROM appointments WHERE id=? FOR UPDATE", id)
	a, err := scanAppointment(row, "lock appointment")
	if err != nil {
		return model.Appointment{}, err
	}

	changed, err := fn(&a)
	if err != nil {
		return model.Appointment{}, err
	}
	if changed {
		if _, err := tx.ExecContext(ctx,
			"UPDATE appointments SET status=?, doctor_note=?, updated_at=? WHERE id=?",
			string(a.Status), a.DoctorNote, a.UpdatedAt, a.ID); err != nil {
			return model.Appointment{}, classify("update appointment", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Appointment{}, classify("commit transition", err)
	}
	committed = true
	return a, nil
}

// ListByPatient returns a patient's appointments ordered by slot, then
// creation time.
func (r *AppointmentRepo) ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	return r.list(ctx, "patient_id", patientID)
}

// ListByDoctor returns a doctor's appointments ordered by slot, then
// creation time.
func (r *AppointmentRepo) ListByDoctor(ctx context.Context, doctorID string) ([]model.Appointment, error) {
	return r.list(ctx, "doctor_id", doctorID)
}

func (r *AppointmentRepo) list(ctx context.Context, column, id string) ([]model.Appointment, error) {
	// column is one of two constants above, never user input
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+appointmentColumns+" FROM appointments WHERE "+column+"=? ORDER BY scheduled_at, created_at, id", id)
	if err != nil {
		return nil, classify("list appointments", err)
	}
	defer rows.Close()

	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows, "list appointments")
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list appointments", err)
	}
	return out, nil
}

func scanAppointment(row rowScanner, op string) (model.Appointment, error) {
	var (
		a      model.Appointment
		status string
	)
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.ScheduledAt, &status,
		&a.PatientNote, &a.DoctorNote, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Appointment{}, apperr.NewNotFound("appointment not found")
	}
	if err != nil {
		return model.Appointment{}, classify(op, err)
	}
	a.Status = model.AppointmentStatus(status)
	a.ScheduledAt = a.ScheduledAt.In(time.UTC)
	return a, nil
}
