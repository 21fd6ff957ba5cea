package model

import "time"

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
    StatusPending   AppointmentStatus = "PENDING"
    StatusConfirmed AppointmentStatus = "CONFIRMED"
    StatusCancelled AppointmentStatus = "CANCELLED"
)

// Active reports whether the status occupies the doctor's slot.
func (s AppointmentStatus) Active() bool {
    return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further transition is permitted.
func (s AppointmentStatus) Terminal() bool { return s == StatusCancelled }

// Action is a status-changing operation on an appointment.
type Action string

const (
    ActionApprove Action = "approve"
    ActionReject  Action = "reject"
    ActionCancel  Action = "cancel"
)

// transitions is the complete state table.  Anything not listed is invalid.
var transitions = map[AppointmentStatus]map[Action]AppointmentStatus{
    StatusPending: {
        ActionApprove: StatusConfirmed,
        ActionReject:  StatusCancelled,
        ActionCancel:  StatusCancelled,
    },
    StatusConfirmed: {
        ActionCancel: StatusCancelled,
    },
}

// Next returns the status reached by applying a to s, and false when the
// transition is not in the state table.
func (s AppointmentStatus) Next(a Action) (AppointmentStatus, bool) {
    next, ok := transitions[s][a]
    return next, ok
}

// Appointment is a patient's request for a doctor at a single instant.
// It corresponds to a row in the `appointments` table.
//
// Fields:
//  ID          – UUID assigned at creation.
//  DoctorID    – owning doctor.
//  PatientID   – requesting patient.
//  ScheduledAt – the booked instant (UTC, whole seconds).
//  Status      – PENDING, CONFIRMED or CANCELLED.
//  PatientNote – free text given at creation; immutable.
//  DoctorNote  – free text set by the doctor at any time.
//  CreatedAt   – creation timestamp; immutable.
//  UpdatedAt   – last mutation timestamp.
type Appointment struct {
    ID          string            `json:"id"`           // appointments.id
    DoctorID    string            `json:"doctor_id"`    // appointments.doctor_id
    PatientID   string            `json:"patient_id"`   // appointments.patient_id
    ScheduledAt time.Time         `json:"scheduled_at"` // appointments.scheduled_at
    Status      AppointmentStatus `json:"status"`       // appointments.status
    PatientNote string            `json:"patient_note"` // appointments.patient_note
    DoctorNote  string            `json:"doctor_note"`  // appointments.doctor_note
    CreatedAt   time.Time         `json:"created_at"`   // appointments.created_at
    UpdatedAt   time.Time         `json:"updated_at"`   // appointments.updated_at
}

// NormalizeSlot converts t to the canonical slot identifier: UTC truncated
// to whole seconds.
func NormalizeSlot(t time.Time) time.Time {
    return t.UTC().Truncate(time.Second)
}
