// Package queue carries appointment audit events over RabbitMQ: a publisher
// used by the scheduler after each committed change, and a consumer that
// appends every event to an audit log.
package queue

import (
    "fmt"
    "time"
)

// AppointmentQueue is the durable queue all appointment events go to.
const AppointmentQueue = "appointment.events"

// Event types.  One per committed state change.
const (
    EventCreated   = "appointment.created"
    EventApproved  = "appointment.approved"
    EventRejected  = "appointment.rejected"
    EventCancelled = "appointment.cancelled"
    EventNoted     = "appointment.note_set"
)

// AppointmentEvent is published after a change to an appointment commits.
// It carries enough information for consumers to log or notify without
// querying the primary database.
type AppointmentEvent struct {
    Type          string    `json:"type"`
    AppointmentID string    `json:"appointment_id"`
    DoctorID      string    `json:"doctor_id"`
    PatientID     string    `json:"patient_id"`
    ActorID       string    `json:"actor_id"`
    Status        string    `json:"status"`
    ScheduledAt   time.Time `json:"scheduled_at"`
    OccurredAt    time.Time `json:"occurred_at"`
}

// Line renders the event as a single human-friendly audit line.
func (ev AppointmentEvent) Line() string {
    return fmt.Sprintf("[%s] %s | appointment_id=%s | doctor_id=%s | patient_id=%s | actor_id=%s | status=%s | scheduled_at=%s\n",
        ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.AppointmentID, ev.DoctorID, ev.PatientID,
        ev.ActorID, ev.Status, ev.ScheduledAt.UTC().Format(time.RFC3339))
}
