package queue

import (
    "context"
    "errors"
    "time"

    "github.com/iliyamo/clinic-appointment-scheduler/internal/logger"
)

// ErrOutboxFull is returned when an event is dropped because the buffer is
// full.
var ErrOutboxFull = errors.New("event outbox full")

// Sink delivers one event.  *Publisher is the production sink.
type Sink interface {
    PublishAppointmentEvent(ctx context.Context, ev AppointmentEvent) error
}

// Outbox buffers events in memory and hands them to a Sink from a single
// worker, so a slow broker never holds up the caller and at most one
// delivery is in flight.  Events that do not fit in the buffer are dropped
// and logged.
type Outbox struct {
    sink    Sink
    events  chan AppointmentEvent
    timeout time.Duration
    log     *logger.Logger
}

// NewOutbox returns an Outbox holding up to size pending events.  Each
// delivery is bounded by timeout.
func NewOutbox(sink Sink, size int, timeout time.Duration, log *logger.Logger) *Outbox {
    if size <= 0 {
        size = 256
    }
    if timeout <= 0 {
        timeout = 5 * time.Second
    }
    return &Outbox{sink: sink, events: make(chan AppointmentEvent, size), timeout: timeout, log: log}
}

// PublishAppointmentEvent enqueues ev without blocking.
func (o *Outbox) PublishAppointmentEvent(_ context.Context, ev AppointmentEvent) error {
    select {
    case o.events <- ev:
        return nil
    default:
        o.log.WithComponent("outbox").WithField("event", ev.Type).
            WithField("appointment_id", ev.AppointmentID).Warn("outbox full; event dropped")
        return ErrOutboxFull
    }
}

// Pending reports how many events wait for delivery.
func (o *Outbox) Pending() int { return len(o.events) }

// Run delivers events until ctx is cancelled, then flushes what is already
// buffered and returns nil.
func (o *Outbox) Run(ctx context.Context) error {
    for {
        select {
        case <-ctx.Done():
            o.flush()
            return nil
        case ev := <-o.events:
            o.deliver(ev)
        }
    }
}

func (o *Outbox) flush() {
    for {
        select {
        case ev := <-o.events:
            o.deliver(ev)
        default:
            return
        }
    }
}

func (o *Outbox) deliver(ev AppointmentEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
    defer cancel()
    if err := o.sink.PublishAppointmentEvent(ctx, ev); err != nil {
        o.log.WithComponent("outbox").WithError(err).WithField("event", ev.Type).Warn("event delivery failed")
    }
}
