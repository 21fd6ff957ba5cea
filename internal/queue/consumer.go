package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/clinic-appointment-scheduler/internal/logger"
)

// AuditConsumer drains AppointmentQueue and appends one line per event to
// an audit file.
type AuditConsumer struct {
    url  string
    path string
    log  *logger.Logger

    mu sync.Mutex // serialises writes to path
}

// NewAuditConsumer returns a consumer writing to path (e.g.
// logs/appointments.log).
func NewAuditConsumer(url, path string, log *logger.Logger) *AuditConsumer {
    return &AuditConsumer{url: url, path: path, log: log}
}

// Run connects and consumes until ctx is cancelled, reconnecting with a
// doubling backoff capped at 30s.  It returns nil on cancellation.
func (a *AuditConsumer) Run(ctx context.Context) error {
    entry := a.log.WithComponent("audit-consumer")
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return nil
        }
        conn, err := amqp.Dial(a.url)
        if err != nil {
            entry.WithError(err).Warnf("dial failed; retrying in %s", backoff)
            if !sleep(ctx, backoff) {
                return nil
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = a.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return nil
        }
        entry.WithError(err).Warn("consume loop ended; reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return nil
        }
    }
}

func (a *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        a.log.WithComponent("audit-consumer").WithError(err).Warn("set QoS failed")
    }
    if err := declare(ch); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.ConsumeWithContext(ctx, AppointmentQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := a.Handle(d.Body); err != nil {
            a.log.WithComponent("audit-consumer").WithError(err).Error("handle message failed")
            _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

// Handle decodes one message body and appends its audit line.
func (a *AuditConsumer) Handle(body []byte) error {
    var ev AppointmentEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" || ev.AppointmentID == "" {
        return errors.New("event missing type or appointment id")
    }

    a.mu.Lock()
    defer a.mu.Unlock()
    if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
        return fmt.Errorf("mkdir: %w", err)
    }
    f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open audit file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(ev.Line()); err != nil {
        return fmt.Errorf("write audit line: %w", err)
    }
    a.log.WithComponent("audit-consumer").WithField("event", ev.Type).WithField("appointment_id", ev.AppointmentID).Debug("event recorded")
    return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
