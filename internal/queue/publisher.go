package queue

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/clinic-appointment-scheduler/internal/logger"
)

// Publisher sends AppointmentEvents to RabbitMQ over one long-lived
// connection and channel.  A failed publish drops both; the next publish
// dials again.
type Publisher struct {
    url string
    log *logger.Logger

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the broker at url.  Nothing is dialed
// until the first publish.
func NewPublisher(url string, log *logger.Logger) *Publisher {
    return &Publisher{url: url, log: log}
}

// PublishAppointmentEvent publishes ev as a persistent JSON message to
// AppointmentQueue.
func (p *Publisher) PublishAppointmentEvent(ctx context.Context, ev AppointmentEvent) error {
    entry := p.log.WithComponent("publisher").WithField("event", ev.Type)

    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Type:         ev.Type,
        Body:         body,
    }

    p.mu.Lock()
    defer p.mu.Unlock()

    ch, err := p.channel()
    if err != nil {
        entry.WithError(err).Warn("rabbitmq connect failed")
        return err
    }
    if err := ch.PublishWithContext(ctx, "", AppointmentQueue, false, false, pub); err != nil {
        entry.WithError(err).Warn("rabbitmq publish failed")
        p.reset()
        return err
    }
    return nil
}

// Close releases the connection.  Safe to call more than once.
func (p *Publisher) Close() {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.reset()
}

// channel returns the open channel, dialing when there is none.  p.mu held.
func (p *Publisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    p.reset()

    conn, err := amqp.Dial(p.url)
    if err != nil {
        return nil, err
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, err
    }
    if err := declare(ch); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, err
    }
    p.conn, p.ch = conn, ch
    return ch, nil
}

// reset closes and forgets the current connection.  p.mu held.
func (p *Publisher) reset() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}

// declare makes sure the durable queue exists.  Both sides call it.
func declare(ch *amqp.Channel) error {
    _, err := ch.QueueDeclare(
        AppointmentQueue, // name
        true,             // durable
        false,            // autoDelete
        false,            // exclusive
        false,            // noWait
        nil,              // args
    )
    return err
}
