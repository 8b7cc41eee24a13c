package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Clark-Hu/restroom-finder/internal/logging"
)

const (
	defaultDialTimeout   = 3 * time.Second
	defaultRedialBackoff = 5 * time.Second
	heartbeat            = 10 * time.Second
)

// ErrBrokerUnavailable is returned without dialing while a failed reconnect is
// cooling down.
var ErrBrokerUnavailable = errors.New("events: broker unavailable")

// AMQPPublisher publishes persistent JSON messages to a durable queue through
// the default exchange.
type AMQPPublisher struct {
	url           string
	queue         string
	dialTimeout   time.Duration
	redialBackoff time.Duration
	logger        *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	nextDial time.Time
}

// NewAMQPPublisher dials the broker and declares queue.
func NewAMQPPublisher(ctx context.Context, url, queue string, logger *zap.Logger) (*AMQPPublisher, error) {
	p, err := newAMQPPublisher(url, queue, logger)
	if err != nil {
		return nil, err
	}
	if err := p.connect(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func newAMQPPublisher(url, queue string, logger *zap.Logger) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("events: empty amqp url")
	}
	if queue == "" {
		return nil, errors.New("events: empty queue name")
	}
	return &AMQPPublisher{
		url:           url,
		queue:         queue,
		dialTimeout:   defaultDialTimeout,
		redialBackoff: defaultRedialBackoff,
		logger:        logging.OrNop(logger).Named("events"),
	}, nil
}

// connect dials within the shorter of the dial timeout and ctx's deadline.
// The timeout covers the TCP connect and the AMQP handshake.
func (p *AMQPPublisher) connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := p.dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.conn = conn
	p.ch = ch
	return nil
}

// PublishRated sends event to the queue, reconnecting once if the channel was
// closed by the broker. After a failed reconnect, calls fail with
// ErrBrokerUnavailable until the redial backoff has passed.
func (p *AMQPPublisher) PublishRated(ctx context.Context, event RatedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         "restroom.rated",
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		if time.Now().Before(p.nextDial) {
			return ErrBrokerUnavailable
		}
		p.logger.Warn("channel closed, reconnecting")
		_ = p.closeLocked()
		if err := p.connect(ctx); err != nil {
			if ctx.Err() == nil {
				p.nextDial = time.Now().Add(p.redialBackoff)
			}
			return err
		}
		p.nextDial = time.Time{}
	}

	if err := p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *AMQPPublisher) closeLocked() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		p.conn = nil
	}
	return errors.Join(errs...)
}
