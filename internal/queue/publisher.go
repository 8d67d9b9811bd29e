package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/auth-session/internal/observability"
)

// AuthQueueName is the durable queue audit events are routed to.
const AuthQueueName = "auth.events"

// DefaultBufferSize bounds the number of events waiting for the broker.
const DefaultBufferSize = 1024

// channel is the subset of an AMQP channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc opens a broker connection and returns a channel on which the
// queue has been declared, plus a notification channel that fires when the
// connection drops.
type dialFunc func(url, queue string) (channel, <-chan *amqp.Error, error)

// Publisher forwards AuthEvents to RabbitMQ in the background.  Publish
// never blocks the caller: when the buffer is full the event is dropped and
// counted.  The broker connection is (re)established by Run.
type Publisher struct {
	url   string
	queue string
	buf   chan AuthEvent
	dial  dialFunc
	log   *log.Logger

	minBackoff time.Duration

	dropped   atomic.Uint64
	published atomic.Uint64
}

func NewPublisher(url string, size int) *Publisher {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Publisher{
		url:   url,
		queue: AuthQueueName,
		buf:   make(chan AuthEvent, size),
		dial:  dialAMQP,
		log:   observability.Discard(),

		minBackoff: time.Second,
	}
}

func (p *Publisher) WithLogger(l *log.Logger) *Publisher {
	p.log = l
	return p
}

// Publish enqueues ev without blocking.
func (p *Publisher) Publish(ev AuthEvent) {
	select {
	case p.buf <- ev:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			p.log.Warnj(log.JSON{"event": "audit_dropped", "type": ev.Type, "dropped_total": n})
		}
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Published returns the number of events accepted by the broker.
func (p *Publisher) Published() uint64 { return p.published.Load() }

// Run connects to the broker and drains the buffer until ctx is cancelled.
// Connection failures are retried with exponential backoff capped at 30s;
// an event whose publish failed is retried on the next connection.
func (p *Publisher) Run(ctx context.Context) error {
	backoff := p.minBackoff
	var pending *AuthEvent
	for {
		ch, closed, err := p.dial(p.url, p.queue)
		if err != nil {
			p.log.Warnj(log.JSON{"event": "broker_dial_failed", "error": err.Error(), "retry_in": backoff.String()})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = p.minBackoff

		pending, err = p.drain(ctx, ch, closed, pending)
		_ = ch.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warnj(log.JSON{"event": "broker_connection_lost", "error": err.Error()})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (p *Publisher) drain(ctx context.Context, ch channel, closed <-chan *amqp.Error, pending *AuthEvent) (*AuthEvent, error) {
	for {
		var ev AuthEvent
		if pending != nil {
			ev, pending = *pending, nil
		} else {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case amqpErr, ok := <-closed:
				if !ok || amqpErr == nil {
					return nil, errors.New("connection closed")
				}
				return nil, amqpErr
			case ev = <-p.buf:
			}
		}
		if err := p.send(ctx, ch, ev); err != nil {
			return &ev, err
		}
		p.published.Add(1)
	}
}

func (p *Publisher) send(ctx context.Context, ch channel, ev AuthEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Type:         string(ev.Type),
			Timestamp:    ev.OccurredAt,
			Body:         body,
		})
}

// amqpChannel closes the connection together with its channel.
type amqpChannel struct {
	*amqp.Channel
	conn *amqp.Connection
}

func (c amqpChannel) Close() error {
	_ = c.Channel.Close()
	return c.conn.Close()
}

func dialAMQP(url, queue string) (channel, <-chan *amqp.Error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	if err := declareQueue(ch, queue); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	return amqpChannel{Channel: ch, conn: conn}, closed, nil
}

// declareQueue makes sure the durable queue exists.  Declaring is
// idempotent so both the publisher and the consumer do it.
func declareQueue(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}
