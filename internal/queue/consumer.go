package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/auth-session/internal/observability"
)

// AuditLogFile is the file, inside the consumer's directory, that audit
// lines are appended to.
const AuditLogFile = "auth.log"

// Consumer reads AuthEvents from the auth.events queue and appends one line
// per event to <dir>/auth.log.
type Consumer struct {
	url   string
	queue string
	dir   string
	log   *log.Logger
	mu    sync.Mutex
}

func NewConsumer(url, dir string) *Consumer {
	if dir == "" {
		dir = "logs"
	}
	return &Consumer{url: url, queue: AuthQueueName, dir: dir, log: observability.Discard()}
}

func (c *Consumer) WithLogger(l *log.Logger) *Consumer {
	c.log = l
	return c
}

// Run keeps a consumer attached to the broker until ctx is cancelled,
// reconnecting with exponential backoff.  Messages that cannot be decoded
// or written are rejected without requeue to avoid tight redelivery loops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warnj(log.JSON{"event": "broker_dial_failed", "error": err.Error(), "retry_in": backoff.String()})
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
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warnj(log.JSON{"event": "consume_loop_ended", "error": err.Error()})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warnj(log.JSON{"event": "qos_failed", "error": err.Error()})
	}
	if err := declareQueue(ch, c.queue); err != nil {
		return err
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.Handle(d.Body); err != nil {
			c.log.Errorj(log.JSON{"event": "audit_message_rejected", "error": err.Error()})
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle decodes one message body and appends it to the audit log.
func (c *Consumer) Handle(body []byte) error {
	var ev AuthEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, AuditLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single human-readable line ending in '\n'.
// Empty fields are omitted.
func FormatLine(ev AuthEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | id=%s", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.ID)
	field := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, " | %s=%q", k, v)
		}
	}
	field("user_id", ev.UserID)
	field("email", ev.Email)
	field("reason", ev.Reason)
	field("detail", ev.Detail)
	field("token_prefix", ev.TokenPrefix)
	field("ip", ev.ClientIP)
	b.WriteByte('\n')
	return b.String()
}
