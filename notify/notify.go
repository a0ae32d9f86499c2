// Package notify announces written registry files to other systems.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject registry events are published on.
const DefaultSubject = "metainf.registry.written"

// Entry is one registration in a written registry file.
type Entry struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// Event describes a registry file that was written.
type Event struct {
	PassID    string    `json:"pass_id"`
	Contract  string    `json:"contract"`
	Path      string    `json:"path"`
	Entries   []Entry   `json:"entries"`
	WrittenAt time.Time `json:"written_at"`
}

// Notifier receives an event after each successful registry write.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
func (Nop) Close() error                        { return nil }

// Publisher is the part of a NATS connection the notifier uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes events as JSON on a NATS subject.
type NATSNotifier struct {
	pub     Publisher
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSNotifier creates a notifier over an existing publisher.
func NewNATSNotifier(pub Publisher, subject string, logger *slog.Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSNotifier{pub: pub, subject: subject, logger: logger}
}

// Connect dials a NATS server and returns a notifier that owns the
// connection.
func Connect(ctx context.Context, url, subject string, logger *slog.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{
		nats.Name("metainf"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	n := NewNATSNotifier(nc, subject, logger)
	n.nc = nc
	return n, nil
}

// Notify publishes the event.
func (n *NATSNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", n.subject, err)
	}

	n.logger.Debug("Published registry event",
		"subject", n.subject,
		"contract", event.Contract,
		"entries", len(event.Entries))
	return nil
}

// Close flushes pending messages and closes an owned connection.
func (n *NATSNotifier) Close() error {
	if n.nc == nil {
		return nil
	}
	defer n.nc.Close()
	if err := n.nc.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("flush NATS: %w", err)
	}
	return nil
}
