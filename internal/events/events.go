// Package events publishes domain events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sjperalta/interlock-api/pkg/logger"
)

// Event subjects
const (
	SubjectLogSubmitted    = "logs.submitted"
	SubjectLogFlagged      = "logs.flagged"
	SubjectLogReviewed     = "logs.reviewed"
	SubjectScheduleOverdue = "schedules.overdue"
	SubjectScheduleChanged = "schedules.changed"
	SubjectActionExecuted  = "actions.executed"
	SubjectActionFailed    = "actions.failed"
	SubjectActionCancelled = "actions.cancelled"
)

// Envelope wraps every published payload
type Envelope struct {
	Subject    string      `json:"subject"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Publisher sends events. Failures are the publisher's concern, not the caller's.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes JSON envelopes to NATS under a subject prefix
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// Connect dials NATS and returns a publisher plus the connection to drain on shutdown
func Connect(url, prefix string) (*NATSPublisher, *nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("interlock-api"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to nats: %w", err)
	}
	return NewNATSPublisher(conn, prefix), conn, nil
}

// NewNATSPublisher wraps an established connection
func NewNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Publish marshals data into an Envelope and sends it
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	full := subject
	if p.prefix != "" {
		full = p.prefix + "." + subject
	}
	payload, err := json.Marshal(Envelope{Subject: full, OccurredAt: time.Now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", full, err)
	}
	if err := p.conn.Publish(full, payload); err != nil {
		logger.Warn("Failed to publish event", "subject", full, "error", err)
		return err
	}
	return nil
}
