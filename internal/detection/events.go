package detection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/reviewguard/reviewguard/pkg/config"
)

// NATSPublisher publishes analysis-completed events so downstream
// moderation tooling can react without polling
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

var _ EventPublisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to NATS with the configured URL and subject
func NewNATSPublisher(cfg *config.NATSConfig) (*NATSPublisher, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("reviewguard"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{conn: conn, subject: cfg.Subject}, nil
}

// PublishAnalysisCompleted publishes the run summary as JSON
func (p *NATSPublisher) PublishAnalysisCompleted(_ context.Context, summary *BatchSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal analysis summary: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish analysis summary: %w", err)
	}
	return nil
}

// Close drains and closes the connection
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
