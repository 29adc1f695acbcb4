package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Event is a workflow milestone published for downstream consumers.
type Event struct {
	ID        string         `json:"eventId"`
	Type      string         `json:"type"`
	UserID    string         `json:"userId"`
	PolicyID  uint64         `json:"policyId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// NATSPublisher publishes each event on <prefix>.<type>.
type NATSPublisher struct {
	nc      *nats.Conn
	prefix  string
	publish func(subject string, data []byte) error
}

func NewNATSPublisher(natsURL, subjectPrefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("inzo-orchestrator"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATSPublisher{
		nc:      nc,
		prefix:  strings.TrimSuffix(subjectPrefix, "."),
		publish: nc.Publish,
	}, nil
}

func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

func (p *NATSPublisher) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.publish(p.Subject(event.Type), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("nats drain failed")
		p.nc.Close()
	}
}

// NoopPublisher drops events. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close()                               {}
