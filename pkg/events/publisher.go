package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/harborline/checkout-engine/pkg/logger"
)

// Publisher emits payment lifecycle events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, t Type, data any) error
}

// PubSubPublisher publishes envelopes to a Pub/Sub topic.
type PubSubPublisher struct {
	pub  *pubsub.Publisher
	logg *logger.Logger
}

// NewPubSubPublisher wires a publisher handle. The handle may not be nil.
func NewPubSubPublisher(pub *pubsub.Publisher, logg *logger.Logger) (*PubSubPublisher, error) {
	if pub == nil {
		return nil, errors.New("pubsub publisher is required")
	}
	return &PubSubPublisher{pub: pub, logg: logg}, nil
}

// Publish wraps data in an envelope and blocks until the broker acks.
func (p *PubSubPublisher) Publish(ctx context.Context, t Type, data any) error {
	env, err := NewEnvelope(t, data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	res := p.pub.Publish(ctx, &pubsub.Message{
		Data: raw,
		Attributes: map[string]string{
			"event_type": string(t),
			"version":    strconv.Itoa(env.Version),
		},
	})
	if _, err := res.Get(ctx); err != nil {
		if p.logg != nil {
			p.logg.Error(ctx, "publishing payment event", err)
		}
		return err
	}
	return nil
}

// NoopPublisher drops every event. Used when Pub/Sub is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Type, any) error { return nil }
