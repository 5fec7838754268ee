package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
)

// LogPublisher writes settings events to the log. It is the publisher used
// when no webhook is configured.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.log.Info().
		Str("topic", topic).
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Str("tenant", event.TenantID).
		Str("section", event.AggregateID).
		Int64("version", event.AggregateVersion).
		Str("actor", event.Actor).
		Msg("settings event published")
	return nil
}
