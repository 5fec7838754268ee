package events

import (
	"context"
	"errors"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/ports"
)

// MultiPublisher hands every event to each publisher in order. All
// publishers are tried; their errors are joined.
type MultiPublisher []ports.EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
