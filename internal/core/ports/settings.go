package ports

import (
	"context"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
)

// SettingsStore persists settings sections. Mutations record an audit event
// and an outbox event in the same transaction.
type SettingsStore interface {
	Get(ctx context.Context, tenantID string, section domain.Section) (domain.SettingsDocument, error)
	List(ctx context.Context, tenantID string) ([]domain.SettingsDocument, error)
	UpsertWithEvents(ctx context.Context, doc domain.SettingsDocument, meta domain.MutationMetadata) (domain.SettingsDocument, error)
	ResetWithEvents(ctx context.Context, tenantID string, meta domain.MutationMetadata) (int64, error)
}
