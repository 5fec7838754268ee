package ports

import (
	"context"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
)

type RuleSchemaRepository interface {
	Upsert(ctx context.Context, schema domain.RuleSchema) (domain.RuleSchema, error)
	Get(ctx context.Context, tenantID string, section domain.Section) (domain.RuleSchema, error)
	Delete(ctx context.Context, tenantID string, section domain.Section) (bool, error)
}
