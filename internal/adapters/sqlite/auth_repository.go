package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/adminsettings/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// apiKeyRow is one API key. Only the SHA-256 of the bearer token is kept; the
// role decides whether the key may change settings and rule schemas.
type apiKeyRow struct {
	TokenHash string    `gorm:"column:token_hash;primaryKey"`
	TenantID  string    `gorm:"column:tenant_id;not null"`
	Name      string    `gorm:"column:name;not null"`
	Role      string    `gorm:"column:role;not null"`
	Active    bool      `gorm:"column:active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (apiKeyRow) TableName() string {
	return "api_keys"
}

func newAPIKeyRow(key domain.APIKey) apiKeyRow {
	return apiKeyRow{
		TokenHash: key.TokenHash,
		TenantID:  key.TenantID,
		Name:      key.Name,
		Role:      key.Role,
		Active:    key.Active,
		CreatedAt: key.CreatedAt,
	}
}

func (r apiKeyRow) apiKey() domain.APIKey {
	return domain.APIKey{
		TokenHash: r.TokenHash,
		TenantID:  r.TenantID,
		Name:      r.Name,
		Role:      r.Role,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}
}

// keyRebindColumns are overwritten when a token is bootstrapped again, so a
// restart can move a key to another tenant or role. created_at is kept.
var keyRebindColumns = []string{"tenant_id", "name", "role", "active"}

// APIKeyRepository stores the tenant scoped keys the HTTP API authenticates
// with.
type APIKeyRepository struct {
	db *gormsqlite.DB
}

func NewAPIKeyRepository(db *gormsqlite.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// FindByTokenHash returns domain.ErrNotFound for an unknown token. Inactive
// keys are returned; rejecting them is up to the caller.
func (r *APIKeyRepository) FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error) {
	var row apiKeyRow
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("token_hash = ?", tokenHash).First(&row).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.APIKey{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("find api key: %w", err)
	}
	return row.apiKey(), nil
}

func (r *APIKeyRepository) Upsert(ctx context.Context, key domain.APIKey) error {
	row := newAPIKeyRow(key)
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_hash"}},
			DoUpdates: clause.AssignmentColumns(keyRebindColumns),
		}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("upsert %s api key %q: %w", key.Role, key.Name, err)
	}
	return nil
}
