package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/adminsettings/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ruleSchemaModel struct {
	TenantID   string    `gorm:"column:tenant_id;primaryKey"`
	Section    string    `gorm:"column:section;primaryKey"`
	SchemaJSON string    `gorm:"column:schema_json;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (ruleSchemaModel) TableName() string {
	return "rule_schemas"
}

type RuleSchemaRepository struct {
	db *gormsqlite.DB
}

func NewRuleSchemaRepository(db *gormsqlite.DB) *RuleSchemaRepository {
	return &RuleSchemaRepository{db: db}
}

func (r *RuleSchemaRepository) Upsert(ctx context.Context, schema domain.RuleSchema) (domain.RuleSchema, error) {
	now := time.Now().UTC()
	model := ruleSchemaModel{
		TenantID:   schema.TenantID,
		Section:    string(schema.Section),
		SchemaJSON: string(schema.Schema),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var out domain.RuleSchema
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "section"}},
			DoUpdates: clause.AssignmentColumns([]string{"schema_json", "updated_at"}),
		}).Create(&model).Error
		if err != nil {
			return fmt.Errorf("upsert rule schema: %w", err)
		}

		var saved ruleSchemaModel
		if err := tx.Where("tenant_id = ? AND section = ?", schema.TenantID, string(schema.Section)).First(&saved).Error; err != nil {
			return fmt.Errorf("load upserted rule schema: %w", err)
		}
		out = toRuleSchemaDomain(saved)
		return nil
	})
	if err != nil {
		return domain.RuleSchema{}, err
	}
	return out, nil
}

func (r *RuleSchemaRepository) Get(ctx context.Context, tenantID string, section domain.Section) (domain.RuleSchema, error) {
	var model ruleSchemaModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("tenant_id = ? AND section = ?", tenantID, string(section)).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.RuleSchema{}, domain.ErrNotFound
		}
		return domain.RuleSchema{}, fmt.Errorf("get rule schema: %w", err)
	}
	return toRuleSchemaDomain(model), nil
}

func (r *RuleSchemaRepository) Delete(ctx context.Context, tenantID string, section domain.Section) (bool, error) {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("tenant_id = ? AND section = ?", tenantID, string(section)).Delete(&ruleSchemaModel{})
		if res.Error != nil {
			return fmt.Errorf("delete rule schema: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func toRuleSchemaDomain(model ruleSchemaModel) domain.RuleSchema {
	return domain.RuleSchema{
		TenantID:   model.TenantID,
		Section:    domain.Section(model.Section),
		Schema:     json.RawMessage(model.SchemaJSON),
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}
