package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/atvirokodosprendimai/adminsettings/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type settingsDocumentModel struct {
	TenantID  string    `gorm:"column:tenant_id;primaryKey"`
	Section   string    `gorm:"column:section;primaryKey"`
	DataJSON  string    `gorm:"column:data_json;not null"`
	Version   int64     `gorm:"column:version;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (settingsDocumentModel) TableName() string {
	return "settings_documents"
}

type auditEventModel struct {
	ID                int64     `gorm:"column:id;primaryKey;autoIncrement"`
	EventID           string    `gorm:"column:event_id;not null"`
	SchemaVersion     int       `gorm:"column:schema_version;not null"`
	TenantID          string    `gorm:"column:tenant_id;not null"`
	AggregateType     string    `gorm:"column:aggregate_type;not null"`
	AggregateID       string    `gorm:"column:aggregate_id;not null"`
	AggregateVersion  int64     `gorm:"column:aggregate_version;not null"`
	Action            string    `gorm:"column:action;not null"`
	Actor             string    `gorm:"column:actor;not null"`
	Source            string    `gorm:"column:source;not null"`
	RequestID         string    `gorm:"column:request_id;not null"`
	CorrelationID     string    `gorm:"column:correlation_id;not null"`
	CausationID       string    `gorm:"column:causation_id;not null"`
	IdempotencyKey    string    `gorm:"column:idempotency_key;not null"`
	BeforeJSON        string    `gorm:"column:before_json"`
	AfterJSON         string    `gorm:"column:after_json"`
	ChangedFieldsJSON string    `gorm:"column:changed_fields_json"`
	OccurredAt        time.Time `gorm:"column:occurred_at;not null"`
}

func (auditEventModel) TableName() string {
	return "audit_events"
}

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	TenantID      string     `gorm:"column:tenant_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string {
	return "outbox_events"
}

// SettingsStore keeps one JSON document per tenant and section. Every
// mutation writes an audit event and an outbox event in the same transaction.
type SettingsStore struct {
	db *gormsqlite.DB
}

func NewSettingsStore(db *gormsqlite.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) UpsertWithEvents(ctx context.Context, doc domain.SettingsDocument, meta domain.MutationMetadata) (domain.SettingsDocument, error) {
	meta = meta.Normalize()
	var result domain.SettingsDocument

	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var before *settingsDocumentModel
		var existing settingsDocumentModel
		err := tx.Where("tenant_id = ? AND section = ?", doc.TenantID, string(doc.Section)).First(&existing).Error
		switch {
		case err == nil:
			before = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			before = nil
		default:
			return fmt.Errorf("load existing settings: %w", err)
		}

		now := meta.OccurredAt.UTC()
		model := settingsDocumentModel{
			TenantID:  doc.TenantID,
			Section:   string(doc.Section),
			DataJSON:  string(doc.Data),
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if before != nil {
			model.Version = before.Version + 1
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "section"}},
			DoUpdates: clause.AssignmentColumns([]string{"data_json", "version", "updated_at"}),
		}).Create(&model).Error; err != nil {
			return fmt.Errorf("upsert settings: %w", err)
		}

		var after settingsDocumentModel
		if err := tx.Where("tenant_id = ? AND section = ?", doc.TenantID, string(doc.Section)).First(&after).Error; err != nil {
			return fmt.Errorf("load updated settings: %w", err)
		}

		aggregateVersion, err := nextAggregateVersion(tx.DB, doc.TenantID, string(doc.Section))
		if err != nil {
			return err
		}

		var beforeJSON string
		if before != nil {
			beforeJSON = before.DataJSON
		}
		changed, err := changedFields(beforeJSON, after.DataJSON)
		if err != nil {
			return err
		}

		envelope := domain.EventEnvelope{
			EventID:          uuid.NewString(),
			EventType:        domain.EventSettingsUpdated,
			SchemaVersion:    domain.CurrentEventSchemaVersion,
			TenantID:         doc.TenantID,
			AggregateType:    domain.AggregateSettings,
			AggregateID:      string(doc.Section),
			AggregateVersion: aggregateVersion,
			OccurredAt:       now,
			CorrelationID:    meta.CorrelationID,
			CausationID:      meta.CausationID,
			Actor:            meta.Actor,
			Source:           meta.Source,
			Payload: mustJSON(map[string]any{
				"section":        doc.Section,
				"version":        after.Version,
				"changed_fields": changed,
				"data":           json.RawMessage(after.DataJSON),
			}),
		}

		if err := insertAuditAndOutbox(tx.DB, meta, beforeJSON, after.DataJSON, changed, envelope); err != nil {
			return err
		}

		result = toSettingsDomain(after)
		return nil
	})
	if err != nil {
		return domain.SettingsDocument{}, err
	}

	return result, nil
}

// ResetWithEvents deletes every stored section of a tenant and records one
// settings.reset event for aggregate "all". The event is recorded even when
// nothing was stored.
func (s *SettingsStore) ResetWithEvents(ctx context.Context, tenantID string, meta domain.MutationMetadata) (int64, error) {
	meta = meta.Normalize()
	var deleted int64

	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var existing []settingsDocumentModel
		if err := tx.Where("tenant_id = ?", tenantID).Order("section ASC").Find(&existing).Error; err != nil {
			return fmt.Errorf("load settings before reset: %w", err)
		}

		res := tx.Where("tenant_id = ?", tenantID).Delete(&settingsDocumentModel{})
		if res.Error != nil {
			return fmt.Errorf("reset settings: %w", res.Error)
		}
		deleted = res.RowsAffected

		beforeDoc := make(map[string]json.RawMessage, len(existing))
		sections := make([]string, 0, len(existing))
		for _, m := range existing {
			beforeDoc[m.Section] = json.RawMessage(m.DataJSON)
			sections = append(sections, m.Section)
		}
		var beforeJSON string
		if len(existing) > 0 {
			beforeJSON = string(mustJSON(beforeDoc))
		}

		aggregateVersion, err := nextAggregateVersion(tx.DB, tenantID, domain.AggregateAll)
		if err != nil {
			return err
		}

		envelope := domain.EventEnvelope{
			EventID:          uuid.NewString(),
			EventType:        domain.EventSettingsReset,
			SchemaVersion:    domain.CurrentEventSchemaVersion,
			TenantID:         tenantID,
			AggregateType:    domain.AggregateSettings,
			AggregateID:      domain.AggregateAll,
			AggregateVersion: aggregateVersion,
			OccurredAt:       meta.OccurredAt.UTC(),
			CorrelationID:    meta.CorrelationID,
			CausationID:      meta.CausationID,
			Actor:            meta.Actor,
			Source:           meta.Source,
			Payload: mustJSON(map[string]any{
				"sections": sections,
			}),
		}

		return insertAuditAndOutbox(tx.DB, meta, beforeJSON, "", sections, envelope)
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

func (s *SettingsStore) Get(ctx context.Context, tenantID string, section domain.Section) (domain.SettingsDocument, error) {
	var model settingsDocumentModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("tenant_id = ? AND section = ?", tenantID, string(section)).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SettingsDocument{}, domain.ErrNotFound
		}
		return domain.SettingsDocument{}, fmt.Errorf("get settings: %w", err)
	}
	return toSettingsDomain(model), nil
}

func (s *SettingsStore) List(ctx context.Context, tenantID string) ([]domain.SettingsDocument, error) {
	var models []settingsDocumentModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("tenant_id = ?", tenantID).Order("section ASC").Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}

	result := make([]domain.SettingsDocument, 0, len(models))
	for _, model := range models {
		result = append(result, toSettingsDomain(model))
	}
	return result, nil
}

func toSettingsDomain(model settingsDocumentModel) domain.SettingsDocument {
	return domain.SettingsDocument{
		TenantID:  model.TenantID,
		Section:   domain.Section(model.Section),
		Data:      json.RawMessage(model.DataJSON),
		Version:   model.Version,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func nextAggregateVersion(tx *gorm.DB, tenantID, aggregateID string) (int64, error) {
	var maxVersion int64
	err := tx.Model(&auditEventModel{}).
		Where("tenant_id = ? AND aggregate_type = ? AND aggregate_id = ?", tenantID, domain.AggregateSettings, aggregateID).
		Select("COALESCE(MAX(aggregate_version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, fmt.Errorf("query aggregate version: %w", err)
	}
	return maxVersion + 1, nil
}

func insertAuditAndOutbox(tx *gorm.DB, meta domain.MutationMetadata, beforeJSON, afterJSON string, changed []string, envelope domain.EventEnvelope) error {
	audit := auditEventModel{
		EventID:           envelope.EventID,
		SchemaVersion:     envelope.SchemaVersion,
		TenantID:          envelope.TenantID,
		AggregateType:     envelope.AggregateType,
		AggregateID:       envelope.AggregateID,
		AggregateVersion:  envelope.AggregateVersion,
		Action:            envelope.EventType,
		Actor:             meta.Actor,
		Source:            meta.Source,
		RequestID:         meta.RequestID,
		CorrelationID:     meta.CorrelationID,
		CausationID:       meta.CausationID,
		IdempotencyKey:    meta.IdempotencyKey,
		BeforeJSON:        beforeJSON,
		AfterJSON:         afterJSON,
		ChangedFieldsJSON: string(mustJSON(changed)),
		OccurredAt:        envelope.OccurredAt,
	}
	if err := tx.Create(&audit).Error; err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	outbox := outboxEventModel{
		EventID:       envelope.EventID,
		TenantID:      envelope.TenantID,
		Topic:         envelope.Topic(),
		PayloadJSON:   string(payload),
		Status:        domain.OutboxPending,
		Attempts:      0,
		NextAttemptAt: envelope.OccurredAt,
		LastError:     "",
		CreatedAt:     envelope.OccurredAt,
	}
	if err := tx.Create(&outbox).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

// changedFields lists the dotted paths whose leaf values differ between two
// JSON documents. An empty document counts as {}.
func changedFields(beforeJSON, afterJSON string) ([]string, error) {
	before, err := flattenJSON(beforeJSON)
	if err != nil {
		return nil, fmt.Errorf("flatten previous settings: %w", err)
	}
	after, err := flattenJSON(afterJSON)
	if err != nil {
		return nil, fmt.Errorf("flatten settings: %w", err)
	}

	changed := make([]string, 0)
	for path, v := range after {
		if old, ok := before[path]; !ok || !reflect.DeepEqual(old, v) {
			changed = append(changed, path)
		}
	}
	for path := range before {
		if _, ok := after[path]; !ok {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func flattenJSON(doc string) (map[string]any, error) {
	out := map[string]any{}
	if doc == "" {
		return out, nil
	}
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return nil, err
	}
	flattenValue("", v, out)
	return out, nil
}

func flattenValue(prefix string, v any, out map[string]any) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			flattenValue(joinPath(prefix, k), child, out)
		}
	case []any:
		for i, child := range t {
			flattenValue(joinPath(prefix, strconv.Itoa(i)), child, out)
		}
	default:
		out[prefix] = v
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
