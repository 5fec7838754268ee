package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/ports"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/validation"
)

// SettingsService reads and writes the admin settings of a tenant. Sections a
// tenant never saved are served from the defaults.
type SettingsService struct {
	store ports.SettingsStore
	rules *RuleSchemaService
}

func NewSettingsService(store ports.SettingsStore, rules *RuleSchemaService) *SettingsService {
	return &SettingsService{store: store, rules: rules}
}

// PaymentMethodsView lists what a checkout may offer. Provider credentials
// are left out.
type PaymentMethodsView struct {
	Methods   []string `json:"methods"`
	Providers []string `json:"mobileMoneyProviders"`
	Currency  string   `json:"currency"`
}

func (s *SettingsService) Fetch(ctx context.Context, tenantID string) (domain.Settings, error) {
	if err := domain.ValidateKey(tenantID); err != nil {
		return domain.Settings{}, err
	}
	docs, err := s.store.List(ctx, tenantID)
	if err != nil {
		return domain.Settings{}, err
	}
	settings := domain.DefaultSettings()
	for _, doc := range docs {
		value, err := domain.DecodeSection(doc.Section, doc.Data)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("decode stored %s settings: %w", doc.Section, err)
		}
		if err := settings.Apply(doc.Section, value); err != nil {
			return domain.Settings{}, err
		}
	}
	return settings, nil
}

// FetchSection returns the value of one section and its stored version; the
// version is 0 while the section still holds the defaults.
func (s *SettingsService) FetchSection(ctx context.Context, tenantID string, section domain.Section) (any, int64, error) {
	if err := domain.ValidateKey(tenantID); err != nil {
		return nil, 0, err
	}
	if _, err := domain.ParseSection(string(section)); err != nil {
		return nil, 0, err
	}
	doc, err := s.store.Get(ctx, tenantID, section)
	if errors.Is(err, domain.ErrNotFound) {
		value, err := domain.DefaultSettings().Section(section)
		return value, 0, err
	}
	if err != nil {
		return nil, 0, err
	}
	value, err := domain.DecodeSection(section, doc.Data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode stored %s settings: %w", section, err)
	}
	return value, doc.Version, nil
}

// Validate checks a section payload without storing it. A malformed payload
// is an error; rule violations are returned in the map.
func (s *SettingsService) Validate(ctx context.Context, tenantID string, section domain.Section, raw json.RawMessage) (validation.ErrorMap, error) {
	_, errs, err := s.check(ctx, tenantID, section, raw)
	return errs, err
}

// Update replaces one section. Violations are reported as
// *domain.ErrSettingsInvalid and nothing is stored.
func (s *SettingsService) Update(ctx context.Context, tenantID string, section domain.Section, raw json.RawMessage, meta domain.MutationMetadata) (domain.SettingsDocument, error) {
	value, errs, err := s.check(ctx, tenantID, section, raw)
	if err != nil {
		return domain.SettingsDocument{}, err
	}
	if !errs.Empty() {
		return domain.SettingsDocument{}, &domain.ErrSettingsInvalid{Section: section, Errors: errs}
	}

	data, err := json.Marshal(value)
	if err != nil {
		return domain.SettingsDocument{}, fmt.Errorf("encode %s settings: %w", section, err)
	}
	return s.store.UpsertWithEvents(ctx, domain.SettingsDocument{
		TenantID: tenantID,
		Section:  section,
		Data:     data,
	}, meta.Normalize())
}

func (s *SettingsService) UpdateGeneral(ctx context.Context, tenantID string, general domain.GeneralSettings, meta domain.MutationMetadata) (domain.SettingsDocument, error) {
	return s.updateValue(ctx, tenantID, domain.SectionGeneral, general, meta)
}

func (s *SettingsService) UpdateService(ctx context.Context, tenantID string, service domain.ServiceSettings, meta domain.MutationMetadata) (domain.SettingsDocument, error) {
	return s.updateValue(ctx, tenantID, domain.SectionService, service, meta)
}

func (s *SettingsService) UpdatePayment(ctx context.Context, tenantID string, payment domain.PaymentSettings, meta domain.MutationMetadata) (domain.SettingsDocument, error) {
	return s.updateValue(ctx, tenantID, domain.SectionPayment, payment, meta)
}

func (s *SettingsService) updateValue(ctx context.Context, tenantID string, section domain.Section, value any, meta domain.MutationMetadata) (domain.SettingsDocument, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return domain.SettingsDocument{}, fmt.Errorf("encode %s settings: %w", section, err)
	}
	return s.Update(ctx, tenantID, section, raw, meta)
}

// Reset drops every stored section of a tenant and returns the defaults.
func (s *SettingsService) Reset(ctx context.Context, tenantID string, meta domain.MutationMetadata) (domain.Settings, error) {
	if err := domain.ValidateKey(tenantID); err != nil {
		return domain.Settings{}, err
	}
	if _, err := s.store.ResetWithEvents(ctx, tenantID, meta.Normalize()); err != nil {
		return domain.Settings{}, err
	}
	return domain.DefaultSettings(), nil
}

func (s *SettingsService) PaymentMethods(ctx context.Context, tenantID string) (PaymentMethodsView, error) {
	settings, err := s.Fetch(ctx, tenantID)
	if err != nil {
		return PaymentMethodsView{}, err
	}
	view := PaymentMethodsView{
		Methods:   domain.ActivePaymentMethods(settings.Payment),
		Providers: []string{},
		Currency:  settings.General.Site.Currency,
	}
	if view.Currency == "" {
		view.Currency = domain.DefaultCurrency
	}
	if settings.Payment.MobileMoney.Enabled {
		for _, p := range domain.ActiveMobileMoneyProviders(settings.Payment) {
			view.Providers = append(view.Providers, p.Name)
		}
	}
	return view, nil
}

func (s *SettingsService) check(ctx context.Context, tenantID string, section domain.Section, raw json.RawMessage) (any, validation.ErrorMap, error) {
	if err := domain.ValidateKey(tenantID); err != nil {
		return nil, nil, err
	}
	if _, err := domain.ParseSection(string(section)); err != nil {
		return nil, nil, err
	}
	rules, err := s.rules.Effective(ctx, tenantID, section)
	if err != nil {
		return nil, nil, err
	}
	return domain.ValidateDocument(section, raw, rules)
}
