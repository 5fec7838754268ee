package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/ports"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/validation"
)

//go:embed schemas/rule-document.json
var ruleDocumentSchema []byte

const ruleDocumentSchemaURL = "rule-document.json"

// RuleSchemaService manages per-tenant rule overrides and resolves the rules
// a section is validated with. Resolved rules are cached per tenant section;
// every write bumps the section generation, and a load only caches its result
// when the generation it started under is still current.
type RuleSchemaService struct {
	repo    ports.RuleSchemaRepository
	meta    *santhosh.Schema
	builtin map[domain.Section]*validation.Compiled

	mu          sync.Mutex
	generations map[string]uint64
	cache       sync.Map // key: "tenantID/section" → *validation.Compiled
}

func NewRuleSchemaService(repo ports.RuleSchemaRepository) (*RuleSchemaService, error) {
	meta, err := compileSchema(ruleDocumentSchemaURL, ruleDocumentSchema)
	if err != nil {
		return nil, fmt.Errorf("compile rule document schema: %w", err)
	}
	builtin := make(map[domain.Section]*validation.Compiled, len(domain.Sections))
	for _, section := range domain.Sections {
		schema, err := domain.BuiltinRules(section)
		if err != nil {
			return nil, err
		}
		compiled, err := validation.Compile(schema)
		if err != nil {
			return nil, fmt.Errorf("compile %s rules: %w", section, err)
		}
		builtin[section] = compiled
	}
	return &RuleSchemaService{
		repo:        repo,
		meta:        meta,
		builtin:     builtin,
		generations: make(map[string]uint64),
	}, nil
}

// Upsert stores a rule document for one section of a tenant. The document must
// follow the rule document format and its kinds must fit the section.
func (s *RuleSchemaService) Upsert(ctx context.Context, tenantID string, section domain.Section, doc json.RawMessage) (domain.RuleSchema, error) {
	if err := domain.ValidateKey(tenantID); err != nil {
		return domain.RuleSchema{}, err
	}
	if _, err := domain.ParseSection(string(section)); err != nil {
		return domain.RuleSchema{}, err
	}
	if !json.Valid(doc) {
		return domain.RuleSchema{}, fmt.Errorf("%w: document must be valid json", domain.ErrInvalidSchema)
	}
	if err := runValidation(s.meta, doc); err != nil {
		return domain.RuleSchema{}, err
	}

	compiled, err := compileRuleDocument(doc)
	if err != nil {
		return domain.RuleSchema{}, err
	}
	if err := domain.CheckRulesFit(section, compiled); err != nil {
		return domain.RuleSchema{}, err
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return domain.RuleSchema{}, fmt.Errorf("compact rule document: %w", err)
	}
	rs, err := s.repo.Upsert(ctx, domain.RuleSchema{
		TenantID: tenantID,
		Section:  section,
		Schema:   buf.Bytes(),
	})
	if err != nil {
		return domain.RuleSchema{}, err
	}
	s.invalidate(cacheKey(tenantID, section))
	return rs, nil
}

// Get returns the stored override, or domain.ErrNotFound.
func (s *RuleSchemaService) Get(ctx context.Context, tenantID string, section domain.Section) (domain.RuleSchema, error) {
	if err := domain.ValidateKey(tenantID); err != nil {
		return domain.RuleSchema{}, err
	}
	if _, err := domain.ParseSection(string(section)); err != nil {
		return domain.RuleSchema{}, err
	}
	return s.repo.Get(ctx, tenantID, section)
}

// Delete removes an override so the section falls back to the built-in rules.
func (s *RuleSchemaService) Delete(ctx context.Context, tenantID string, section domain.Section) (bool, error) {
	if err := domain.ValidateKey(tenantID); err != nil {
		return false, err
	}
	if _, err := domain.ParseSection(string(section)); err != nil {
		return false, err
	}
	deleted, err := s.repo.Delete(ctx, tenantID, section)
	if err != nil {
		return false, err
	}
	s.invalidate(cacheKey(tenantID, section))
	return deleted, nil
}

// Builtin returns the compiled built-in rules of section.
func (s *RuleSchemaService) Builtin(section domain.Section) (*validation.Compiled, error) {
	compiled, ok := s.builtin[section]
	if !ok {
		return nil, domain.ErrInvalidSection
	}
	return compiled, nil
}

// Effective returns the rules section values are checked with: the tenant
// override when one is stored, the built-in rules otherwise.
func (s *RuleSchemaService) Effective(ctx context.Context, tenantID string, section domain.Section) (*validation.Compiled, error) {
	builtin, err := s.Builtin(section)
	if err != nil {
		return nil, err
	}
	key := cacheKey(tenantID, section)
	if cached, ok := s.cache.Load(key); ok {
		return cached.(*validation.Compiled), nil
	}

	gen := s.generation(key)
	rs, err := s.repo.Get(ctx, tenantID, section)
	if errors.Is(err, domain.ErrNotFound) {
		s.storeIfCurrent(key, gen, builtin)
		return builtin, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rule schema: %w", err)
	}

	compiled, err := compileRuleDocument(rs.Schema)
	if err != nil {
		return nil, fmt.Errorf("compile stored rule schema: %w", err)
	}
	s.storeIfCurrent(key, gen, compiled)
	return compiled, nil
}

func (s *RuleSchemaService) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[key]
}

// invalidate drops the cached rules of key after a write.
func (s *RuleSchemaService) invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[key]++
	s.cache.Delete(key)
}

// storeIfCurrent caches rules loaded under gen unless a write happened since.
func (s *RuleSchemaService) storeIfCurrent(key string, gen uint64, rules *validation.Compiled) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[key] == gen {
		s.cache.Store(key, rules)
	}
}

// Document returns the effective rule document of a section and whether it is
// a tenant override.
func (s *RuleSchemaService) Document(ctx context.Context, tenantID string, section domain.Section) (json.RawMessage, bool, error) {
	rs, err := s.Get(ctx, tenantID, section)
	if err == nil {
		return rs.Schema, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	schema, err := domain.BuiltinRules(section)
	if err != nil {
		return nil, false, err
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, false, fmt.Errorf("encode builtin rules: %w", err)
	}
	return data, false, nil
}

func cacheKey(tenantID string, section domain.Section) string {
	return tenantID + "/" + string(section)
}

func compileRuleDocument(doc json.RawMessage) (*validation.Compiled, error) {
	schema, err := validation.ParseSchemaJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSchema, err)
	}
	compiled, err := validation.Compile(schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSchema, err)
	}
	return compiled, nil
}

// compileSchema builds a *santhosh.Schema from raw JSON.
func compileSchema(url string, schemaJSON []byte) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource(url, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// runValidation checks a rule document against the document format.
func runValidation(sch *santhosh.Schema, data json.RawMessage) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSchema, err)
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%w: %s", domain.ErrInvalidSchema, strings.Join(collectValidationErrors(ve), "; "))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidSchema, err)
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.InstanceLocation+": "+ve.Message)
	}
	return msgs
}
