package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/validation"
)

type sectionResponse struct {
	Section   domain.Section `json:"section"`
	Version   int64          `json:"version"`
	Data      any            `json:"data"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

type validateResponse struct {
	Valid  bool                `json:"valid"`
	Fields validation.ErrorMap `json:"fields"`
}

type ruleSchemaResponse struct {
	Section   domain.Section  `json:"section"`
	Custom    bool            `json:"custom"`
	Schema    json.RawMessage `json:"schema"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

type auditResponse struct {
	Events    []domain.AuditTrailEvent `json:"events"`
	NextAfter int64                    `json:"next_after,omitempty"`
}

func sectionParam(r *http.Request) domain.Section {
	return domain.Section(chi.URLParam(r, "section"))
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsService.Fetch(r.Context(), tenantIDFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) getSection(w http.ResponseWriter, r *http.Request) {
	section := sectionParam(r)
	value, version, err := h.settingsService.FetchSection(r.Context(), tenantIDFromContext(r.Context()), section)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sectionResponse{Section: section, Version: version, Data: value})
}

func (h *Handler) putSection(w http.ResponseWriter, r *http.Request) {
	section := sectionParam(r)
	if _, err := domain.ParseSection(string(section)); err != nil {
		handleDomainError(w, r, err)
		return
	}
	data, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	doc, err := h.settingsService.Update(r.Context(), tenantIDFromContext(r.Context()), section, data, mutationMetadata(r))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sectionResponse{
		Section:   doc.Section,
		Version:   doc.Version,
		Data:      doc.Data,
		UpdatedAt: doc.UpdatedAt.UTC().Format(timeFormat),
	})
}

func (h *Handler) validateSection(w http.ResponseWriter, r *http.Request) {
	section := sectionParam(r)
	if _, err := domain.ParseSection(string(section)); err != nil {
		handleDomainError(w, r, err)
		return
	}
	data, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	errs, err := h.settingsService.Validate(r.Context(), tenantIDFromContext(r.Context()), section, data)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if errs == nil {
		errs = validation.ErrorMap{}
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: errs.Empty(), Fields: errs})
}

func (h *Handler) resetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsService.Reset(r.Context(), tenantIDFromContext(r.Context()), mutationMetadata(r))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) paymentMethods(w http.ResponseWriter, r *http.Request) {
	view, err := h.settingsService.PaymentMethods(r.Context(), tenantIDFromContext(r.Context()))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) getRuleSchema(w http.ResponseWriter, r *http.Request) {
	section := sectionParam(r)
	doc, custom, err := h.ruleService.Document(r.Context(), tenantIDFromContext(r.Context()), section)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleSchemaResponse{Section: section, Custom: custom, Schema: doc})
}

func (h *Handler) putRuleSchema(w http.ResponseWriter, r *http.Request) {
	section := sectionParam(r)
	if _, err := domain.ParseSection(string(section)); err != nil {
		handleDomainError(w, r, err)
		return
	}
	data, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	rs, err := h.ruleService.Upsert(r.Context(), tenantIDFromContext(r.Context()), section, data)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleSchemaResponse{
		Section:   rs.Section,
		Custom:    true,
		Schema:    rs.Schema,
		UpdatedAt: rs.UpdatedAt.UTC().Format(timeFormat),
	})
}

func (h *Handler) deleteRuleSchema(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.ruleService.Delete(r.Context(), tenantIDFromContext(r.Context()), sectionParam(r))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = parsed
	}

	events, err := h.auditService.List(r.Context(), domain.AuditFilter{
		TenantID: tenantIDFromContext(r.Context()),
		Section:  r.URL.Query().Get("section"),
		Action:   r.URL.Query().Get("action"),
		AfterID:  after,
		Limit:    limit,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	resp := auditResponse{Events: events}
	if resp.Events == nil {
		resp.Events = []domain.AuditTrailEvent{}
	}
	if n := len(events); n > 0 && n == limit {
		resp.NextAfter = events[n-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}
