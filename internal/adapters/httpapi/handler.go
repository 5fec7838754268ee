package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/usecase"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/validation"
)

type ctxKey string

const (
	timeFormat             = "2006-01-02T15:04:05.999999999Z07:00"
	apiKeyCtxKey    ctxKey = "api_key"
	maxJSONBodySize        = 1 << 20
)

type Handler struct {
	settingsService *usecase.SettingsService
	ruleService     *usecase.RuleSchemaService
	auditService    *usecase.AuditService
	authService     *usecase.AuthService
	log             zerolog.Logger
	healthCheck     func(context.Context) error
}

type Option func(*Handler)

// WithLogger sets the logger requests are logged to.
func WithLogger(log zerolog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithHealthCheck makes /healthz report 503 when check fails.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(h *Handler) { h.healthCheck = check }
}

func NewHandler(
	settingsService *usecase.SettingsService,
	ruleService *usecase.RuleSchemaService,
	auditService *usecase.AuditService,
	authService *usecase.AuthService,
	opts ...Option,
) *Handler {
	h := &Handler{
		settingsService: settingsService,
		ruleService:     ruleService,
		auditService:    auditService,
		authService:     authService,
		log:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)
		pr.Get("/v1/settings", h.getSettings)
		pr.Get("/v1/settings/{section}", h.getSection)
		pr.Get("/v1/payment-methods", h.paymentMethods)
		pr.Get("/v1/rule-schemas/{section}", h.getRuleSchema)
		pr.Get("/v1/audit", h.listAudit)
		pr.Post("/v1/settings/{section}:validate", h.validateSection)

		pr.Group(func(ar chi.Router) {
			ar.Use(requireAdmin)
			ar.Put("/v1/settings/{section}", h.putSection)
			ar.Post("/v1/settings:reset", h.resetSettings)
			ar.Put("/v1/rule-schemas/{section}", h.putRuleSchema)
			ar.Delete("/v1/rule-schemas/{section}", h.deleteRuleSchema)
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.healthCheck != nil {
		if err := h.healthCheck(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ok": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

// logRequests puts a request scoped logger into the context and writes one
// access line per request.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := h.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		event := logger.Info()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.authService.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("authenticate api key")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyCtxKey, apiKey)
		logger := zerolog.Ctx(ctx).With().Str("tenant", apiKey.TenantID).Str("key", apiKey.Name).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx)))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !apiKeyFromContext(r.Context()).CanWrite() {
			handleDomainError(w, r, usecase.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

// readJSONBody returns the request body if it is a single JSON document.
func readJSONBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	var data json.RawMessage
	if err := decoder.Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return nil, false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return nil, false
	}
	return data, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Error().Err(err).Msg("encode json response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

type validationErrorResponse struct {
	Error  string              `json:"error"`
	Fields validation.ErrorMap `json:"fields"`
}

func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *domain.ErrSettingsInvalid
	var typeErr *validation.TypeError
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusUnprocessableEntity, validationErrorResponse{Error: "validation failed", Fields: invalid.Errors})
	case errors.Is(err, usecase.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, usecase.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrInvalidSection), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidKey),
		errors.Is(err, domain.ErrMalformedSettings),
		errors.Is(err, domain.ErrInvalidSchema),
		errors.As(err, &typeErr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func apiKeyFromContext(ctx context.Context) domain.APIKey {
	key, _ := ctx.Value(apiKeyCtxKey).(domain.APIKey)
	return key
}

func tenantIDFromContext(ctx context.Context) string {
	return apiKeyFromContext(ctx).TenantID
}

// mutationMetadata collects the tracing headers of a write request.
func mutationMetadata(r *http.Request) domain.MutationMetadata {
	key := apiKeyFromContext(r.Context())
	actor := key.Name
	if actor == "" {
		actor = "api"
	}
	return domain.MutationMetadata{
		Actor:          actor,
		Source:         "http",
		RequestID:      middleware.GetReqID(r.Context()),
		CorrelationID:  strings.TrimSpace(r.Header.Get("X-Correlation-Id")),
		CausationID:    strings.TrimSpace(r.Header.Get("X-Causation-Id")),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
}
