package winback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medspa-winback/internal/tenancy"
	"github.com/wolfman30/medspa-winback/pkg/logging"
)

// SettingsRepository reads and writes tenant settings.
type SettingsRepository interface {
	Get(ctx context.Context, tenantID string) (*Settings, error)
	Save(ctx context.Context, settings *Settings) (*Settings, error)
}

// AttemptReader exposes the ledger to the admin dashboard.
type AttemptReader interface {
	List(ctx context.Context, tenantID string, result *AttemptResult, limit int) ([]Attempt, error)
	Stats(ctx context.Context, tenantID string) (*Stats, error)
}

// Jobs are the operations the scheduler and the dashboard can trigger.
type Jobs interface {
	Run(ctx context.Context) (*RunSummary, error)
	Attribute(ctx context.Context) (*AttributionRunSummary, error)
	Preview(ctx context.Context, tenantID string, dayOffset int) (*ScanResult, error)
}

// Handler provides HTTP endpoints for win-back configuration and runs.
type Handler struct {
	settings SettingsRepository
	attempts AttemptReader
	jobs     Jobs
	logger   *logging.Logger
}

// NewHandler creates a win-back HTTP handler.
func NewHandler(settings SettingsRepository, attempts AttemptReader, jobs Jobs, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{settings: settings, attempts: attempts, jobs: jobs, logger: logger}
}

// RegisterRoutes mounts tenant admin endpoints.
// Expected to be mounted under /api/v1/orgs/{orgID}/winback
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.getSettings)
	r.Put("/settings", h.putSettings)
	r.Post("/settings/preset", h.applyPreset)
	r.Get("/presets", h.listPresets)
	r.Get("/attempts", h.listAttempts)
	r.Get("/stats", h.getStats)
	r.Get("/preview", h.preview)
}

// RegisterSchedulerRoutes mounts the run triggers.
// Expected to be mounted under /internal/winback behind the scheduler secret.
func (h *Handler) RegisterSchedulerRoutes(r chi.Router) {
	r.Post("/run", h.run)
	r.Post("/attribute", h.attribute)
}

type settingsRequest struct {
	Enabled     bool         `json:"enabled"`
	TenantName  string       `json:"tenant_name"`
	BookingLink string       `json:"booking_link"`
	SMSFrom     string       `json:"sms_from"`
	Steps       []StepConfig `json:"steps"`
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	orgID := tenantID(r)
	if orgID == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}

	settings, err := h.settings.Get(r.Context(), orgID)
	if err != nil {
		h.logger.Error("winback handler: get settings", "error", err, "tenant_id", orgID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	orgID := tenantID(r)
	if orgID == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	h.save(w, r, &Settings{
		TenantID:    orgID,
		Enabled:     req.Enabled,
		TenantName:  req.TenantName,
		BookingLink: req.BookingLink,
		SMSFrom:     req.SMSFrom,
		Steps:       req.Steps,
	})
}

func (h *Handler) applyPreset(w http.ResponseWriter, r *http.Request) {
	orgID := tenantID(r)
	if orgID == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	steps, err := PresetSteps(req.Name)
	if errors.Is(err, ErrUnknownPreset) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("winback handler: load preset", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	current, err := h.settings.Get(r.Context(), orgID)
	if err != nil {
		h.logger.Error("winback handler: get settings", "error", err, "tenant_id", orgID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	updated := *current
	updated.Steps = steps
	h.save(w, r, &updated)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, settings *Settings) {
	saved, err := h.settings.Save(r.Context(), settings)
	var verr *ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "invalid settings",
			"problems": verr.Problems,
		})
		return
	}
	if err != nil {
		h.logger.Error("winback handler: save settings", "error", err, "tenant_id", settings.TenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.logger.WithTenant(saved.TenantID).Info("winback settings updated", "enabled", saved.Enabled, "steps", len(saved.Steps))
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) listPresets(w http.ResponseWriter, _ *http.Request) {
	presets, err := Presets()
	if err != nil {
		h.logger.Error("winback handler: list presets", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": presets})
}

func (h *Handler) listAttempts(w http.ResponseWriter, r *http.Request) {
	orgID := tenantID(r)
	if orgID == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}

	var resultFilter *AttemptResult
	if s := r.URL.Query().Get("result"); s != "" {
		res := AttemptResult(s)
		if res != ResultSent && res != ResultConverted {
			http.Error(w, "result must be sent or converted", http.StatusBadRequest)
			return
		}
		resultFilter = &res
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	attempts, err := h.attempts.List(r.Context(), orgID, resultFilter, limit)
	if err != nil {
		h.logger.Error("winback handler: list attempts", "error", err, "tenant_id", orgID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if attempts == nil {
		attempts = []Attempt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attempts": attempts,
		"count":    len(attempts),
	})
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	orgID := tenantID(r)
	if orgID == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}

	stats, err := h.attempts.Stats(r.Context(), orgID)
	if err != nil {
		h.logger.Error("winback handler: stats", "error", err, "tenant_id", orgID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type previewCustomer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HasPhone  bool      `json:"has_phone"`
	HasEmail  bool      `json:"has_email"`
	LastVisit time.Time `json:"last_visit"`
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	orgID := tenantID(r)
	if orgID == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 1 || offset > MaxDayOffset {
		http.Error(w, fmt.Sprintf("offset must be between 1 and %d", MaxDayOffset), http.StatusBadRequest)
		return
	}

	res, err := h.jobs.Preview(r.Context(), orgID, offset)
	if err != nil {
		h.logger.Error("winback handler: preview", "error", err, "tenant_id", orgID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	eligible := make([]previewCustomer, 0, len(res.Eligible))
	for i := range res.Eligible {
		c := &res.Eligible[i]
		last, _ := c.LastBooking()
		eligible = append(eligible, previewCustomer{
			ID:        c.ID,
			Name:      c.FullName(),
			HasPhone:  c.Phone != "",
			HasEmail:  c.Email != "",
			LastVisit: last.ScheduledAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day_offset":      offset,
		"eligible":        eligible,
		"already_handled": len(res.Handled),
	})
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	// a dropped trigger connection must not abort a half-finished run
	summary, err := h.jobs.Run(context.WithoutCancel(r.Context()))
	if errors.Is(err, ErrRunInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("winback handler: run", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) attribute(w http.ResponseWriter, r *http.Request) {
	summary, err := h.jobs.Attribute(context.WithoutCancel(r.Context()))
	if errors.Is(err, ErrRunInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("winback handler: attribute", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// tenantID prefers the tenant resolved by the auth middleware over the raw
// path parameter.
func tenantID(r *http.Request) string {
	if id, ok := tenancy.TenantIDFromContext(r.Context()); ok {
		return id
	}
	return chi.URLParam(r, "orgID")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
