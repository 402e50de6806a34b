package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/instrumentkit/instrumentkit/pkg/export"
	"github.com/instrumentkit/instrumentkit/pkg/types"
	"github.com/instrumentkit/instrumentkit/server/internal/alerts"
	"github.com/instrumentkit/instrumentkit/server/internal/store"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// Handler serves the /api/v1/* read endpoints and /metrics.
type Handler struct {
	store  *store.Store
	alerts *alerts.Engine
	mux    *http.ServeMux
	now    func() time.Time
}

// New creates a Handler reading from st and ae and registers all routes.
func New(st *store.Store, ae *alerts.Engine) *Handler {
	h := &Handler{store: st, alerts: ae, mux: http.NewServeMux(), now: time.Now}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/devices", h.devices)
	h.mux.HandleFunc("/api/v1/runs", h.listRuns)
	h.mux.HandleFunc("/api/v1/runs/", h.getRun) // subtree: extracts {id}
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/summary", h.summary)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Summary builds the health and per-device view from the newest report of
// every device.
func (h *Handler) Summary(ctx context.Context) (SummaryResponse, error) {
	latest, err := h.store.Latest(ctx)
	if err != nil {
		return SummaryResponse{}, err
	}
	counts, err := h.store.RunCounts(ctx)
	if err != nil {
		return SummaryResponse{}, err
	}

	resp := SummaryResponse{
		Health:      h.buildHealth(latest, counts),
		Devices:     make([]DeviceResponse, 0, len(latest)),
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	}
	for _, rep := range latest {
		resp.Devices = append(resp.Devices, DeviceResponse{
			Device:         rep.Device,
			State:          stateOf(rep),
			Score:          rep.Health.Score,
			PassRate:       rep.Health.PassRate,
			CompletionRate: rep.Health.CompletionRate,
			CollectionRate: rep.Health.CollectionRate,
			Runs:           counts[rep.Device],
			LastRunID:      rep.ID,
			LastScenario:   rep.Scenario,
			LastSeen:       rep.StartedAt.UTC().Format(time.RFC3339),
			Diagnostics:    computeDiagnostics(rep),
		})
	}
	return resp, nil
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: overall score and per-state device counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s, err := h.Summary(r.Context())
	if err != nil {
		storeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, s.Health)
}

// devices returns GET /api/v1/devices: one entry per device that reported.
func (h *Handler) devices(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s, err := h.Summary(r.Context())
	if err != nil {
		storeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, s.Devices)
}

// listRuns returns GET /api/v1/runs?device=&limit=: reports newest first.
func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}
	runs, err := h.store.List(r.Context(), r.URL.Query().Get("device"), limit)
	if err != nil {
		storeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, runs)
}

// getRun returns GET /api/v1/runs/{id}: one report with diagnostics.
func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if id == "" {
		h.listRuns(w, r)
		return
	}
	rep, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		jsonErr(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		storeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, RunResponse{RunReport: rep, Diagnostics: computeDiagnostics(rep)})
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// summary returns GET /api/v1/summary: health plus devices in one payload.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s, err := h.Summary(r.Context())
	if err != nil {
		storeErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, s)
}

// metrics returns GET /metrics: the newest report per device in the
// Prometheus text exposition format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	latest, err := h.store.Latest(r.Context())
	if err != nil {
		storeErr(w, err)
		return
	}
	counts, err := h.store.RunCounts(r.Context())
	if err != nil {
		storeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType())
	if err := export.Write(w, latest, counts); err != nil {
		slog.Error("api: write metrics", "err", err)
	}
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) buildHealth(latest []*types.RunReport, counts map[string]int) HealthResponse {
	resp := HealthResponse{DeviceCount: len(latest)}
	for _, n := range counts {
		resp.RunCount += n
	}
	if h.alerts != nil {
		resp.AlertCount = h.alerts.Firing()
	}
	if len(latest) == 0 {
		resp.State = types.StateUnknown
		return resp
	}

	var total float64
	scored := 0
	for _, rep := range latest {
		switch stateOf(rep) {
		case types.StateHealthy:
			resp.HealthyCount++
		case types.StateDegraded:
			resp.DegradedCount++
		case types.StateCritical:
			resp.CriticalCount++
		default:
			resp.UnknownCount++
			continue
		}
		total += rep.Health.Score
		scored++
	}
	if scored == 0 {
		resp.State = types.StateUnknown
		return resp
	}
	resp.OverallScore = total / float64(scored)
	resp.State = stateFromScore(resp.OverallScore)
	return resp
}

func stateOf(rep *types.RunReport) string {
	if rep.Health.State == "" {
		return types.StateUnknown
	}
	return rep.Health.State
}

// stateFromScore converts a 0-100 score to a health state string, using the
// thresholds of the host-side scoring.
func stateFromScore(score float64) string {
	switch {
	case score >= 85:
		return types.StateHealthy
	case score >= 60:
		return types.StateDegraded
	default:
		return types.StateCritical
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func storeErr(w http.ResponseWriter, err error) {
	slog.Error("api: store query failed", "err", err)
	jsonErr(w, http.StatusInternalServerError, "internal error")
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
