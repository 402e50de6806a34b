package receiver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/instrumentkit/instrumentkit/pkg/types"
	"github.com/instrumentkit/instrumentkit/server/internal/store"
)

// Path is where run reports are posted.
const Path = "/api/v1/reports"

// Evaluator checks alert rules against a stored report.
type Evaluator interface {
	Evaluate(rep *types.RunReport)
}

// Publisher forwards a stored report to live subscribers.
type Publisher interface {
	Publish(rep *types.RunReport)
}

// Receiver accepts run reports posted by host agents.
type Receiver struct {
	store   *store.Store
	maxBody int64
	alerts  Evaluator
	pub     Publisher
}

// New creates a Receiver that writes accepted reports to st. Reports larger
// than maxBody bytes are rejected. ev and pub may be nil.
func New(st *store.Store, maxBody int64, ev Evaluator, pub Publisher) *Receiver {
	return &Receiver{store: st, maxBody: maxBody, alerts: ev, pub: pub}
}

type acceptedResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP handles POST /api/v1/reports. Authentication is enforced by the
// middleware in front of it, so only structural validation happens here.
//
// 400 is returned for anything that will never succeed on retry.
func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		reply(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var rep types.RunReport
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, rc.maxBody)).Decode(&rep); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			reply(w, http.StatusBadRequest, errorResponse{Error: "report too large"})
			return
		}
		reply(w, http.StatusBadRequest, errorResponse{Error: "invalid report: " + err.Error()})
		return
	}
	if err := rep.Validate(); err != nil {
		reply(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := rc.store.Put(r.Context(), &rep); err != nil {
		slog.Error("receiver: store report", "id", rep.ID, "err", err)
		reply(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	slog.Debug("receiver: report stored",
		"id", rep.ID,
		"device", rep.Device,
		"scenario", rep.Scenario,
		"state", rep.Health.State,
		"score", rep.Health.Score,
	)

	if rc.alerts != nil {
		rc.alerts.Evaluate(&rep)
	}
	if rc.pub != nil {
		rc.pub.Publish(&rep)
	}

	reply(w, http.StatusAccepted, acceptedResponse{ID: rep.ID})
}

func reply(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
