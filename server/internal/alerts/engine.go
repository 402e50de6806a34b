package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/instrumentkit/instrumentkit/pkg/types"
	"github.com/instrumentkit/instrumentkit/server/internal/config"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Device     string     `json:"device"`
	RunID      string     `json:"run_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against incoming run reports and delivers
// webhook notifications when rules fire or resolve. Alerts are keyed by rule
// and device.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rules    []rule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: "ruleName:device"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // resolved alerts, oldest first

	client *http.Client
	now    func() time.Time
}

// New creates an Engine from the server alert configuration.
// Rules whose condition cannot be parsed are logged and skipped.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	e.SetConfig(cfg)
	return e
}

// SetConfig replaces the rules and webhooks. Firing alerts of rules that no
// longer exist stay active until their key is evaluated again.
func (e *Engine) SetConfig(cfg config.AlertsConfig) {
	rules := make([]rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		c, err := parseCondition(r.Condition)
		if err != nil {
			slog.Error("alerts: skipping rule", "rule", r.Name, "err", err)
			continue
		}
		rules = append(rules, rule{AlertRule: r, cond: c})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	e.webhooks = cfg.Webhooks
}

// Rules returns the number of active rules.
func (e *Engine) Rules() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rules)
}

// Evaluate tests every rule against rep. Alerts that fire are recorded and
// delivered asynchronously; firing alerts whose condition no longer holds for
// the device are resolved.
func (e *Engine) Evaluate(rep *types.RunReport) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, r := range e.rules {
		key := r.Name + ":" + rep.Device
		fires, value := r.cond.eval(rep)

		if fires {
			cooldown := r.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
				continue
			}
			sev := r.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:       uuid.NewString(),
				RuleName: r.Name,
				Device:   rep.Device,
				RunID:    rep.ID,
				Severity: sev,
				Value:    value,
				Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f, run %s)",
					sev, r.Name, rep.Device, r.Condition, value, rep.ID),
				FiredAt: now,
				State:   StateFiring,
			}
			e.active[key] = a
			e.lastFire[key] = now

			slog.Warn("alerts: fired",
				"rule", r.Name,
				"device", rep.Device,
				"run", rep.ID,
				"value", value,
				"severity", sev,
			)
			e.dispatch(*a)
			continue
		}

		a, ok := e.active[key]
		if !ok {
			continue
		}
		resolved := now
		a.State = StateResolved
		a.ResolvedAt = &resolved
		delete(e.active, key)

		e.history = append(e.history, a)
		if len(e.history) > maxHistoryLen {
			e.history = e.history[len(e.history)-maxHistoryLen:]
		}
		slog.Info("alerts: resolved", "rule", r.Name, "device", rep.Device, "run", rep.ID)
		e.dispatch(*a)
	}
}

// Active returns copies of all firing alerts plus alerts resolved within the
// past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))
	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FiredAt.Equal(out[j].FiredAt) {
			return out[i].FiredAt.After(out[j].FiredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Firing returns the number of currently firing alerts.
func (e *Engine) Firing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// dispatch must be called with e.mu held.
func (e *Engine) dispatch(a Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	hooks := append([]config.WebhookConfig(nil), e.webhooks...)
	go e.deliver(hooks, &a)
}
