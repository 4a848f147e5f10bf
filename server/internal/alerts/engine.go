package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/server/internal/config"
	"github.com/nusantararadius/notifyhub/server/internal/notify"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Condition  string     `json:"condition"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against metrics snapshots, publishes a
// notification on every fire and resolve, and delivers webhooks.
//
// Engine is safe for concurrent use.
type Engine struct {
	webhooks []config.WebhookConfig
	ids      *notify.IDSource
	pub      notify.Publisher
	client   *http.Client
	now      func() time.Time // injectable for deterministic tests

	mu       sync.Mutex
	rules    []config.AlertRule
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts
}

// New creates an Engine. pub may be nil, in which case alerts are only
// logged and sent to webhooks. An Engine with no rules is valid; Evaluate
// becomes a no-op. A malformed rule condition or an unknown webhook type
// is an error.
func New(cfg config.AlertsConfig, ids *notify.IDSource, pub notify.Publisher) (*Engine, error) {
	if err := checkRules(cfg.Rules); err != nil {
		return nil, err
	}
	for i, wh := range cfg.Webhooks {
		if _, ok := webhookFormats[wh.Type]; !ok {
			return nil, fmt.Errorf("alerts: webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		ids:      ids,
		pub:      pub,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{},
		now:      time.Now,
	}, nil
}

// SetRules replaces the rule set. Firing alerts whose rule disappears are
// dropped without a resolution. If any rule is malformed the previous set
// stays in place.
func (e *Engine) SetRules(rules []config.AlertRule) error {
	if err := checkRules(rules); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	keep := make(map[string]bool, len(rules))
	for _, r := range rules {
		keep[r.Name] = true
	}
	for name := range e.active {
		if !keep[name] {
			delete(e.active, name)
		}
	}
	return nil
}

func checkRules(rules []config.AlertRule) error {
	for _, r := range rules {
		if err := ValidateCondition(r.Condition); err != nil {
			return fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
	}
	return nil
}

// PublishMetrics implements metrics.Sink.
func (e *Engine) PublishMetrics(ctx context.Context, snap types.MetricsSnapshot) error {
	e.Evaluate(ctx, snap)
	return nil
}

// Evaluate tests all configured rules against snap.
// Alerts that fire are stored, published and sent to webhooks asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(ctx context.Context, snap types.MetricsSnapshot) {
	e.mu.Lock()
	rules := e.rules
	e.mu.Unlock()
	if len(rules) == 0 {
		return
	}

	now := e.now()
	for _, rule := range rules {
		fires, value := evalCondition(rule.Condition, snap)
		if a := e.transition(rule, fires, value, now); a != nil {
			n := e.announce(ctx, a)
			go e.deliver(n, a)
		}
	}
}

// transition updates rule state and returns a copy of the alert when it
// fired or resolved on this evaluation.
func (e *Engine) transition(rule config.AlertRule, fires bool, value float64, now time.Time) *Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := rule.Name
	if fires {
		cooldown := rule.Cooldown
		if cooldown <= 0 {
			cooldown = defaultCooldown
		}
		if now.Sub(e.lastFire[key]) <= cooldown {
			return nil
		}
		sev := rule.Severity
		if sev == "" {
			sev = "warning"
		}
		a := &Alert{
			ID:        fmt.Sprintf("%s:%d", rule.Name, now.UnixNano()),
			RuleName:  rule.Name,
			Condition: rule.Condition,
			Severity:  sev,
			Value:     value,
			Message:   fmt.Sprintf("%s fired: %s (value %.2f)", rule.Name, rule.Condition, value),
			FiredAt:   now,
			State:     "firing",
		}
		e.active[key] = a
		e.lastFire[key] = now
		slog.Warn("alerts: alert fired", "rule", rule.Name, "value", value, "severity", sev)
		cp := *a
		return &cp
	}

	a, ok := e.active[key]
	if !ok || a.State != "firing" {
		return nil
	}
	resolved := now
	a.State = "resolved"
	a.ResolvedAt = &resolved
	a.Message = fmt.Sprintf("%s resolved: %s no longer holds", rule.Name, rule.Condition)
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	slog.Info("alerts: alert resolved", "rule", rule.Name)
	cp := *a
	return &cp
}

// announce publishes a as a system notification to connected clients and
// returns the notification it built.
func (e *Engine) announce(ctx context.Context, a *Alert) types.Notification {
	n := types.Notification{
		Type:     types.TypeSystem,
		Title:    "Alert: " + a.RuleName,
		Message:  a.Message,
		Severity: notificationSeverity(a),
	}
	if a.State == "resolved" {
		n.Title = "Resolved: " + a.RuleName
	}
	if e.ids != nil {
		e.ids.Stamp(&n)
	} else {
		n.Timestamp = e.now().UTC()
	}
	if e.pub != nil {
		if err := e.pub.PublishNotification(ctx, n); err != nil {
			slog.Warn("alerts: publish notification failed", "rule", a.RuleName, "err", err)
		}
	}
	return n
}

// notificationSeverity maps alert severity onto the notification scale.
func notificationSeverity(a *Alert) string {
	if a.State == "resolved" {
		return types.SeveritySuccess
	}
	switch a.Severity {
	case "critical":
		return types.SeverityError
	case "info":
		return types.SeverityInfo
	default:
		return types.SeverityWarning
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
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
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
