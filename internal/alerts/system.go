// Package alerts evaluates aggregated validation metrics against threshold
// rules and dispatches fired alerts to pluggable notification channels.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// MetricsSource answers the windowed rollup queries alert conditions need.
type MetricsSource interface {
	GetAggregatedMetrics(templateID string, period models.AggregationPeriod) (models.AggregatedMetrics, error)
}

// Options configures a System.
type Options struct {
	// Metrics is required.
	Metrics MetricsSource
	// MaxAlertsPerHour caps firings across all rules; zero uses 20.
	MaxAlertsPerHour int
	// AutoResolveAfter force-resolves stale alerts; zero uses 24h.
	AutoResolveAfter time.Duration
	// Logger receives alerting events; nil uses a no-op logger.
	Logger *zap.Logger
}

// System owns alert rules, evaluation bookkeeping, and channel dispatch.
// Evaluations are serialized; cooldown and hourly-cap accounting depend on
// that.
type System struct {
	metrics          MetricsSource
	maxAlertsPerHour int
	autoResolveAfter time.Duration
	log              *zap.Logger
	now              func() time.Time

	mu        sync.Mutex
	rules     map[string]*models.AlertRule
	handlers  map[string]Handler
	alerts    map[string]*models.Alert
	order     []string
	lastFired map[string]time.Time
	firedAt   []time.Time

	cron    *cron.Cron
	entryID cron.EntryID
}

// New creates a System with the built-in rules and the console channel
// registered.
func New(opts Options) *System {
	if opts.MaxAlertsPerHour <= 0 {
		opts.MaxAlertsPerHour = 20
	}
	if opts.AutoResolveAfter <= 0 {
		opts.AutoResolveAfter = 24 * time.Hour
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &System{
		metrics:          opts.Metrics,
		maxAlertsPerHour: opts.MaxAlertsPerHour,
		autoResolveAfter: opts.AutoResolveAfter,
		log:              log.Named("alerts"),
		now:              time.Now,
		rules:            make(map[string]*models.AlertRule),
		handlers:         map[string]Handler{"console": ConsoleHandler{}},
		alerts:           make(map[string]*models.Alert),
		lastFired:        make(map[string]time.Time),
	}
	for _, rule := range builtinRules() {
		s.rules[rule.ID] = rule
	}
	return s
}

// builtinRules are the four threshold rules the system ships with.
func builtinRules() []*models.AlertRule {
	return []*models.AlertRule{
		{
			ID:       "error-rate-high",
			Name:     "Validation error rate above 20%",
			Enabled:  true,
			Severity: models.AlertHigh,
			Conditions: []models.AlertCondition{
				{Metric: "error_rate", Operator: ">", Threshold: 0.2, Period: models.PeriodHour},
			},
			Cooldown:   30 * time.Minute,
			Escalation: &models.EscalationRule{After: 15 * time.Minute, To: models.AlertCritical},
			Channels:   []string{"console"},
		},
		{
			ID:       "fallback-rate-high",
			Name:     "Fallback usage above 30%",
			Enabled:  true,
			Severity: models.AlertMedium,
			Conditions: []models.AlertCondition{
				{Metric: "fallback_rate", Operator: ">", Threshold: 0.3, Period: models.PeriodHour},
			},
			Cooldown: 30 * time.Minute,
			Channels: []string{"console"},
		},
		{
			ID:       "validation-slow",
			Name:     "Average validation time above 5s",
			Enabled:  true,
			Severity: models.AlertMedium,
			Conditions: []models.AlertCondition{
				{Metric: "avg_validation_time_ms", Operator: ">", Threshold: 5000, Period: models.PeriodHour},
			},
			Cooldown: 30 * time.Minute,
			Channels: []string{"console"},
		},
		{
			ID:       "structure-error-spike",
			Name:     "Structural error share above 15%",
			Enabled:  true,
			Severity: models.AlertHigh,
			Conditions: []models.AlertCondition{
				{Metric: "structure_error_share", Operator: ">", Threshold: 0.15, Period: models.PeriodHalfHour},
			},
			Cooldown: 30 * time.Minute,
			Channels: []string{"console"},
		},
	}
}

// RegisterHandler adds or replaces the handler for a channel type.
func (s *System) RegisterHandler(channel string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[channel] = h
}

// AddRule registers a custom alert rule, replacing any rule with the same ID.
func (s *System) AddRule(rule models.AlertRule) error {
	if rule.ID == "" || len(rule.Conditions) == 0 {
		return fmt.Errorf("alert rule needs an id and at least one condition")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = &rule
	return nil
}

// Rules returns copies of all registered rules.
func (s *System) Rules() []models.AlertRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AlertRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, *r)
	}
	return out
}

// CheckAlerts runs one full evaluation: stale alerts are auto-resolved,
// due escalations are applied, then every enabled rule outside its cooldown
// and under the hourly cap is tested. Fired alerts are returned.
func (s *System) CheckAlerts(ctx context.Context) []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.autoResolveLocked(now)
	s.escalateLocked(ctx, now)
	s.pruneHourlyLocked(now)

	var fired []models.Alert
	for _, rule := range s.rules {
		if !rule.Enabled {
			continue
		}
		if last, ok := s.lastFired[rule.ID]; ok && now.Sub(last) < rule.Cooldown {
			continue
		}
		if len(s.firedAt) >= s.maxAlertsPerHour {
			s.log.Warn("hourly alert cap reached, skipping evaluation",
				zap.String("rule", rule.ID))
			break
		}

		snapshot, ok := s.evaluateLocked(rule)
		if !ok {
			continue
		}

		alert := models.Alert{
			ID:        uuid.NewString(),
			RuleID:    rule.ID,
			Name:      rule.Name,
			Severity:  rule.Severity,
			Message:   ruleMessage(rule, snapshot),
			Timestamp: now,
			Metrics:   snapshot,
		}
		stored := alert
		s.alerts[alert.ID] = &stored
		s.order = append(s.order, alert.ID)
		s.lastFired[rule.ID] = now
		s.firedAt = append(s.firedAt, now)
		fired = append(fired, alert)

		s.log.Warn("alert fired",
			zap.String("rule", rule.ID), zap.String("severity", string(alert.Severity)))
		s.dispatchLocked(ctx, rule.Channels, alert)
	}
	return fired
}

// evaluateLocked tests all of a rule's conditions; every one must hold.
// It returns the last snapshot used so the alert can carry it.
func (s *System) evaluateLocked(rule *models.AlertRule) (models.AggregatedMetrics, bool) {
	var snapshot models.AggregatedMetrics
	for _, cond := range rule.Conditions {
		agg, err := s.metrics.GetAggregatedMetrics("", cond.Period)
		if err != nil {
			s.log.Error("metrics unavailable for alert evaluation",
				zap.String("rule", rule.ID), zap.Error(err))
			return snapshot, false
		}
		value, ok := agg.MetricValue(cond.Metric)
		if !ok || !cond.Holds(value) {
			return snapshot, false
		}
		snapshot = agg
	}
	return snapshot, true
}

// ResolveAlert marks an alert resolved. Unknown or already-resolved ids are
// a no-op returning false.
func (s *System) ResolveAlert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok || alert.IsResolved {
		return false
	}
	now := s.now()
	alert.IsResolved = true
	alert.ResolvedAt = &now
	s.log.Info("alert resolved", zap.String("id", id))
	return true
}

// ActiveAlerts returns copies of all unresolved alerts, oldest first.
func (s *System) ActiveAlerts() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Alert
	for _, id := range s.order {
		if a := s.alerts[id]; !a.IsResolved {
			out = append(out, *a)
		}
	}
	return out
}

// History returns copies of the most recent alerts, newest first, resolved
// or not. limit <= 0 returns everything.
func (s *System) History(limit int) []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Alert, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, *s.alerts[s.order[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Start begins periodic evaluation at the given interval. Calling Start
// twice is a no-op.
func (s *System) Start(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}

	c := cron.New()
	id, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		s.CheckAlerts(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule alert evaluation: %w", err)
	}
	s.cron = c
	s.entryID = id
	c.Start()
	s.log.Info("alert evaluation started", zap.Duration("interval", interval))
	return nil
}

// Stop halts periodic evaluation. Safe to call multiple times.
func (s *System) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	s.cron.Remove(s.entryID)
	s.cron.Stop()
	s.cron = nil
}

// autoResolveLocked force-resolves alerts older than the auto-resolve
// window. Caller holds s.mu.
func (s *System) autoResolveLocked(now time.Time) {
	for _, alert := range s.alerts {
		if alert.IsResolved || now.Sub(alert.Timestamp) < s.autoResolveAfter {
			continue
		}
		resolvedAt := now
		alert.IsResolved = true
		alert.ResolvedAt = &resolvedAt
		s.log.Info("alert auto-resolved", zap.String("id", alert.ID))
	}
}

// escalateLocked bumps unresolved alerts past their rule's escalation
// threshold, at most once each, and re-notifies. Caller holds s.mu.
func (s *System) escalateLocked(ctx context.Context, now time.Time) {
	for _, alert := range s.alerts {
		if alert.IsResolved || alert.EscalatedAt != nil {
			continue
		}
		rule, ok := s.rules[alert.RuleID]
		if !ok || rule.Escalation == nil {
			continue
		}
		if now.Sub(alert.Timestamp) < rule.Escalation.After {
			continue
		}

		escalatedAt := now
		alert.EscalatedAt = &escalatedAt
		if rule.Escalation.To.Valid() {
			alert.Severity = rule.Escalation.To
		} else {
			alert.Severity = alert.Severity.Escalated()
		}
		s.log.Warn("alert escalated",
			zap.String("id", alert.ID), zap.String("severity", string(alert.Severity)))
		s.dispatchLocked(ctx, rule.Channels, *alert)
	}
}

// pruneHourlyLocked drops firing timestamps older than one hour. Caller
// holds s.mu.
func (s *System) pruneHourlyLocked(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := s.firedAt[:0]
	for _, t := range s.firedAt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.firedAt = kept
}

// dispatchLocked notifies every registered handler the rule lists. Handler
// failures are logged, never propagated. Caller holds s.mu.
func (s *System) dispatchLocked(ctx context.Context, channels []string, alert models.Alert) {
	for _, channel := range channels {
		handler, ok := s.handlers[channel]
		if !ok {
			s.log.Warn("no handler for alert channel", zap.String("channel", channel))
			continue
		}
		if err := handler.Notify(ctx, alert); err != nil {
			s.log.Error("alert notification failed",
				zap.String("channel", channel), zap.Error(err))
		}
	}
}

// ruleMessage renders the firing explanation from the rule and snapshot.
func ruleMessage(rule *models.AlertRule, snapshot models.AggregatedMetrics) string {
	cond := rule.Conditions[0]
	value, _ := snapshot.MetricValue(cond.Metric)
	return fmt.Sprintf("%s: %s is %.3f (threshold %s %.3f over %s)",
		rule.Name, cond.Metric, value, cond.Operator, cond.Threshold, cond.Period)
}
