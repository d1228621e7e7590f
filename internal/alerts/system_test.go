package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// fakeMetrics answers every period query with the same snapshot.
type fakeMetrics struct {
	agg models.AggregatedMetrics
}

func (f *fakeMetrics) GetAggregatedMetrics(_ string, period models.AggregationPeriod) (models.AggregatedMetrics, error) {
	agg := f.agg
	agg.Period = period
	return agg, nil
}

func healthy() models.AggregatedMetrics {
	return models.AggregatedMetrics{
		TotalValidations:      100,
		SuccessRate:           0.99,
		ErrorRate:             0.01,
		AverageScore:          95,
		AverageDurationMillis: 80,
	}
}

func newSystem(agg models.AggregatedMetrics) (*System, *fakeMetrics) {
	metrics := &fakeMetrics{agg: agg}
	s := New(Options{Metrics: metrics})
	// Silence the console during tests.
	s.handlers["console"] = HandlerFunc(func(_ context.Context, _ models.Alert) error { return nil })
	return s, metrics
}

func TestCheckAlertsFiresOnErrorRate(t *testing.T) {
	agg := healthy()
	agg.SuccessRate = 0.7
	agg.ErrorRate = 0.3
	s, _ := newSystem(agg)

	fired := s.CheckAlerts(context.Background())

	if len(fired) != 1 {
		t.Fatalf("fired %d alerts, want 1: %+v", len(fired), fired)
	}
	if fired[0].RuleID != "error-rate-high" || fired[0].Severity != models.AlertHigh {
		t.Errorf("alert = %+v", fired[0])
	}
	if len(s.ActiveAlerts()) != 1 {
		t.Errorf("active = %+v", s.ActiveAlerts())
	}
}

func TestCheckAlertsQuietWhenHealthy(t *testing.T) {
	s, _ := newSystem(healthy())
	if fired := s.CheckAlerts(context.Background()); len(fired) != 0 {
		t.Errorf("fired = %+v", fired)
	}
}

func TestCooldownBlocksRefireEvenAfterResolution(t *testing.T) {
	agg := healthy()
	agg.ErrorRate = 0.3
	agg.SuccessRate = 0.7
	s, _ := newSystem(agg)

	fired := s.CheckAlerts(context.Background())
	if len(fired) != 1 {
		t.Fatalf("fired = %+v", fired)
	}
	if !s.ResolveAlert(fired[0].ID) {
		t.Fatal("resolve failed")
	}

	// Immediately re-evaluating must not re-fire: the rule is cooling down.
	if refired := s.CheckAlerts(context.Background()); len(refired) != 0 {
		t.Errorf("refired inside cooldown: %+v", refired)
	}

	// Past the cooldown it fires again.
	s.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	if refired := s.CheckAlerts(context.Background()); len(refired) != 1 {
		t.Errorf("expected refire after cooldown, got %+v", refired)
	}
}

func TestResolveAlertUnknownID(t *testing.T) {
	s, _ := newSystem(healthy())
	before := len(s.History(0))

	if s.ResolveAlert("no-such-alert") {
		t.Error("unknown id must return false")
	}
	if len(s.History(0)) != before {
		t.Error("history changed")
	}
}

func TestResolveAlertTwice(t *testing.T) {
	agg := healthy()
	agg.ErrorRate = 0.3
	agg.SuccessRate = 0.7
	s, _ := newSystem(agg)

	fired := s.CheckAlerts(context.Background())
	if !s.ResolveAlert(fired[0].ID) {
		t.Fatal("first resolve failed")
	}
	if s.ResolveAlert(fired[0].ID) {
		t.Error("second resolve must be a no-op returning false")
	}
}

func TestEscalationHappensExactlyOnce(t *testing.T) {
	agg := healthy()
	agg.ErrorRate = 0.3
	agg.SuccessRate = 0.7
	s, metrics := newSystem(agg)

	notified := 0
	s.handlers["console"] = HandlerFunc(func(_ context.Context, _ models.Alert) error {
		notified++
		return nil
	})

	fired := s.CheckAlerts(context.Background())
	if len(fired) != 1 || notified != 1 {
		t.Fatalf("fired=%d notified=%d", len(fired), notified)
	}

	// Go quiet so no new alerts fire, then cross the escalation threshold.
	metrics.agg = healthy()
	s.now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	s.CheckAlerts(context.Background())
	active := s.ActiveAlerts()
	if len(active) != 1 || active[0].Severity != models.AlertCritical {
		t.Fatalf("active = %+v, want escalated to critical", active)
	}
	if active[0].EscalatedAt == nil {
		t.Error("escalatedAt not recorded")
	}
	if notified != 2 {
		t.Errorf("notified = %d, want exactly one re-notification", notified)
	}

	// A third evaluation must not escalate or notify again.
	s.now = func() time.Time { return time.Now().Add(25 * time.Minute) }
	s.CheckAlerts(context.Background())
	if notified != 2 {
		t.Errorf("notified = %d after third pass, escalation repeated", notified)
	}
}

func TestAutoResolveStaleAlerts(t *testing.T) {
	agg := healthy()
	agg.ErrorRate = 0.3
	agg.SuccessRate = 0.7
	s, metrics := newSystem(agg)

	s.CheckAlerts(context.Background())
	metrics.agg = healthy()

	s.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	s.CheckAlerts(context.Background())

	if len(s.ActiveAlerts()) != 0 {
		t.Errorf("active = %+v, want auto-resolved", s.ActiveAlerts())
	}
	history := s.History(0)
	if len(history) != 1 || !history[0].IsResolved || history[0].ResolvedAt == nil {
		t.Errorf("history = %+v", history)
	}
}

func TestHourlyCapStopsFiring(t *testing.T) {
	agg := healthy()
	agg.ErrorRate = 0.3
	agg.SuccessRate = 0.7
	metrics := &fakeMetrics{agg: agg}
	s := New(Options{Metrics: metrics, MaxAlertsPerHour: 1})
	s.handlers["console"] = HandlerFunc(func(_ context.Context, _ models.Alert) error { return nil })

	// Second rule that also holds against the same snapshot.
	if err := s.AddRule(models.AlertRule{
		ID:       "error-rate-echo",
		Name:     "echo",
		Enabled:  true,
		Severity: models.AlertLow,
		Conditions: []models.AlertCondition{
			{Metric: "error_rate", Operator: ">", Threshold: 0.1, Period: models.PeriodHour},
		},
		Cooldown: time.Minute,
		Channels: []string{"console"},
	}); err != nil {
		t.Fatal(err)
	}

	fired := s.CheckAlerts(context.Background())
	if len(fired) != 1 {
		t.Errorf("cap of 1 should allow exactly one firing, got %d", len(fired))
	}
}

func TestAllConditionsMustHold(t *testing.T) {
	agg := healthy()
	agg.ErrorRate = 0.5
	agg.SuccessRate = 0.5
	s, _ := newSystem(agg)

	if err := s.AddRule(models.AlertRule{
		ID:       "compound",
		Name:     "high errors on real traffic",
		Enabled:  true,
		Severity: models.AlertHigh,
		Conditions: []models.AlertCondition{
			{Metric: "error_rate", Operator: ">", Threshold: 0.2, Period: models.PeriodHour},
			{Metric: "total_validations", Operator: ">=", Threshold: 1000, Period: models.PeriodHour},
		},
		Cooldown: time.Minute,
		Channels: []string{"console"},
	}); err != nil {
		t.Fatal(err)
	}
	// Disable the built-ins so only the compound rule is in play.
	for _, r := range builtinRules() {
		rule := *r
		rule.Enabled = false
		s.AddRule(rule)
	}

	// 100 validations < 1000: the second condition fails, no alert.
	if fired := s.CheckAlerts(context.Background()); len(fired) != 0 {
		t.Errorf("fired = %+v, want none", fired)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s, _ := newSystem(healthy())
	if err := s.Start(time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(time.Minute); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Stop()
}
