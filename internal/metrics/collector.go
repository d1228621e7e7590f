package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// RuleClassifier resolves a rule's declared error type, when the template
// carries one. The registry implements this through an adapter.
type RuleClassifier interface {
	ErrorTypeForRule(templateID, ruleID string) (models.ErrorType, bool)
}

// Options configures a Collector.
type Options struct {
	// Store is required.
	Store *Store
	// Classifier resolves declared rule error types; nil falls back to the
	// id naming convention alone.
	Classifier RuleClassifier
	// Registerer receives the prometheus collectors; nil skips prometheus.
	Registerer prometheus.Registerer
	// Logger receives collection events; nil uses a no-op logger.
	Logger *zap.Logger
}

// Collector records validation outcomes and answers summary and aggregation
// queries over them.
type Collector struct {
	store      *Store
	classifier RuleClassifier
	log        *zap.Logger
	now        func() time.Time

	validations *prometheus.CounterVec
	fallbacks   prometheus.Counter
	duration    prometheus.Histogram

	cacheMu sync.Mutex
	cache   map[string]models.AggregatedMetrics
}

// NewCollector creates a Collector.
func NewCollector(opts Options) *Collector {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	c := &Collector{
		store:      opts.Store,
		classifier: opts.Classifier,
		log:        log.Named("metrics"),
		now:        time.Now,
		cache:      make(map[string]models.AggregatedMetrics),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_validations_total",
			Help: "Validation calls by persona type and outcome.",
		}, []string{"persona_type", "outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "veritas_fallbacks_total",
			Help: "Validation calls recovered through a fallback strategy.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "veritas_validation_duration_seconds",
			Help:    "Wall time of validation calls.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}

	if opts.Registerer != nil {
		opts.Registerer.MustRegister(c.validations, c.fallbacks, c.duration)
	}
	return c
}

// Collect persists one record. Persistence failures are logged and
// swallowed; metrics must never break the validation path.
func (c *Collector) Collect(rec models.MetricRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.now()
	}

	outcome := "invalid"
	if rec.IsValid {
		outcome = "valid"
	}
	c.validations.WithLabelValues(string(rec.PersonaType), outcome).Inc()
	if rec.FallbackUsed {
		c.fallbacks.Inc()
	}
	c.duration.Observe(rec.Duration.Seconds())

	if err := c.store.Insert(rec); err != nil {
		c.log.Error("metric record not persisted", zap.Error(err), zap.String("id", rec.ID))
		return
	}
	c.invalidate(rec.TemplateID)
}

// RuleFailure is one entry of the most-failing-rules ranking.
type RuleFailure struct {
	RuleID string `json:"rule_id"`
	Count  int    `json:"count"`
}

// Summary is the rollup GetMetricsSummary produces.
type Summary struct {
	TotalValidations      int            `json:"total_validations"`
	SuccessRate           float64        `json:"success_rate"`
	AverageScore          float64        `json:"average_score"`
	AverageDurationMillis float64        `json:"average_duration_ms"`
	FallbackRate          float64        `json:"fallback_rate"`
	ErrorBreakdown        map[string]int `json:"error_breakdown"`
	TopFailingRules       []RuleFailure  `json:"top_failing_rules"`
}

// GetMetricsSummary computes a summary over records matching the filter.
func (c *Collector) GetMetricsSummary(f Filter) (*Summary, error) {
	records, err := c.store.Query(f)
	if err != nil {
		return nil, err
	}

	s := &Summary{ErrorBreakdown: make(map[string]int)}
	s.TotalValidations = len(records)
	if len(records) == 0 {
		s.SuccessRate = 1
		return s, nil
	}

	valid, fallbacks := 0, 0
	var scoreSum, durationSum float64
	failCounts := make(map[string]int)
	for _, rec := range records {
		if rec.IsValid {
			valid++
		}
		if rec.FallbackUsed {
			fallbacks++
		}
		scoreSum += float64(rec.Score)
		durationSum += float64(rec.Duration.Milliseconds())
		for _, ruleID := range rec.RulesFailed {
			failCounts[ruleID]++
			s.ErrorBreakdown[string(c.classify(rec.TemplateID, ruleID))]++
		}
	}

	n := float64(len(records))
	s.SuccessRate = float64(valid) / n
	s.AverageScore = scoreSum / n
	s.AverageDurationMillis = durationSum / n
	s.FallbackRate = float64(fallbacks) / n
	s.TopFailingRules = topFailures(failCounts, 10)
	return s, nil
}

// GetAggregatedMetrics computes a windowed rollup for a template (empty for
// system-wide) and period. Results are cached per (templateID, period) and
// invalidated when new records for that template arrive.
func (c *Collector) GetAggregatedMetrics(templateID string, period models.AggregationPeriod) (models.AggregatedMetrics, error) {
	if !period.Valid() {
		period = models.PeriodHour
	}

	key := templateID + "|" + string(period)
	c.cacheMu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.cacheMu.Unlock()
		return cached, nil
	}
	c.cacheMu.Unlock()

	end := c.now()
	start := end.Add(-period.Duration())
	records, err := c.store.Query(Filter{TemplateID: templateID, Since: start})
	if err != nil {
		return models.AggregatedMetrics{}, err
	}

	agg := aggregate(records, c, templateID, period, start, end)
	c.cacheMu.Lock()
	c.cache[key] = agg
	c.cacheMu.Unlock()
	return agg, nil
}

// Cleanup purges records older than the retention window.
func (c *Collector) Cleanup(retention time.Duration) (int64, error) {
	removed, err := c.store.DeleteOlderThan(c.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Info("purged metric records", zap.Int64("removed", removed))
		c.invalidateAll()
	}
	return removed, nil
}

// invalidate drops cached aggregations for a template and the system-wide
// rollup.
func (c *Collector) invalidate(templateID string) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	for key := range c.cache {
		id, _, _ := strings.Cut(key, "|")
		if id == templateID || id == "" {
			delete(c.cache, key)
		}
	}
}

func (c *Collector) invalidateAll() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]models.AggregatedMetrics)
}

// classify maps a failed rule to an error type: the rule's declared type
// when the template carries one, else the id naming convention.
func (c *Collector) classify(templateID, ruleID string) models.ErrorType {
	if c.classifier != nil {
		if t, ok := c.classifier.ErrorTypeForRule(templateID, ruleID); ok {
			return t
		}
	}
	return classifyByName(ruleID)
}

// classifyByName approximates an error type from the rule id. Declared rule
// error types take precedence over this convention.
func classifyByName(ruleID string) models.ErrorType {
	id := strings.ToLower(ruleID)
	switch {
	case strings.Contains(id, "structure"):
		return models.ErrStructureInvalid
	case strings.Contains(id, "required"):
		return models.ErrRequiredFieldMissing
	case strings.Contains(id, "type"):
		return models.ErrTypeMismatch
	case strings.Contains(id, "range"), strings.Contains(id, "length"):
		return models.ErrValueOutOfRange
	case strings.Contains(id, "format"), strings.Contains(id, "pattern"):
		return models.ErrFormatInvalid
	case strings.Contains(id, "cultural"):
		return models.ErrCulturalDataInconsistent
	case strings.Contains(id, "business"):
		return models.ErrBusinessRuleViolation
	case strings.Contains(id, "template"):
		return models.ErrTemplateNotFound
	default:
		return models.ErrValidationTimeout
	}
}

// aggregate computes the windowed rollup the alert rules evaluate.
func aggregate(records []models.MetricRecord, c *Collector, templateID string, period models.AggregationPeriod, start, end time.Time) models.AggregatedMetrics {
	agg := models.AggregatedMetrics{
		TemplateID: templateID,
		Period:     period,
		Start:      start,
		End:        end,
	}
	agg.TotalValidations = len(records)
	if len(records) == 0 {
		agg.SuccessRate = 1
		return agg
	}

	valid, fallbacks, failed, structural := 0, 0, 0, 0
	var scoreSum, durationSum float64
	for _, rec := range records {
		if rec.IsValid {
			valid++
		} else {
			failed++
			for _, ruleID := range rec.RulesFailed {
				if c.classify(rec.TemplateID, ruleID) == models.ErrStructureInvalid {
					structural++
					break
				}
			}
		}
		if rec.FallbackUsed {
			fallbacks++
		}
		scoreSum += float64(rec.Score)
		durationSum += float64(rec.Duration.Milliseconds())
	}

	n := float64(len(records))
	agg.SuccessRate = float64(valid) / n
	agg.ErrorRate = 1 - agg.SuccessRate
	agg.AverageScore = scoreSum / n
	agg.AverageDurationMillis = durationSum / n
	agg.FallbackRate = float64(fallbacks) / n
	if failed > 0 {
		agg.StructureErrorShare = float64(structural) / float64(failed)
	}
	return agg
}

// topFailures ranks rule ids by failure count, descending, ties by id.
func topFailures(counts map[string]int, limit int) []RuleFailure {
	out := make([]RuleFailure, 0, len(counts))
	for id, n := range counts {
		out = append(out, RuleFailure{RuleID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].RuleID < out[j].RuleID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
