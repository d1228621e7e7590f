package diag

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// PatternSeverity ranks how urgent a mined pattern is.
type PatternSeverity string

const (
	PatternLow    PatternSeverity = "low"
	PatternMedium PatternSeverity = "medium"
	PatternHigh   PatternSeverity = "high"
)

// Pattern is one named finding mined from recent traces and logs.
type Pattern struct {
	Name                 string          `json:"name"`
	Severity             PatternSeverity `json:"severity"`
	Description          string          `json:"description"`
	Occurrences          int             `json:"occurrences"`
	AffectedTemplates    []string        `json:"affected_templates,omitempty"`
	AffectedPersonaTypes []string        `json:"affected_persona_types,omitempty"`
	Start                time.Time       `json:"start"`
	End                  time.Time       `json:"end"`
	Examples             []string        `json:"examples,omitempty"`
	Remediation          string          `json:"remediation"`
}

// TemplateHealth is the 0-100 composite health score of one template.
type TemplateHealth struct {
	TemplateID  string  `json:"template_id"`
	Score       float64 `json:"score"`
	SuccessRate float64 `json:"success_rate"`
	// SpeedScore and DiversityScore are the 0-100 subscores behind the
	// composite.
	SpeedScore     float64 `json:"speed_score"`
	DiversityScore float64 `json:"diversity_score"`
	Traces         int     `json:"traces"`
}

// Recommendations groups remediation advice by urgency.
type Recommendations struct {
	Immediate []string `json:"immediate,omitempty"`
	ShortTerm []string `json:"short_term,omitempty"`
	LongTerm  []string `json:"long_term,omitempty"`
}

// Report is the full output of one analysis run.
type Report struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	TracesAnalyzed  int              `json:"traces_analyzed"`
	Patterns        []Pattern        `json:"patterns"`
	TemplateHealth  []TemplateHealth `json:"template_health"`
	Recommendations Recommendations  `json:"recommendations"`
}

// AnalyzerOptions tunes the pattern thresholds.
type AnalyzerOptions struct {
	// MinOccurrences is the floor for a recurring field error to become a
	// pattern; zero uses 3.
	MinOccurrences int
	// SlowFactor flags validations slower than this multiple of the mean;
	// zero uses 2.
	SlowFactor float64
	// FallbackShare flags fallback usage above this share; zero uses 0.25.
	FallbackShare float64
	// CacheTTL bounds how long a computed report is reused; zero uses 30s.
	CacheTTL time.Duration
}

// Analyzer batch-mines traces and logs into named failure patterns, health
// scores, and prioritized recommendations.
type Analyzer struct {
	tracer *Tracer
	logger *Logger
	opts   AnalyzerOptions
	now    func() time.Time

	cacheMu sync.Mutex
	cache   map[string]cachedReport
}

type cachedReport struct {
	report *Report
	at     time.Time
}

// NewAnalyzer creates an Analyzer over a tracer and logger.
func NewAnalyzer(tracer *Tracer, logger *Logger, opts AnalyzerOptions) *Analyzer {
	if opts.MinOccurrences <= 0 {
		opts.MinOccurrences = 3
	}
	if opts.SlowFactor <= 0 {
		opts.SlowFactor = 2
	}
	if opts.FallbackShare <= 0 {
		opts.FallbackShare = 0.25
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	return &Analyzer{
		tracer: tracer,
		logger: logger,
		opts:   opts,
		now:    time.Now,
		cache:  make(map[string]cachedReport),
	}
}

// Analyze mines the most recent traces (limit <= 0 means all retained) into
// a report. Reports are cached briefly per limit.
func (a *Analyzer) Analyze(limit int) *Report {
	key := fmt.Sprintf("recent|%d", limit)
	a.cacheMu.Lock()
	if cached, ok := a.cache[key]; ok && a.now().Sub(cached.at) < a.opts.CacheTTL {
		a.cacheMu.Unlock()
		return cached.report
	}
	a.cacheMu.Unlock()

	traces := a.tracer.Recent(limit)
	report := &Report{
		GeneratedAt:    a.now(),
		TracesAnalyzed: len(traces),
	}
	if len(traces) > 0 {
		report.Patterns = append(report.Patterns, a.fieldErrorPatterns(traces)...)
		report.Patterns = append(report.Patterns, a.outlierTemplatePatterns(traces)...)
		report.Patterns = append(report.Patterns, a.slowValidationPatterns(traces)...)
		report.Patterns = append(report.Patterns, a.fallbackPatterns(traces)...)
		report.TemplateHealth = a.healthScores(traces)
	}
	report.Recommendations = recommend(report.Patterns)

	a.cacheMu.Lock()
	a.cache[key] = cachedReport{report: report, at: a.now()}
	a.cacheMu.Unlock()
	return report
}

// fieldErrorPatterns finds fields that keep failing the same way.
func (a *Analyzer) fieldErrorPatterns(traces []Trace) []Pattern {
	type fieldKey struct {
		field string
		typ   models.ErrorType
	}
	counts := make(map[fieldKey]int)
	examples := make(map[fieldKey]string)
	templates := make(map[fieldKey]map[string]bool)
	var start, end time.Time

	for _, trace := range traces {
		for _, err := range trace.Errors {
			if err.Field == "" {
				continue
			}
			key := fieldKey{field: err.Field, typ: err.Type}
			counts[key]++
			if examples[key] == "" {
				examples[key] = err.Message
			}
			if templates[key] == nil {
				templates[key] = make(map[string]bool)
			}
			templates[key][trace.TemplateID] = true
			if start.IsZero() || trace.StartedAt.Before(start) {
				start = trace.StartedAt
			}
			if trace.StartedAt.After(end) {
				end = trace.StartedAt
			}
		}
	}

	var out []Pattern
	for key, n := range counts {
		if n < a.opts.MinOccurrences {
			continue
		}
		out = append(out, Pattern{
			Name:     "recurring-field-error",
			Severity: PatternMedium,
			Description: fmt.Sprintf("field %q failed %d times with %s",
				key.field, n, key.typ),
			Occurrences:       n,
			AffectedTemplates: sortedKeys(templates[key]),
			Start:             start,
			End:               end,
			Examples:          []string{examples[key]},
			Remediation: fmt.Sprintf("review the generation prompt or the rules targeting %q",
				key.field),
		})
	}
	sortPatterns(out)
	return out
}

// outlierTemplatePatterns finds templates failing well above the overall
// rate.
func (a *Analyzer) outlierTemplatePatterns(traces []Trace) []Pattern {
	total, failed := 0, 0
	perTemplate := make(map[string][2]int) // total, failed
	for _, trace := range traces {
		if trace.TemplateID == "" {
			continue
		}
		total++
		counts := perTemplate[trace.TemplateID]
		counts[0]++
		if !trace.IsValid {
			failed++
			counts[1]++
		}
		perTemplate[trace.TemplateID] = counts
	}
	if total == 0 {
		return nil
	}
	overall := float64(failed) / float64(total)

	var out []Pattern
	for templateID, counts := range perTemplate {
		if counts[0] < a.opts.MinOccurrences {
			continue
		}
		rate := float64(counts[1]) / float64(counts[0])
		if rate <= overall*1.5 || rate < 0.2 {
			continue
		}
		out = append(out, Pattern{
			Name:     "outlier-template-failure-rate",
			Severity: PatternHigh,
			Description: fmt.Sprintf("template %s fails %.0f%% of validations (overall %.0f%%)",
				templateID, rate*100, overall*100),
			Occurrences:       counts[1],
			AffectedTemplates: []string{templateID},
			Remediation:       fmt.Sprintf("audit the rule set of template %s against real output", templateID),
		})
	}
	sortPatterns(out)
	return out
}

// slowValidationPatterns finds calls far slower than the running average.
func (a *Analyzer) slowValidationPatterns(traces []Trace) []Pattern {
	var sum float64
	completed := 0
	for _, trace := range traces {
		if trace.Duration > 0 {
			sum += float64(trace.Duration)
			completed++
		}
	}
	if completed < a.opts.MinOccurrences {
		return nil
	}
	mean := sum / float64(completed)

	slow := 0
	templates := make(map[string]bool)
	var example string
	for _, trace := range traces {
		if float64(trace.Duration) > mean*a.opts.SlowFactor {
			slow++
			templates[trace.TemplateID] = true
			if example == "" {
				example = fmt.Sprintf("trace %s took %s (mean %s)",
					trace.ID, trace.Duration, time.Duration(mean))
			}
		}
	}
	if slow < a.opts.MinOccurrences {
		return nil
	}
	return []Pattern{{
		Name:     "slow-validations",
		Severity: PatternMedium,
		Description: fmt.Sprintf("%d validations ran over %.1fx the mean duration",
			slow, a.opts.SlowFactor),
		Occurrences:       slow,
		AffectedTemplates: sortedKeys(templates),
		Examples:          []string{example},
		Remediation:       "check rule timeouts and the concurrency cap; look for rules doing unbounded work",
	}}
}

// fallbackPatterns flags elevated recovery usage.
func (a *Analyzer) fallbackPatterns(traces []Trace) []Pattern {
	total, used := 0, 0
	personaTypes := make(map[string]bool)
	for _, trace := range traces {
		if trace.Summary == nil {
			continue
		}
		total++
		if trace.Summary.FallbackUsed {
			used++
			personaTypes[trace.PersonaType] = true
		}
	}
	if total < a.opts.MinOccurrences {
		return nil
	}
	share := float64(used) / float64(total)
	if share <= a.opts.FallbackShare {
		return nil
	}
	return []Pattern{{
		Name:     "elevated-fallback-usage",
		Severity: PatternHigh,
		Description: fmt.Sprintf("%.0f%% of validations needed a fallback (threshold %.0f%%)",
			share*100, a.opts.FallbackShare*100),
		Occurrences:          used,
		AffectedPersonaTypes: sortedKeys(personaTypes),
		Remediation:          "generation quality is below what the templates expect; revisit prompts or relax non-essential rules",
	}}
}

// healthScores computes the 0-100 composite per template: 60% success rate,
// 30% speed, 10% error-type diversity.
func (a *Analyzer) healthScores(traces []Trace) []TemplateHealth {
	type acc struct {
		total, valid int
		durationSum  float64
		errorTypes   map[models.ErrorType]bool
	}
	perTemplate := make(map[string]*acc)
	for _, trace := range traces {
		if trace.TemplateID == "" {
			continue
		}
		t := perTemplate[trace.TemplateID]
		if t == nil {
			t = &acc{errorTypes: make(map[models.ErrorType]bool)}
			perTemplate[trace.TemplateID] = t
		}
		t.total++
		if trace.IsValid {
			t.valid++
		}
		t.durationSum += float64(trace.Duration.Milliseconds())
		for _, err := range trace.Errors {
			t.errorTypes[err.Type] = true
		}
	}

	out := make([]TemplateHealth, 0, len(perTemplate))
	for templateID, t := range perTemplate {
		successRate := float64(t.valid) / float64(t.total)
		meanMillis := t.durationSum / float64(t.total)
		health := TemplateHealth{
			TemplateID:     templateID,
			SuccessRate:    successRate,
			SpeedScore:     speedScore(meanMillis),
			DiversityScore: diversityScore(len(t.errorTypes)),
			Traces:         t.total,
		}
		health.Score = 0.6*successRate*100 + 0.3*health.SpeedScore + 0.1*health.DiversityScore
		out = append(out, health)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

// speedScore maps mean duration to 0-100: full marks at 200ms or less,
// nothing at 5s or more.
func speedScore(meanMillis float64) float64 {
	const fast, slow = 200, 5000
	switch {
	case meanMillis <= fast:
		return 100
	case meanMillis >= slow:
		return 0
	default:
		return 100 * (slow - meanMillis) / (slow - fast)
	}
}

// diversityScore rewards templates whose failures concentrate on few error
// kinds; many distinct kinds suggest systemic trouble.
func diversityScore(distinctTypes int) float64 {
	const taxonomySize = 9
	if distinctTypes >= taxonomySize {
		return 0
	}
	return 100 * float64(taxonomySize-distinctTypes) / taxonomySize
}

// recommend turns mined patterns into prioritized advice.
func recommend(patterns []Pattern) Recommendations {
	var rec Recommendations
	seen := make(map[string]bool)
	add := func(list *[]string, msg string) {
		if !seen[msg] {
			seen[msg] = true
			*list = append(*list, msg)
		}
	}

	for _, p := range patterns {
		switch p.Name {
		case "outlier-template-failure-rate":
			add(&rec.Immediate, p.Remediation)
		case "elevated-fallback-usage":
			add(&rec.Immediate, p.Remediation)
		case "recurring-field-error":
			add(&rec.ShortTerm, p.Remediation)
		case "slow-validations":
			add(&rec.ShortTerm, p.Remediation)
		}
	}
	if len(patterns) > 0 {
		add(&rec.LongTerm, "track template health scores over time and retire templates that stay unhealthy")
	}
	return rec
}

// sortPatterns orders by occurrences descending, then description.
func sortPatterns(patterns []Pattern) {
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Occurrences != patterns[j].Occurrences {
			return patterns[i].Occurrences > patterns[j].Occurrences
		}
		return patterns[i].Description < patterns[j].Description
	})
}

// sortedKeys flattens a string set, sorted.
func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
