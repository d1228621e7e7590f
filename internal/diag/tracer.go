// Package diag holds the optional diagnostics layer: step-level tracing,
// a bounded in-memory log store, and offline failure-pattern analysis over
// both.
package diag

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// StepStatus is the lifecycle state of one trace step.
type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// TraceStep is one timestamped step inside a validation trace.
type TraceStep struct {
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	// Duration is the gap to the previous step, filled when the next step
	// (or the trace end) arrives.
	Duration time.Duration `json:"duration"`
}

// TraceSummary is the per-call rollup filled when a trace completes.
type TraceSummary struct {
	RulesExecuted int  `json:"rules_executed"`
	RulesFailed   int  `json:"rules_failed"`
	RulesSkipped  int  `json:"rules_skipped"`
	ErrorCount    int  `json:"error_count"`
	WarningCount  int  `json:"warning_count"`
	FallbackUsed  bool `json:"fallback_used"`
	Score         int  `json:"score"`
}

// Trace is the full step record of one validation call.
type Trace struct {
	ID          string        `json:"id"`
	RequestID   string        `json:"request_id,omitempty"`
	TemplateID  string        `json:"template_id,omitempty"`
	PersonaType string        `json:"persona_type,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	IsValid     bool          `json:"is_valid"`
	Steps       []TraceStep   `json:"steps"`
	// Errors carries the result's errors for offline pattern mining.
	Errors  []models.ValidationError `json:"errors,omitempty"`
	Summary *TraceSummary            `json:"summary,omitempty"`
}

// TracerOptions bounds the tracer's memory.
type TracerOptions struct {
	// MaxTraces caps retained traces; zero uses 1000.
	MaxTraces int
	// MaxAge drops traces older than this; zero uses 24h.
	MaxAge time.Duration
}

// Tracer records step trees for validation calls. All methods are safe for
// concurrent use.
type Tracer struct {
	mu        sync.Mutex
	traces    map[string]*Trace
	order     []string
	maxTraces int
	maxAge    time.Duration
	now       func() time.Time
}

// NewTracer creates a bounded tracer.
func NewTracer(opts TracerOptions) *Tracer {
	if opts.MaxTraces <= 0 {
		opts.MaxTraces = 1000
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	return &Tracer{
		traces:    make(map[string]*Trace),
		maxTraces: opts.MaxTraces,
		maxAge:    opts.MaxAge,
		now:       time.Now,
	}
}

// Begin opens a trace for one call and returns its ID.
func (t *Tracer) Begin(requestID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	trace := &Trace{
		ID:        uuid.NewString(),
		RequestID: requestID,
		StartedAt: t.now(),
	}
	t.traces[trace.ID] = trace
	t.order = append(t.order, trace.ID)
	t.pruneLocked()
	return trace.ID
}

// Step appends one step to a trace and closes the duration of the previous
// one. Unknown trace IDs are ignored.
func (t *Tracer) Step(traceID, name, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	trace, ok := t.traces[traceID]
	if !ok {
		return
	}
	now := t.now()
	if n := len(trace.Steps); n > 0 {
		trace.Steps[n-1].Duration = now.Sub(trace.Steps[n-1].Timestamp)
	}
	trace.Steps = append(trace.Steps, TraceStep{
		Name:      name,
		Status:    StepStatus(status),
		Timestamp: now,
	})
}

// End completes a trace, rolling the result up into its summary.
func (t *Tracer) End(traceID string, result *models.ValidationResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	trace, ok := t.traces[traceID]
	if !ok {
		return
	}
	now := t.now()
	if n := len(trace.Steps); n > 0 {
		trace.Steps[n-1].Duration = now.Sub(trace.Steps[n-1].Timestamp)
	}
	trace.CompletedAt = now
	trace.Duration = now.Sub(trace.StartedAt)

	if result == nil {
		return
	}
	trace.IsValid = result.IsValid
	trace.TemplateID = result.Metadata.TemplateID
	trace.PersonaType = string(result.Metadata.PersonaType)
	trace.Errors = append([]models.ValidationError(nil), result.Errors...)
	trace.Summary = &TraceSummary{
		RulesExecuted: len(result.Metadata.RulesExecuted),
		RulesFailed:   len(result.Errors),
		RulesSkipped:  len(result.Metadata.RulesSkipped),
		ErrorCount:    len(result.Errors),
		WarningCount:  len(result.Warnings),
		FallbackUsed:  result.Metadata.FallbackUsed,
		Score:         result.Score,
	}
}

// Get returns a copy of one trace.
func (t *Tracer) Get(traceID string) (Trace, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	trace, ok := t.traces[traceID]
	if !ok {
		return Trace{}, false
	}
	return copyTrace(trace), true
}

// Recent returns copies of the most recent traces, newest first. limit <= 0
// returns everything retained.
func (t *Tracer) Recent(limit int) []Trace {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Trace, 0, len(t.order))
	for i := len(t.order) - 1; i >= 0; i-- {
		out = append(out, copyTrace(t.traces[t.order[i]]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// pruneLocked enforces the count and age bounds. Caller holds t.mu.
func (t *Tracer) pruneLocked() {
	cutoff := t.now().Add(-t.maxAge)
	kept := t.order[:0]
	for _, id := range t.order {
		trace := t.traces[id]
		if trace.StartedAt.Before(cutoff) {
			delete(t.traces, id)
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept

	for len(t.order) > t.maxTraces {
		delete(t.traces, t.order[0])
		t.order = t.order[1:]
	}
}

func copyTrace(trace *Trace) Trace {
	out := *trace
	out.Steps = append([]TraceStep(nil), trace.Steps...)
	out.Errors = append([]models.ValidationError(nil), trace.Errors...)
	if trace.Summary != nil {
		summary := *trace.Summary
		out.Summary = &summary
	}
	return out
}
