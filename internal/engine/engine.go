// Package engine orchestrates one validation call end to end: flag checks,
// template selection, rule execution, structural repair, and fallback. It is
// the only package callers invoke directly.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/veritas/internal/fallback"
	"github.com/ShayCichocki/veritas/internal/repair"
	"github.com/ShayCichocki/veritas/internal/rules"
	"github.com/ShayCichocki/veritas/pkg/models"
)

// FlagSource answers the feature-flag queries the engine consults per call.
type FlagSource interface {
	ValidationEnabled() bool
	PersonaTypeEnabled(pt models.PersonaType) bool
	CategoryEnabled(c models.RuleCategory) bool
	FallbackEnabled() bool
	MetricsEnabled() bool
	DebugEnabled() bool
}

// TemplateSource resolves templates by ID and persona tier.
type TemplateSource interface {
	Get(id string) (*models.ValidationTemplate, bool)
	GetLatestByPersonaType(pt models.PersonaType) *models.ValidationTemplate
}

// MetricsSink receives one record per call. Sink failures are the sink's
// problem; the engine never lets them reach the caller.
type MetricsSink interface {
	Collect(rec models.MetricRecord)
}

// TraceSink records step-level detail for a call when debug is on.
type TraceSink interface {
	Begin(requestID string) string
	Step(traceID, name, status string)
	End(traceID string, result *models.ValidationResult)
}

// Options wires the engine's collaborators. Registry and Processor are
// required; everything else degrades gracefully when nil.
type Options struct {
	Registry  TemplateSource
	Processor *rules.Processor
	Repair    *repair.Engine
	Fallback  *fallback.Manager
	Flags     FlagSource
	Metrics   MetricsSink
	Tracer    TraceSink
	Logger    *zap.Logger
}

// Engine validates generated persona records against registered templates.
type Engine struct {
	registry  TemplateSource
	processor *rules.Processor
	repair    *repair.Engine
	fallback  *fallback.Manager
	flags     FlagSource
	metrics   MetricsSink
	tracer    TraceSink
	log       *zap.Logger
	now       func() time.Time
}

// New creates an Engine from its collaborators.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		registry:  opts.Registry,
		processor: opts.Processor,
		repair:    opts.Repair,
		fallback:  opts.Fallback,
		flags:     opts.Flags,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		log:       log.Named("engine"),
		now:       time.Now,
	}
}

// Validate checks a record against the latest active template for its
// persona type. It always returns a result and never panics or returns an
// error, whatever happens internally.
func (e *Engine) Validate(ctx context.Context, record map[string]interface{}, personaType models.PersonaType, vctx *models.Context) *models.ValidationResult {
	return e.run(ctx, record, personaType, vctx, func() *models.ValidationTemplate {
		return e.registry.GetLatestByPersonaType(personaType)
	})
}

// ValidateWithTemplate checks a record against one specific template.
func (e *Engine) ValidateWithTemplate(ctx context.Context, record map[string]interface{}, templateID string, vctx *models.Context) *models.ValidationResult {
	var personaType models.PersonaType
	if t, ok := e.registry.Get(templateID); ok {
		personaType = t.PersonaType
	}
	return e.run(ctx, record, personaType, vctx, func() *models.ValidationTemplate {
		t, ok := e.registry.Get(templateID)
		if !ok || !t.Metadata.IsActive {
			return nil
		}
		return t
	})
}

// run is the shared call path behind both entry points.
func (e *Engine) run(ctx context.Context, record map[string]interface{}, personaType models.PersonaType, vctx *models.Context, selectTemplate func() *models.ValidationTemplate) (result *models.ValidationResult) {
	start := e.now()
	requestID := ""
	attempt := 1
	if vctx != nil {
		requestID = vctx.RequestID
		if vctx.Attempt > 0 {
			attempt = vctx.Attempt
		}
	}

	traceID := ""
	if e.tracer != nil && e.flags != nil && e.flags.DebugEnabled() {
		traceID = e.tracer.Begin(requestID)
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("validation panicked", zap.Any("panic", r), zap.String("request_id", requestID))
			result = e.internalFaultResult(personaType, start, fmt.Sprintf("internal fault: %v", r))
		}
		result.Metadata.Duration = e.now().Sub(start)
		e.finish(traceID, personaType, result)
	}()

	result = &models.ValidationResult{
		IsValid: true,
		Output:  record,
		Metadata: models.ResultMetadata{
			PersonaType: personaType,
			Timestamp:   start,
			RetryCount:  attempt - 1,
		},
	}

	// CHECK_FLAGS
	if e.flags != nil {
		if !e.flags.ValidationEnabled() || !e.flags.PersonaTypeEnabled(personaType) {
			e.step(traceID, "template_selection", "skipped")
			result.Score = models.MaxScore
			result.Metadata.ValidationDisabled = true
			result.AddWarning(models.ValidationWarning{
				ID:      "VALIDATION_DISABLED",
				Message: "validation bypassed by feature flag; record was not checked",
			})
			return result
		}
	}

	// SELECT_TEMPLATE
	template := selectTemplate()
	if template == nil || !template.Metadata.IsActive {
		e.step(traceID, "template_selection", "failed")
		return e.templateNotFoundResult(personaType, start)
	}
	e.step(traceID, "template_selection", "completed")
	result.Metadata.TemplateID = template.ID
	result.Metadata.TemplateVersion = template.Version
	if personaType == "" {
		personaType = template.PersonaType
		result.Metadata.PersonaType = personaType
	}

	// FILTER_RULES
	ruleSet, filteredSkips := e.filterRules(template.Rules)

	// EXECUTE
	procResult := e.processor.Process(ctx, record, ruleSet, vctx)
	e.applyProcessorResult(result, procResult, filteredSkips)
	if procResult.IsValid {
		e.step(traceID, "rule_execution", "completed")
		return result
	}
	e.step(traceID, "rule_execution", "failed")

	// REPAIR
	if e.repair != nil {
		repaired := e.repair.Repair(record, vctx)
		repairedResult := e.processor.Process(ctx, repaired, ruleSet, vctx)
		if repairedResult.IsValid {
			e.step(traceID, "error_handling", "completed")
			e.applyProcessorResult(result, repairedResult, filteredSkips)
			result.Output = repaired
			result.Metadata.RepairApplied = true
			return result
		}
		e.step(traceID, "error_handling", "failed")
	}

	// FALLBACK
	if e.fallback == nil || (e.flags != nil && !e.flags.FallbackEnabled()) {
		e.step(traceID, "fallback", "skipped")
		return result
	}
	return e.recover(ctx, record, template, personaType, vctx, attempt, traceID, result)
}

// filterRules drops rules whose category is disabled by flags, returning
// the kept set and the skipped rule IDs.
func (e *Engine) filterRules(ruleSet []models.ValidationRule) ([]models.ValidationRule, []string) {
	if e.flags == nil {
		return ruleSet, nil
	}
	kept := make([]models.ValidationRule, 0, len(ruleSet))
	var skipped []string
	for _, r := range ruleSet {
		if e.flags.CategoryEnabled(r.Category) {
			kept = append(kept, r)
			continue
		}
		skipped = append(skipped, r.ID)
	}
	return kept, skipped
}

// applyProcessorResult copies a processor run into the call result,
// replacing any earlier rule outcomes. RulesSkipped is rebuilt from the
// flag-filtered IDs plus this pass's skips; a rule skipped by an earlier
// pass but executed by this one must not stay listed as skipped.
func (e *Engine) applyProcessorResult(result *models.ValidationResult, pr *rules.Result, filteredSkips []string) {
	result.IsValid = pr.IsValid
	result.Errors = pr.Errors
	result.Warnings = append(result.Warnings, pr.Warnings...)
	result.Score = pr.Score
	result.Metadata.RulesExecuted = pr.RulesExecuted
	result.Metadata.RulesSkipped = append(append([]string(nil), filteredSkips...), pr.RulesSkipped...)
}

// recover runs the template's fallback strategy and folds the outcome into
// the result. A successful recovery demotes the accumulated errors to
// warnings so the caller still sees what originally failed.
func (e *Engine) recover(ctx context.Context, record map[string]interface{}, template *models.ValidationTemplate, personaType models.PersonaType, vctx *models.Context, attempt int, traceID string, result *models.ValidationResult) *models.ValidationResult {
	strategy := template.Fallback
	if strategy.Type == "" {
		strategy.Type = models.FallbackNone
	}

	// An escalation target chosen from the error mix overrides the declared
	// downgrade template.
	if strategy.Type == models.FallbackSimpleTemplate {
		if target := e.fallback.SelectFallbackTemplate(personaType, result.Errors, attempt); target != nil {
			strategy.FallbackTemplateID = target.ID
		}
	}

	accept := func(ctx context.Context, candidate map[string]interface{}) bool {
		return e.processor.Process(ctx, candidate, template.Rules, vctx).IsValid
	}

	out := e.fallback.Execute(ctx, strategy, personaType, vctx, accept)
	result.Metadata.RetryCount += out.Attempts
	if !out.Succeeded {
		e.step(traceID, "fallback", "failed")
		if out.Reason != "" {
			result.AddWarning(models.ValidationWarning{Message: out.Reason})
		}
		return result
	}

	switch out.Strategy {
	case models.FallbackSimpleTemplate:
		downgrade, ok := e.registry.Get(out.TemplateID)
		if !ok {
			e.step(traceID, "fallback", "failed")
			return result
		}
		pr := e.processor.Process(ctx, record, downgrade.Rules, vctx)
		if !pr.IsValid {
			e.step(traceID, "fallback", "failed")
			return result
		}
		e.demoteErrors(result)
		e.applyProcessorResult(result, pr, nil)
		result.Metadata.TemplateID = downgrade.ID
		result.Metadata.TemplateVersion = downgrade.Version
		result.Metadata.PersonaType = downgrade.PersonaType
	default:
		// Regenerated or canned record: already accepted or pre-validated.
		e.demoteErrors(result)
		result.IsValid = true
		result.Score = models.MaxScore
		result.Output = out.Record
	}
	result.Metadata.FallbackUsed = true
	result.Metadata.FallbackStrategy = out.Strategy
	e.step(traceID, "fallback", "completed")
	return result
}

// demoteErrors turns accumulated errors into warnings after a successful
// recovery, so the result stays informative without blocking.
func (e *Engine) demoteErrors(result *models.ValidationResult) {
	for _, err := range result.Errors {
		result.AddWarning(models.ValidationWarning{
			ID:      err.ID,
			Field:   err.Field,
			Message: "recovered: " + err.Message,
		})
	}
	result.Errors = nil
	result.IsValid = true
}

// templateNotFoundResult is the deterministic result for a missing or
// inactive template.
func (e *Engine) templateNotFoundResult(personaType models.PersonaType, start time.Time) *models.ValidationResult {
	return &models.ValidationResult{
		Errors: []models.ValidationError{{
			ID:       "TEMPLATE_NOT_FOUND",
			Type:     models.ErrTemplateNotFound,
			Message:  fmt.Sprintf("no active template for persona type %q", personaType),
			Severity: models.SeverityCritical,
		}},
		Metadata: models.ResultMetadata{
			PersonaType: personaType,
			Timestamp:   start,
		},
	}
}

// internalFaultResult converts a recovered panic into the closest taxonomy
// kind, keeping the always-returns-a-result guarantee.
func (e *Engine) internalFaultResult(personaType models.PersonaType, start time.Time, message string) *models.ValidationResult {
	return &models.ValidationResult{
		Errors: []models.ValidationError{{
			ID:       "INTERNAL_FAULT",
			Type:     models.ErrValidationTimeout,
			Message:  message,
			Severity: models.SeverityCritical,
		}},
		Metadata: models.ResultMetadata{
			PersonaType: personaType,
			Timestamp:   start,
		},
	}
}

// step records one trace step; a blank traceID means tracing is off.
func (e *Engine) step(traceID, name, status string) {
	if traceID == "" || e.tracer == nil {
		return
	}
	e.tracer.Step(traceID, name, status)
}

// finish emits the metric record and closes the trace. Collaborator
// failures here must never alter the returned result.
func (e *Engine) finish(traceID string, personaType models.PersonaType, result *models.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("metrics or trace sink panicked", zap.Any("panic", r))
		}
	}()

	if e.metrics != nil && (e.flags == nil || e.flags.MetricsEnabled()) && !result.Metadata.ValidationDisabled {
		rec := models.MetricRecord{
			ID:            uuid.NewString(),
			TemplateID:    result.Metadata.TemplateID,
			PersonaType:   personaType,
			Timestamp:     result.Metadata.Timestamp,
			Duration:      result.Metadata.Duration,
			IsValid:       result.IsValid,
			Score:         result.Score,
			RetryCount:    result.Metadata.RetryCount,
			FallbackUsed:  result.Metadata.FallbackUsed,
			RulesExecuted: result.Metadata.RulesExecuted,
			RulesFailed:   failedRuleIDs(result),
		}
		e.metrics.Collect(rec)
		e.step(traceID, "metrics", "completed")
	}

	if traceID != "" && e.tracer != nil {
		e.tracer.End(traceID, result)
	}
}

// failedRuleIDs extracts the rule IDs behind a result's errors.
func failedRuleIDs(result *models.ValidationResult) []string {
	if len(result.Errors) == 0 {
		return nil
	}
	out := make([]string, 0, len(result.Errors))
	for _, err := range result.Errors {
		out = append(out, err.ID)
	}
	return out
}
