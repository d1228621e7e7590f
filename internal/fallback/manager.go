// Package fallback decides and executes the recovery strategy when a
// generated record fails validation.
package fallback

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// Regenerator asks the generation collaborator for a fresh record.
type Regenerator interface {
	Regenerate(ctx context.Context, personaType models.PersonaType, vctx *models.Context) (map[string]interface{}, error)
}

// FlagSource answers the feature-flag queries the decision order needs.
type FlagSource interface {
	ValidationEnabled() bool
	PersonaTypeEnabled(pt models.PersonaType) bool
	FallbackEnabled() bool
}

// TemplateSource resolves templates for tier downgrades.
type TemplateSource interface {
	Get(id string) (*models.ValidationTemplate, bool)
	GetLatestByPersonaType(pt models.PersonaType) *models.ValidationTemplate
}

// AcceptFunc re-checks a candidate record; a regeneration loop keeps going
// until a candidate is accepted or retries run out.
type AcceptFunc func(ctx context.Context, record map[string]interface{}) bool

// SystemAction is the system-level recovery decision for one failed call.
type SystemAction string

const (
	// ActionBypass skips validation entirely per feature flags.
	ActionBypass SystemAction = "bypass"
	// ActionLegacyPath hands the request to the external legacy pipeline.
	ActionLegacyPath SystemAction = "legacy_path"
	// ActionDowngrade retries against the next simpler persona tier.
	ActionDowngrade SystemAction = "downgrade"
	// ActionDisableValidation accepts the record unvalidated, once.
	ActionDisableValidation SystemAction = "disable_validation"
)

// Outcome reports what a fallback execution produced.
type Outcome struct {
	// Succeeded is true when a usable record was produced.
	Succeeded bool
	// Record is the substituted or regenerated record, when any.
	Record map[string]interface{}
	// Strategy is the strategy that actually produced the outcome; it may
	// differ from the requested one after auto-escalation.
	Strategy models.FallbackType
	// TemplateID names the downgrade template used, if any.
	TemplateID string
	// Attempts counts regeneration attempts consumed.
	Attempts int
	// Reason explains a failure; always set when Succeeded is false.
	Reason string
}

// Options configures a Manager.
type Options struct {
	// Templates resolves downgrade templates; required for simple_template.
	Templates TemplateSource
	// Regenerator produces fresh records; required for regenerate.
	Regenerator Regenerator
	// Logger receives fallback events; nil uses a no-op logger.
	Logger *zap.Logger
}

// Manager owns the escalation policy, the canned-response pool, and
// strategy execution.
type Manager struct {
	templates   TemplateSource
	regenerator Regenerator
	pool        *responsePool
	log         *zap.Logger

	// sleep is swapped in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Manager.
func New(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		templates:   opts.Templates,
		regenerator: opts.Regenerator,
		pool:        newResponsePool(),
		log:         log.Named("fallback"),
		sleep:       sleepCtx,
	}
}

// SelectFallbackTemplate picks the template tier to escalate to, or nil when
// no escalation applies. Three or more critical errors, or a third attempt,
// jump straight to the simplest tier; one critical error, two format errors,
// or a second attempt move exactly one tier down.
func (m *Manager) SelectFallbackTemplate(personaType models.PersonaType, errors []models.ValidationError, attempt int) *models.ValidationTemplate {
	if personaType.Simplest() {
		return nil
	}

	critical, format := 0, 0
	for _, e := range errors {
		if e.Type.Critical() {
			critical++
		}
		if e.Type.FormatClass() {
			format++
		}
	}

	var target models.PersonaType
	switch {
	case critical >= 3 || attempt >= 3:
		target = models.PersonaSimple
	case critical >= 1 || format >= 2 || attempt >= 2:
		target = personaType.NextSimpler()
	default:
		return nil
	}

	if m.templates == nil {
		return nil
	}
	t := m.templates.GetLatestByPersonaType(target)
	if t == nil {
		m.log.Warn("no template at escalation tier",
			zap.String("from", string(personaType)), zap.String("to", string(target)))
	}
	return t
}

// RegisterDefaultResponse adds a pre-validated canned record for a persona
// type.
func (m *Manager) RegisterDefaultResponse(personaType models.PersonaType, record map[string]interface{}) {
	m.pool.add(personaType, record)
}

// GetDefaultResponse returns the next canned record for a persona type,
// spreading usage across the pool.
func (m *Manager) GetDefaultResponse(personaType models.PersonaType) (map[string]interface{}, bool) {
	return m.pool.get(personaType)
}

// Execute runs one fallback strategy. accept re-checks candidates from
// regeneration; nil accepts the first candidate. Execute never returns an
// error: an unusable outcome is reported in Outcome.Reason.
func (m *Manager) Execute(ctx context.Context, strategy models.FallbackStrategy, personaType models.PersonaType, vctx *models.Context, accept AcceptFunc) Outcome {
	switch strategy.Type {
	case models.FallbackRegenerate:
		return m.executeRegenerate(ctx, strategy, personaType, vctx, accept)
	case models.FallbackSimpleTemplate:
		return m.executeSimpleTemplate(strategy, personaType)
	case models.FallbackDefaultResponse:
		return m.executeDefaultResponse(personaType)
	case models.FallbackNone:
		return Outcome{
			Strategy: models.FallbackNone,
			Reason:   "fallback strategy is none; reporting the failure without substituting data",
		}
	default:
		return Outcome{
			Strategy: strategy.Type,
			Reason:   fmt.Sprintf("unknown fallback strategy %q", strategy.Type),
		}
	}
}

// executeRegenerate retries generation up to MaxRetries with exponential
// backoff, then auto-escalates to the template fallback if one is
// configured, else to a default response.
func (m *Manager) executeRegenerate(ctx context.Context, strategy models.FallbackStrategy, personaType models.PersonaType, vctx *models.Context, accept AcceptFunc) Outcome {
	out := Outcome{Strategy: models.FallbackRegenerate}
	if m.regenerator == nil {
		out.Reason = "no regenerator configured"
		return m.escalate(strategy, personaType, out)
	}

	delay := strategy.RetryDelay
	for attempt := 1; attempt <= strategy.MaxRetries; attempt++ {
		if attempt > 1 && delay > 0 {
			if err := m.sleep(ctx, delay); err != nil {
				out.Reason = "cancelled while waiting to retry"
				out.Attempts = attempt - 1
				return out
			}
			if strategy.BackoffMultiplier > 0 {
				delay = time.Duration(float64(delay) * strategy.BackoffMultiplier)
			}
		}
		out.Attempts = attempt

		record, err := m.regenerator.Regenerate(ctx, personaType, vctx)
		if err != nil {
			m.log.Warn("regeneration failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if accept == nil || accept(ctx, record) {
			out.Succeeded = true
			out.Record = record
			return out
		}
		m.log.Info("regenerated record rejected", zap.Int("attempt", attempt))
	}

	out.Reason = fmt.Sprintf("regeneration exhausted after %d attempts", out.Attempts)
	return m.escalate(strategy, personaType, out)
}

// escalate moves a spent regeneration outcome to the next strategy down.
func (m *Manager) escalate(strategy models.FallbackStrategy, personaType models.PersonaType, out Outcome) Outcome {
	if strategy.FallbackTemplateID != "" && m.templates != nil {
		if t, ok := m.templates.Get(strategy.FallbackTemplateID); ok {
			m.log.Info("escalating to template fallback", zap.String("template", t.ID))
			return Outcome{
				Succeeded:  true,
				Strategy:   models.FallbackSimpleTemplate,
				TemplateID: t.ID,
				Attempts:   out.Attempts,
			}
		}
	}

	fallbackOut := m.executeDefaultResponse(personaType)
	fallbackOut.Attempts = out.Attempts
	if !fallbackOut.Succeeded {
		fallbackOut.Reason = out.Reason + "; " + fallbackOut.Reason
	}
	return fallbackOut
}

// executeSimpleTemplate resolves the downgrade template named by the
// strategy, or the latest at the next simpler tier.
func (m *Manager) executeSimpleTemplate(strategy models.FallbackStrategy, personaType models.PersonaType) Outcome {
	out := Outcome{Strategy: models.FallbackSimpleTemplate}
	if m.templates == nil {
		out.Reason = "no template source configured"
		return out
	}

	if strategy.FallbackTemplateID != "" {
		if t, ok := m.templates.Get(strategy.FallbackTemplateID); ok {
			out.Succeeded = true
			out.TemplateID = t.ID
			return out
		}
		out.Reason = fmt.Sprintf("fallback template %q not found", strategy.FallbackTemplateID)
		return out
	}

	next := personaType.NextSimpler()
	if next == "" {
		out.Reason = "already at the simplest tier"
		return out
	}
	if t := m.templates.GetLatestByPersonaType(next); t != nil {
		out.Succeeded = true
		out.TemplateID = t.ID
		return out
	}
	out.Reason = fmt.Sprintf("no template registered for tier %s", next)
	return out
}

// executeDefaultResponse substitutes a canned record from the pool.
func (m *Manager) executeDefaultResponse(personaType models.PersonaType) Outcome {
	out := Outcome{Strategy: models.FallbackDefaultResponse}
	record, ok := m.pool.get(personaType)
	if !ok {
		out.Reason = fmt.Sprintf("no default responses registered for persona type %s", personaType)
		return out
	}
	out.Succeeded = true
	out.Record = record
	return out
}

// DecideSystemAction applies the system-level decision order, first match
// wins: global bypass, persona bypass, legacy path on critical errors,
// tier downgrade on repeated failures, legacy path when enabled, and
// finally a one-request validation disable.
func (m *Manager) DecideSystemAction(flags FlagSource, personaType models.PersonaType, errors []models.ValidationError, attempt int) SystemAction {
	if !flags.ValidationEnabled() {
		return ActionBypass
	}
	if !flags.PersonaTypeEnabled(personaType) {
		return ActionBypass
	}

	critical := false
	for _, e := range errors {
		if e.Type.Critical() {
			critical = true
			break
		}
	}
	if critical && flags.FallbackEnabled() {
		return ActionLegacyPath
	}
	if attempt >= 2 && !personaType.Simplest() {
		return ActionDowngrade
	}
	if flags.FallbackEnabled() {
		return ActionLegacyPath
	}
	return ActionDisableValidation
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
