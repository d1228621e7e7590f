package rules

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// defaultRuleTimeout bounds rules that declare no timeout of their own.
const defaultRuleTimeout = 2 * time.Second

// Processor executes rule sets in dependency-ordered waves. Rules within a
// wave run concurrently up to the configured cap; waves are strictly
// sequential.
type Processor struct {
	maxConcurrent  int64
	defaultTimeout time.Duration
	log            *zap.Logger

	mu         sync.RWMutex
	validators map[string]Validator
	business   map[string]BusinessCheck
}

// Result aggregates a rule-set execution.
type Result struct {
	// IsValid is true exactly when Errors is empty.
	IsValid bool
	// Errors collects all required-rule failures.
	Errors []models.ValidationError
	// Warnings collects non-required failures and scheduling diagnostics.
	Warnings []models.ValidationWarning
	// Score is the rounded mean of per-rule scores among rules that
	// executed and did not time out.
	Score int
	// RulesExecuted lists rule IDs in completion order.
	RulesExecuted []string
	// RulesFailed lists rule IDs that produced errors.
	RulesFailed []string
	// RulesSkipped lists rule IDs that never ran.
	RulesSkipped []string
	// ForcedWave is true when a cycle or dangling dependency made the
	// processor force-schedule the remainder.
	ForcedWave bool
	// HaltedEarly is true when a structural error stopped later waves.
	HaltedEarly bool
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	// MaxConcurrent caps parallel rule executions within a wave; zero uses 5.
	MaxConcurrent int
	// DefaultTimeout applies to rules without their own; zero uses 2s.
	DefaultTimeout time.Duration
	// Logger receives execution events; nil uses a no-op logger.
	Logger *zap.Logger
}

// NewProcessor creates a Processor with the built-in validator kinds
// registered.
func NewProcessor(opts ProcessorOptions) *Processor {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 5
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultRuleTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	business := make(map[string]BusinessCheck)
	return &Processor{
		maxConcurrent:  int64(opts.MaxConcurrent),
		defaultTimeout: opts.DefaultTimeout,
		log:            log.Named("rules"),
		validators:     builtinValidators(business),
		business:       business,
	}
}

// RegisterValidator adds or replaces a validator kind.
func (p *Processor) RegisterValidator(kind string, v Validator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validators[kind] = v
}

// RegisterBusinessCheck registers a named check for "business" rules.
func (p *Processor) RegisterBusinessCheck(name string, check BusinessCheck) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.business[name] = check
}

// ruleOutcome pairs a rule with its verdict for aggregation.
type ruleOutcome struct {
	rule     models.ValidationRule
	outcome  Outcome
	timedOut bool
}

// Process runs the rule set against the record. It never returns an error
// and never deadlocks: an unsatisfiable remainder (cycle or dangling
// dependency) is force-scheduled as one final wave with a diagnostic.
func (p *Processor) Process(ctx context.Context, record map[string]interface{}, ruleSet []models.ValidationRule, vctx *models.Context) *Result {
	result := &Result{IsValid: true}
	if len(ruleSet) == 0 {
		result.Score = models.MaxScore
		return result
	}

	g := newDepGraph(ruleSet)
	var scores []int

	for {
		wave := g.ready()
		forced := false
		if len(wave) == 0 {
			remainder := g.remaining()
			if len(remainder) == 0 {
				break
			}
			// Cycle or dangling reference: run everything left rather
			// than deadlock, and say so.
			wave = remainder
			forced = true
			result.ForcedWave = true
			result.Warnings = append(result.Warnings, models.ValidationWarning{
				Message: fmt.Sprintf("unresolvable rule dependencies (cycle or unknown id); force-scheduled %d remaining rules", len(remainder)),
			})
			p.log.Warn("force-scheduling remainder", zap.Int("rules", len(remainder)))
		}

		outcomes := p.runWave(ctx, g, wave, record, vctx)

		structuralError := false
		for _, ro := range outcomes {
			g.markExecuted(ro.rule.ID)
			result.RulesExecuted = append(result.RulesExecuted, ro.rule.ID)

			if !ro.timedOut {
				scores = append(scores, ro.outcome.Score)
			}
			if ro.outcome.Error != nil {
				result.Errors = append(result.Errors, *ro.outcome.Error)
				result.RulesFailed = append(result.RulesFailed, ro.rule.ID)
				if ro.rule.Category == models.CategoryStructure {
					structuralError = true
				}
			}
			if ro.outcome.Warning != nil {
				result.Warnings = append(result.Warnings, *ro.outcome.Warning)
			}
		}

		if forced {
			break
		}
		if structuralError {
			// Certainly-invalid data; later waves would be wasted work.
			result.HaltedEarly = true
			break
		}
	}

	result.RulesSkipped = g.remaining()
	result.IsValid = len(result.Errors) == 0
	result.Score = meanScore(scores)
	return result
}

// runWave executes one wave concurrently, capped by the semaphore, and
// returns outcomes in completion order.
func (p *Processor) runWave(ctx context.Context, g *depGraph, wave []string, record map[string]interface{}, vctx *models.Context) []ruleOutcome {
	sem := semaphore.NewWeighted(p.maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := make([]ruleOutcome, 0, len(wave))

	for _, id := range wave {
		rule := g.rule(id)
		wg.Add(1)
		go func(rule models.ValidationRule) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				// Context cancelled while waiting for a slot; report the
				// rule as timed out rather than dropping it.
				mu.Lock()
				outcomes = append(outcomes, ruleOutcome{rule: rule, outcome: timeoutOutcome(rule), timedOut: true})
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			ro := p.executeRule(ctx, rule, record, vctx)
			mu.Lock()
			outcomes = append(outcomes, ro)
			mu.Unlock()
		}(rule)
	}
	wg.Wait()
	return outcomes
}

// executeRule races one rule against its timeout. A timeout or panic fails
// only this rule; siblings in the wave are unaffected.
func (p *Processor) executeRule(ctx context.Context, rule models.ValidationRule, record map[string]interface{}, vctx *models.Context) ruleOutcome {
	timeout := rule.Timeout
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}

	p.mu.RLock()
	validator, ok := p.validators[rule.Kind]
	p.mu.RUnlock()
	if !ok {
		return ruleOutcome{rule: rule, outcome: Outcome{
			Error: &models.ValidationError{
				ID:       rule.ID,
				Type:     models.ErrValidationTimeout,
				Field:    rule.Field,
				Message:  fmt.Sprintf("no validator registered for kind %q", rule.Kind),
				Severity: rule.Severity,
			},
		}}
	}

	value, present := LookupField(record, rule.Field)
	in := Input{Rule: rule, Value: value, Present: present, Record: record, Context: vctx}

	ruleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("validator panicked", zap.String("rule", rule.ID), zap.Any("panic", r))
				done <- Outcome{Error: &models.ValidationError{
					ID:       rule.ID,
					Type:     models.ErrValidationTimeout,
					Field:    rule.Field,
					Message:  fmt.Sprintf("validator for rule %s failed internally", rule.ID),
					Severity: rule.Severity,
				}}
			}
		}()
		done <- validator.Validate(ruleCtx, in)
	}()

	select {
	case outcome := <-done:
		return ruleOutcome{rule: rule, outcome: outcome}
	case <-ruleCtx.Done():
		p.log.Warn("rule timed out", zap.String("rule", rule.ID), zap.Duration("timeout", timeout))
		return ruleOutcome{rule: rule, outcome: timeoutOutcome(rule), timedOut: true}
	}
}

// timeoutOutcome converts a timeout into a failed result for one rule.
func timeoutOutcome(rule models.ValidationRule) Outcome {
	return Outcome{
		Error: &models.ValidationError{
			ID:       rule.ID,
			Type:     models.ErrValidationTimeout,
			Field:    rule.Field,
			Message:  fmt.Sprintf("rule %s did not complete within its timeout", rule.ID),
			Severity: rule.Severity,
		},
	}
}

// meanScore rounds the mean of the collected per-rule scores; an empty set
// scores zero.
func meanScore(scores []int) int {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return int(math.Round(float64(sum) / float64(len(scores))))
}
