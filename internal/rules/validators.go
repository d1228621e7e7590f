package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// Input is everything a validator sees for one rule execution.
type Input struct {
	// Rule is the rule being executed.
	Rule models.ValidationRule
	// Value is the field value at the rule's path.
	Value interface{}
	// Present is false when the path did not resolve.
	Present bool
	// Record is the full record under validation.
	Record map[string]interface{}
	// Context is the validation context for the call.
	Context *models.Context
}

// Outcome is a validator's verdict for one rule.
type Outcome struct {
	// Passed is true when the check succeeded.
	Passed bool
	// Score is the 0-100 quality contribution of this rule.
	Score int
	// Error is set on a required-rule failure.
	Error *models.ValidationError
	// Warning is set on a non-required-rule failure.
	Warning *models.ValidationWarning
}

// Validator checks one field value against a rule. Implementations must be
// safe for concurrent use and honor ctx cancellation for long checks.
type Validator interface {
	Validate(ctx context.Context, in Input) Outcome
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, in Input) Outcome

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, in Input) Outcome {
	return f(ctx, in)
}

// BusinessCheck evaluates a named domain constraint over the whole record.
// It returns ok plus a message describing the violation.
type BusinessCheck func(record map[string]interface{}, vctx *models.Context) (ok bool, message string)

// pass is the outcome of a successful check.
func pass() Outcome {
	return Outcome{Passed: true, Score: models.MaxScore}
}

// fail converts a failed check into an error or a warning depending on
// whether the rule is required. Non-required failures still contribute a
// partial score.
func fail(in Input, defaultType models.ErrorType, message string) Outcome {
	errType := defaultType
	if in.Rule.ErrorType.Valid() {
		errType = in.Rule.ErrorType
	}
	if in.Rule.Required {
		return Outcome{
			Score: 0,
			Error: &models.ValidationError{
				ID:       in.Rule.ID,
				Type:     errType,
				Field:    in.Rule.Field,
				Message:  message,
				Severity: in.Rule.Severity,
			},
		}
	}
	return Outcome{
		Score: models.MaxScore / 2,
		Warning: &models.ValidationWarning{
			ID:      in.Rule.ID,
			Field:   in.Rule.Field,
			Message: message,
		},
	}
}

// builtinValidators returns the validator set every processor starts with.
func builtinValidators(business map[string]BusinessCheck) map[string]Validator {
	return map[string]Validator{
		"required": ValidatorFunc(validateRequired),
		"type":     ValidatorFunc(validateType),
		"range":    ValidatorFunc(validateRange),
		"length":   ValidatorFunc(validateLength),
		"pattern":  ValidatorFunc(validatePattern),
		"enum":     ValidatorFunc(validateEnum),
		"cultural": ValidatorFunc(validateCultural),
		"business": businessValidator{checks: business},
	}
}

// validateRequired fails when the field is absent, nil, or an empty string.
func validateRequired(_ context.Context, in Input) Outcome {
	if !in.Present || in.Value == nil {
		return fail(in, models.ErrRequiredFieldMissing, fmt.Sprintf("field %q is required", in.Rule.Field))
	}
	if s, ok := in.Value.(string); ok && strings.TrimSpace(s) == "" {
		return fail(in, models.ErrRequiredFieldMissing, fmt.Sprintf("field %q is required", in.Rule.Field))
	}
	return pass()
}

// validateType checks the declared value type. Absent fields pass; presence
// is the required validator's concern.
func validateType(_ context.Context, in Input) Outcome {
	if !in.Present || in.Value == nil {
		return pass()
	}

	want := in.Rule.Params.Type
	var ok bool
	switch want {
	case "string":
		_, ok = in.Value.(string)
	case "number":
		ok = isNumber(in.Value)
	case "boolean":
		_, ok = in.Value.(bool)
	case "list":
		_, ok = in.Value.([]interface{})
	case "object":
		_, ok = in.Value.(map[string]interface{})
	default:
		return fail(in, models.ErrTypeMismatch, fmt.Sprintf("rule %s declares unknown type %q", in.Rule.ID, want))
	}
	if !ok {
		return fail(in, models.ErrTypeMismatch, fmt.Sprintf("field %q should be %s, got %T", in.Rule.Field, want, in.Value))
	}
	return pass()
}

// validateRange checks numeric bounds.
func validateRange(_ context.Context, in Input) Outcome {
	if !in.Present || in.Value == nil {
		return pass()
	}

	n, ok := toFloat(in.Value)
	if !ok {
		return fail(in, models.ErrTypeMismatch, fmt.Sprintf("field %q is not numeric", in.Rule.Field))
	}
	if min := in.Rule.Params.Min; min != nil && n < *min {
		return fail(in, models.ErrValueOutOfRange, fmt.Sprintf("field %q value %v below minimum %v", in.Rule.Field, n, *min))
	}
	if max := in.Rule.Params.Max; max != nil && n > *max {
		return fail(in, models.ErrValueOutOfRange, fmt.Sprintf("field %q value %v above maximum %v", in.Rule.Field, n, *max))
	}
	return pass()
}

// validateLength checks string or list length bounds.
func validateLength(_ context.Context, in Input) Outcome {
	if !in.Present || in.Value == nil {
		return pass()
	}

	var length int
	switch v := in.Value.(type) {
	case string:
		length = len([]rune(v))
	case []interface{}:
		length = len(v)
	default:
		return fail(in, models.ErrTypeMismatch, fmt.Sprintf("field %q has no length", in.Rule.Field))
	}

	if length < in.Rule.Params.MinLength {
		return fail(in, models.ErrValueOutOfRange, fmt.Sprintf("field %q length %d below minimum %d", in.Rule.Field, length, in.Rule.Params.MinLength))
	}
	if max := in.Rule.Params.MaxLength; max > 0 && length > max {
		return fail(in, models.ErrValueOutOfRange, fmt.Sprintf("field %q length %d above maximum %d", in.Rule.Field, length, max))
	}
	return pass()
}

// validatePattern checks a string against the rule's regular expression.
func validatePattern(_ context.Context, in Input) Outcome {
	if !in.Present || in.Value == nil {
		return pass()
	}

	s, ok := in.Value.(string)
	if !ok {
		return fail(in, models.ErrTypeMismatch, fmt.Sprintf("field %q is not a string", in.Rule.Field))
	}
	re, err := regexp.Compile(in.Rule.Params.Pattern)
	if err != nil {
		return fail(in, models.ErrFormatInvalid, fmt.Sprintf("rule %s has invalid pattern: %v", in.Rule.ID, err))
	}
	if !re.MatchString(s) {
		return fail(in, models.ErrFormatInvalid, fmt.Sprintf("field %q does not match %s", in.Rule.Field, in.Rule.Params.Pattern))
	}
	return pass()
}

// validateEnum checks membership in the allowed value list.
func validateEnum(_ context.Context, in Input) Outcome {
	if !in.Present || in.Value == nil {
		return pass()
	}

	got := fmt.Sprintf("%v", in.Value)
	for _, allowed := range in.Rule.Params.Allowed {
		if got == allowed {
			return pass()
		}
	}
	return fail(in, models.ErrValueOutOfRange, fmt.Sprintf("field %q value %q not in %v", in.Rule.Field, got, in.Rule.Params.Allowed))
}

// validateCultural checks a field against the named cultural signal from the
// validation context. A missing signal passes: the cultural collaborator may
// legitimately have nothing resolved.
func validateCultural(_ context.Context, in Input) Outcome {
	if !in.Present || in.Value == nil || in.Context == nil {
		return pass()
	}

	var expected string
	switch in.Rule.Params.Signal {
	case "region":
		expected = in.Context.Cultural.Region
	case "language":
		expected = in.Context.Cultural.Language
	case "name_order":
		expected = in.Context.Cultural.NameOrder
	case "formality":
		expected = in.Context.Cultural.Formality
	default:
		return fail(in, models.ErrCulturalDataInconsistent, fmt.Sprintf("rule %s names unknown cultural signal %q", in.Rule.ID, in.Rule.Params.Signal))
	}
	if expected == "" {
		return pass()
	}

	got, ok := in.Value.(string)
	if !ok || !strings.EqualFold(got, expected) {
		return fail(in, models.ErrCulturalDataInconsistent,
			fmt.Sprintf("field %q value %v contradicts resolved %s %q", in.Rule.Field, in.Value, in.Rule.Params.Signal, expected))
	}
	return pass()
}

// businessValidator dispatches to registered named checks.
type businessValidator struct {
	checks map[string]BusinessCheck
}

// Validate runs the check the rule's expression names.
func (b businessValidator) Validate(_ context.Context, in Input) Outcome {
	check, ok := b.checks[in.Rule.Params.Expression]
	if !ok {
		return fail(in, models.ErrBusinessRuleViolation, fmt.Sprintf("rule %s names unregistered business check %q", in.Rule.ID, in.Rule.Params.Expression))
	}
	ok, message := check(in.Record, in.Context)
	if !ok {
		return fail(in, models.ErrBusinessRuleViolation, message)
	}
	return pass()
}

// isNumber reports whether v is one of the numeric types JSON decoding and
// template defaults produce.
func isNumber(v interface{}) bool {
	_, ok := toFloat(v)
	return ok
}

// toFloat widens any numeric value to float64.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
