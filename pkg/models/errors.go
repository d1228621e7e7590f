package models

// ErrorType classifies a validation failure. The taxonomy is closed: every
// failure the engine reports maps onto one of these nine kinds.
type ErrorType string

const (
	// ErrStructureInvalid means the record's overall shape is wrong.
	ErrStructureInvalid ErrorType = "STRUCTURE_INVALID"
	// ErrRequiredFieldMissing means a required field is absent or empty.
	ErrRequiredFieldMissing ErrorType = "REQUIRED_FIELD_MISSING"
	// ErrTypeMismatch means a field holds a value of the wrong type.
	ErrTypeMismatch ErrorType = "TYPE_MISMATCH"
	// ErrValueOutOfRange means a numeric or length bound was violated.
	ErrValueOutOfRange ErrorType = "VALUE_OUT_OF_RANGE"
	// ErrFormatInvalid means a field fails its syntactic format.
	ErrFormatInvalid ErrorType = "FORMAT_INVALID"
	// ErrCulturalDataInconsistent means a field contradicts the resolved
	// cultural signals in the validation context.
	ErrCulturalDataInconsistent ErrorType = "CULTURAL_DATA_INCONSISTENT"
	// ErrBusinessRuleViolation means a domain constraint was violated.
	ErrBusinessRuleViolation ErrorType = "BUSINESS_RULE_VIOLATION"
	// ErrTemplateNotFound means no usable template matched the request.
	ErrTemplateNotFound ErrorType = "TEMPLATE_NOT_FOUND"
	// ErrValidationTimeout means a rule or the engine itself failed to
	// complete; internal faults are reported under this kind.
	ErrValidationTimeout ErrorType = "VALIDATION_TIMEOUT"
)

// Valid returns true if the error type is one of the nine known kinds.
func (e ErrorType) Valid() bool {
	switch e {
	case ErrStructureInvalid, ErrRequiredFieldMissing, ErrTypeMismatch,
		ErrValueOutOfRange, ErrFormatInvalid, ErrCulturalDataInconsistent,
		ErrBusinessRuleViolation, ErrTemplateNotFound, ErrValidationTimeout:
		return true
	default:
		return false
	}
}

// Critical returns true for the kinds that count toward fallback escalation
// as critical errors.
func (e ErrorType) Critical() bool {
	switch e {
	case ErrStructureInvalid, ErrRequiredFieldMissing, ErrBusinessRuleViolation:
		return true
	default:
		return false
	}
}

// FormatClass returns true for the kinds that count toward fallback
// escalation as format errors.
func (e ErrorType) FormatClass() bool {
	switch e {
	case ErrFormatInvalid, ErrTypeMismatch:
		return true
	default:
		return false
	}
}

// ValidationError records a single rule failure inside a result. Failures
// are always data, never panics or returned errors.
type ValidationError struct {
	// ID identifies the rule (or synthetic source) that produced the error.
	ID string `json:"id"`
	// Type is the taxonomy kind.
	Type ErrorType `json:"type"`
	// Field is the dot path the error refers to, if any.
	Field string `json:"field,omitempty"`
	// Message is the human-readable explanation.
	Message string `json:"message"`
	// Severity ranks the failure.
	Severity Severity `json:"severity"`
}

// ValidationWarning records a non-blocking finding.
type ValidationWarning struct {
	// ID identifies the rule (or synthetic source) that produced the warning.
	ID string `json:"id,omitempty"`
	// Field is the dot path the warning refers to, if any.
	Field string `json:"field,omitempty"`
	// Message is the human-readable explanation.
	Message string `json:"message"`
}
