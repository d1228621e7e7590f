package models

// CulturalSignals are the resolved cultural attributes the generation step
// worked from. They arrive from the external cultural-data collaborator and
// are treated as read-only ground truth during validation.
type CulturalSignals struct {
	// Region is the ISO region code the persona belongs to.
	Region string `json:"region,omitempty"`
	// Language is the BCP 47 language tag of the persona.
	Language string `json:"language,omitempty"`
	// NameOrder is "given-first" or "family-first".
	NameOrder string `json:"name_order,omitempty"`
	// Formality is the expected register: "formal", "neutral", "casual".
	Formality string `json:"formality,omitempty"`
}

// Context carries everything the engine needs about the call that produced
// the record under validation. Fields are explicit; bounded string extras go
// in Extensions.
type Context struct {
	// RequestID correlates the validation with the originating request.
	RequestID string `json:"request_id,omitempty"`
	// Request is the original generation request text.
	Request string `json:"request,omitempty"`
	// Cultural holds the resolved cultural signals.
	Cultural CulturalSignals `json:"cultural,omitempty"`
	// Attempt is the 1-indexed generation attempt number.
	Attempt int `json:"attempt,omitempty"`
	// PriorErrors lists errors from earlier attempts of the same request.
	PriorErrors []ValidationError `json:"prior_errors,omitempty"`
	// Extensions holds bounded string extras for forward compatibility.
	Extensions map[string]string `json:"extensions,omitempty"`
}
