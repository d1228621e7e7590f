// Package repair performs best-effort structural repair of malformed
// generated output before it is re-validated. It fixes syntax and shape
// only; it never decides whether the content is correct.
package repair

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// unquotedKey matches a bare identifier used as an object key.
var unquotedKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)

// Issue describes one structural problem found in raw output.
type Issue struct {
	// Field names the affected field, when the issue is field-scoped.
	Field string `json:"field,omitempty"`
	// Description says what is wrong.
	Description string `json:"description"`
	// AutoFixable is true when the engine's repairs can address it.
	AutoFixable bool `json:"autoFixable"`
}

// SkeletonFunc derives a default record skeleton from the validation
// context. Missing fields are filled from this skeleton.
type SkeletonFunc func(vctx *models.Context) map[string]interface{}

// Options configures an Engine.
type Options struct {
	// NumericFields are field names whose values should be numbers.
	NumericFields []string
	// ListFields are field names whose values should be lists.
	ListFields []string
	// Skeleton overrides the default skeleton derivation.
	Skeleton SkeletonFunc
	// Logger receives repair events; nil uses a no-op logger.
	Logger *zap.Logger
}

// Engine applies syntactic and structural repairs to generated records.
type Engine struct {
	numericFields map[string]bool
	listFields    map[string]bool
	skeleton      SkeletonFunc
	log           *zap.Logger
}

// New creates a repair engine. With zero options it knows the persona
// record's conventional numeric and list fields.
func New(opts Options) *Engine {
	if len(opts.NumericFields) == 0 {
		opts.NumericFields = []string{"age", "experience_years", "company_size", "income"}
	}
	if len(opts.ListFields) == 0 {
		opts.ListFields = []string{"tags", "interests", "skills", "pain_points", "goals"}
	}
	if opts.Skeleton == nil {
		opts.Skeleton = defaultSkeleton
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	numeric := make(map[string]bool, len(opts.NumericFields))
	for _, f := range opts.NumericFields {
		numeric[f] = true
	}
	list := make(map[string]bool, len(opts.ListFields))
	for _, f := range opts.ListFields {
		list[f] = true
	}
	return &Engine{
		numericFields: numeric,
		listFields:    list,
		skeleton:      opts.Skeleton,
		log:           log.Named("repair"),
	}
}

// DetectIssues inspects raw output and reports structural problems.
// Malformed JSON that the syntax repairs can parse is flagged auto-fixable.
func (e *Engine) DetectIssues(raw string) []Issue {
	var issues []Issue

	var parsed interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		fixable := false
		if repaired := e.RepairJSONStructure(raw); json.Unmarshal([]byte(repaired), &parsed) == nil {
			fixable = true
		}
		issues = append(issues, Issue{
			Description: "output is not valid JSON: " + err.Error(),
			AutoFixable: fixable,
		})
		if !fixable {
			return issues
		}
	}

	if _, ok := parsed.(map[string]interface{}); !ok {
		issues = append(issues, Issue{
			Description: "output is not a JSON object",
			AutoFixable: false,
		})
	}
	return issues
}

// RepairJSONStructure applies the two syntax repairs malformed model output
// needs most often: trailing commas before closing brackets are removed and
// bare object keys are quoted. The input is returned unchanged when neither
// applies.
func (e *Engine) RepairJSONStructure(raw string) string {
	repaired := stripTrailingCommas(raw)
	repaired = quoteBareKeys(repaired)
	if repaired != raw {
		e.log.Debug("applied syntax repairs", zap.Int("delta", len(raw)-len(repaired)))
	}
	return repaired
}

// FillMissingFields merges partial data over a context-derived skeleton.
// Fields already present in partial are never overwritten, at any depth.
func (e *Engine) FillMissingFields(partial map[string]interface{}, vctx *models.Context) map[string]interface{} {
	return merge(e.skeleton(vctx), partial)
}

// NormalizeFieldTypes coerces values toward their declared shapes: numeric
// strings become numbers for known numeric fields, and non-list values
// become empty lists for known list fields. Nested objects are walked;
// unknown fields pass through untouched.
func (e *Engine) NormalizeFieldTypes(record map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	for key, value := range record {
		switch {
		case e.numericFields[key]:
			out[key] = coerceNumber(value)
		case e.listFields[key]:
			if _, ok := value.([]interface{}); ok {
				out[key] = value
			} else {
				out[key] = []interface{}{}
			}
		default:
			if nested, ok := value.(map[string]interface{}); ok {
				out[key] = e.NormalizeFieldTypes(nested)
			} else {
				out[key] = value
			}
		}
	}
	return out
}

// Repair runs the full pipeline against an already-parsed record: fill
// missing fields from the skeleton, then normalize field types.
func (e *Engine) Repair(record map[string]interface{}, vctx *models.Context) map[string]interface{} {
	return e.NormalizeFieldTypes(e.FillMissingFields(record, vctx))
}

// RepairRaw parses raw output, applying syntax repairs if the first parse
// fails, then runs the full pipeline. ok is false when the output cannot be
// recovered into an object at all.
func (e *Engine) RepairRaw(raw string, vctx *models.Context) (map[string]interface{}, bool) {
	var record map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		repaired := e.RepairJSONStructure(raw)
		if err := json.Unmarshal([]byte(repaired), &record); err != nil {
			e.log.Warn("output unrecoverable", zap.Error(err))
			return nil, false
		}
	}
	return e.Repair(record, vctx), true
}

// defaultSkeleton seeds the fields every persona record carries, pulling
// cultural values from the context when they are resolved.
func defaultSkeleton(vctx *models.Context) map[string]interface{} {
	skeleton := map[string]interface{}{
		"name": "",
		"tags": []interface{}{},
	}
	if vctx == nil {
		return skeleton
	}
	if vctx.Cultural.Region != "" {
		skeleton["region"] = vctx.Cultural.Region
	}
	if vctx.Cultural.Language != "" {
		skeleton["language"] = vctx.Cultural.Language
	}
	return skeleton
}

// merge lays partial over base. Maps merge recursively; any other present
// value in partial wins.
func merge(base, partial map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(partial))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range partial {
		baseMap, baseOk := out[k].(map[string]interface{})
		partialMap, partialOk := v.(map[string]interface{})
		if baseOk && partialOk {
			out[k] = merge(baseMap, partialMap)
			continue
		}
		out[k] = v
	}
	return out
}

// coerceNumber turns numeric-looking strings into float64; everything else
// passes through.
func coerceNumber(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return value
	}
	return n
}

// stripTrailingCommas removes commas that directly precede a closing brace
// or bracket, outside of string literals.
func stripTrailingCommas(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	inString := false
	escaped := false
	pendingComma := -1
	var pendingWS strings.Builder

	flush := func(withComma bool) {
		if pendingComma >= 0 {
			if withComma {
				b.WriteByte(',')
			}
			b.WriteString(pendingWS.String())
			pendingComma = -1
			pendingWS.Reset()
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			flush(true)
			inString = true
			b.WriteByte(c)
		case c == ',':
			flush(true)
			pendingComma = i
		case c == '}' || c == ']':
			flush(false)
			b.WriteByte(c)
		case pendingComma >= 0 && (c == ' ' || c == '\t' || c == '\n' || c == '\r'):
			pendingWS.WriteByte(c)
		default:
			flush(true)
			b.WriteByte(c)
		}
	}
	flush(true)
	return b.String()
}

// quoteBareKeys quotes bare identifier object keys. The regex only ever
// sees text outside string literals; a quoted value containing "key:" must
// come through untouched.
func quoteBareKeys(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	var span strings.Builder
	inString := false
	escaped := false

	flushSpan := func() {
		b.WriteString(unquotedKey.ReplaceAllString(span.String(), `$1"$2"$3`))
		span.Reset()
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			flushSpan()
			inString = true
			b.WriteByte(c)
			continue
		}
		span.WriteByte(c)
	}
	flushSpan()
	return b.String()
}
