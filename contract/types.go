// Package contract is the correctness core of ContractGate: it validates
// concrete payloads against registered schemas and checks that field
// mappings are coherent with the schemas they bridge. Validation findings
// are always data, never Go errors, so a caller can enumerate every failure
// in one pass.
package contract

// Direction selects which side of a ServiceSchema a payload is validated
// against
type Direction int

const (
	// Request validates against the endpoint's request schema
	Request Direction = iota
	// Response validates against the endpoint's response schema
	Response
)

// String returns the string representation of Direction
func (d Direction) String() string {
	switch d {
	case Request:
		return "request"
	case Response:
		return "response"
	default:
		return "unknown"
	}
}

// Validation error codes for mapping checks
const (
	// CodePathNotInSchema reports a mapping path that does not resolve
	// against the relevant schema's declared shape
	CodePathNotInSchema = "PathNotInSchema"
	// CodeTypeMismatch reports a source field whose declared type differs
	// from the target field's declared type
	CodeTypeMismatch = "TypeMismatch"
)

// ValidationError is one structured finding inside a Result
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Pair    int    `json:"pair,omitempty"` // 1-based field pair index, mapping checks only
}

// Result is the outcome of a single validation call. It is created fresh
// per call and never mutated after return. Errors keep the order in which
// the findings were produced, so failures are stable across runs on
// unchanged input.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors"`
}

func newResult() *Result {
	return &Result{Valid: true, Errors: []ValidationError{}}
}

func (r *Result) add(e ValidationError) {
	r.Valid = false
	r.Errors = append(r.Errors, e)
}
