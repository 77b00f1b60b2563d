package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Field names an enrichable contact attribute.
type Field string

const (
	FieldWebsite Field = "website"
	FieldEmail   Field = "email"
	FieldPhone   Field = "phone"
)

// AllFields lists every field in resolution order. Website comes first
// because the site-scraping methods of the other fields depend on it.
var AllFields = []Field{FieldWebsite, FieldEmail, FieldPhone}

// ParseField converts a string to a Field.
func ParseField(s string) (Field, error) {
	switch Field(s) {
	case FieldWebsite, FieldEmail, FieldPhone:
		return Field(s), nil
	default:
		return "", eris.Errorf("model: unknown field %q", s)
	}
}

// OrderFields returns the requested fields deduplicated and in resolution order.
func OrderFields(fields []Field) []Field {
	want := make(map[Field]bool, len(fields))
	for _, f := range fields {
		want[f] = true
	}
	out := make([]Field, 0, len(want))
	for _, f := range AllFields {
		if want[f] {
			out = append(out, f)
		}
	}
	return out
}

// ResultState is the lifecycle state of one (company, field) pair.
type ResultState string

const (
	StatePending  ResultState = "pending"
	StateFound    ResultState = "found"
	StateNotFound ResultState = "not_found"
)

// FieldResult is the outcome of a waterfall for one company and field.
type FieldResult struct {
	State       ResultState `json:"state"`
	Value       string      `json:"value,omitempty"`
	Method      string      `json:"method,omitempty"`
	MethodIndex int         `json:"method_index"`
	Attempts    int         `json:"attempts,omitempty"`
	Error       string      `json:"error,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Found records a value produced by the named waterfall method.
func Found(value, method string, index int) FieldResult {
	return FieldResult{State: StateFound, Value: value, Method: method, MethodIndex: index}
}

// NotFound records that every method ran without producing a value.
func NotFound() FieldResult {
	return FieldResult{State: StateNotFound, MethodIndex: -1}
}

// Pending is the state before any attempt, or after an attempt in which
// every method failed.
func Pending() FieldResult {
	return FieldResult{State: StatePending, MethodIndex: -1}
}

// IsTerminal reports whether the result must not be re-attempted within the run.
func (r FieldResult) IsTerminal() bool {
	return r.State == StateFound || r.State == StateNotFound
}

// OutputValue renders the result for the merged table.
func (r FieldResult) OutputValue() string {
	switch r.State {
	case StateFound:
		return r.Value
	case StateNotFound:
		return NotFoundValue
	default:
		return ""
	}
}
