package model

import (
	"time"
)

// RunStatus is the state of a scheduler run.
type RunStatus string

const (
	RunNotStarted RunStatus = "not_started"
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunStopped    RunStatus = "stopped"
	RunFailed     RunStatus = "failed"
)

// IsTerminal reports whether the run has reached an end state.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunStopped || s == RunFailed
}

// RunMeta holds run-level progress metadata.
type RunMeta struct {
	RunID       string     `json:"run_id"`
	Status      RunStatus  `json:"status"`
	Fields      []Field    `json:"fields,omitempty"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	BatchCursor int        `json:"batch_cursor"`
	LastCompany string     `json:"last_company,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Record holds every field result for one company.
type Record struct {
	Company   string                `json:"company"`
	Fields    map[Field]FieldResult `json:"fields"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{Company: r.Company, UpdatedAt: r.UpdatedAt, Fields: make(map[Field]FieldResult, len(r.Fields))}
	for f, res := range r.Fields {
		out.Fields[f] = res
	}
	return out
}

// Failure is one logged method error, kept for auditing a run.
type Failure struct {
	Company string    `json:"company"`
	Field   Field     `json:"field"`
	Method  string    `json:"method"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

// Stats counts terminal results per field.
type Stats struct {
	Found    map[Field]int `json:"found"`
	NotFound map[Field]int `json:"not_found"`
	Pending  map[Field]int `json:"pending"`
}

// Snapshot is a read-only view of the progress store.
type Snapshot struct {
	Meta     RunMeta           `json:"meta"`
	Records  map[string]Record `json:"records"`
	Failures []Failure         `json:"failures,omitempty"`
	Stats    Stats             `json:"stats"`
}

// Result returns the stored result for a company key and field, or Pending.
func (s Snapshot) Result(key string, f Field) FieldResult {
	rec, ok := s.Records[key]
	if !ok {
		return Pending()
	}
	res, ok := rec.Fields[f]
	if !ok {
		return Pending()
	}
	return res
}

// ComputeStats tallies results across records.
func ComputeStats(records map[string]Record) Stats {
	st := Stats{
		Found:    map[Field]int{},
		NotFound: map[Field]int{},
		Pending:  map[Field]int{},
	}
	for _, rec := range records {
		for f, res := range rec.Fields {
			switch res.State {
			case StateFound:
				st.Found[f]++
			case StateNotFound:
				st.NotFound[f]++
			default:
				st.Pending[f]++
			}
		}
	}
	return st
}

// SearchHit is one search result. It is never persisted.
type SearchHit struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Text joins title and description for extraction.
func (h SearchHit) Text() string {
	return h.Title + " " + h.Description
}

// Table is a header plus rows keyed by column name, in input order.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// Values returns a row as a slice ordered by Columns.
func (t Table) Values(i int) []string {
	out := make([]string, len(t.Columns))
	for j, col := range t.Columns {
		out[j] = t.Rows[i][col]
	}
	return out
}
