// Package progress is the durable record of what an enrichment run has
// attempted. A single writer mutates it through Tracker; readers take
// snapshots.
package progress

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-cli/internal/model"
)

// DocumentVersion is the current on-disk format version.
const DocumentVersion = 1

var (
	// ErrPersist is returned when a flush fails twice in a row.
	ErrPersist = eris.New("progress: persist failed")
	// ErrLocked is returned when another process holds the store.
	ErrLocked = eris.New("progress: store is locked by another run")
)

// Document is the full durable state of one run.
type Document struct {
	Version  int                     `json:"version"`
	Meta     model.RunMeta           `json:"meta"`
	Records  map[string]model.Record `json:"records"`
	Failures []model.Failure         `json:"failures,omitempty"`
}

func newDocument() Document {
	return Document{
		Version: DocumentVersion,
		Meta:    model.RunMeta{Status: model.RunNotStarted},
		Records: map[string]model.Record{},
	}
}

// Persister moves a Document to and from durable storage.
type Persister interface {
	// Read returns the active document, or nil when there is none.
	Read(ctx context.Context) (*Document, error)
	// Write persists doc. dirty names the record keys changed since the
	// last successful write; implementations may rewrite everything.
	Write(ctx context.Context, doc *Document, dirty []string) error
	// Archive retires the active document so the next Read returns nil.
	Archive(ctx context.Context) error
	Close() error
}

// Inspector is implemented by persisters whose Read has side effects. Inspect
// returns the same document as Read without changing durable state.
type Inspector interface {
	Inspect(ctx context.Context) (*Document, error)
}

// Store is the contract the scheduler depends on.
type Store interface {
	Load(ctx context.Context) error
	// Inspect loads like Load but leaves durable state untouched.
	Inspect(ctx context.Context) error
	Reset(ctx context.Context) error
	Get(key string, f model.Field) model.FieldResult
	Set(key, company string, f model.Field, res model.FieldResult)
	RecordFailure(f model.Failure)
	Meta() model.RunMeta
	UpdateMeta(fn func(*model.RunMeta))
	Flush(ctx context.Context) error
	Snapshot() model.Snapshot
}

// ReadSnapshot builds a snapshot straight from durable state without
// taking the writer's lock.
func ReadSnapshot(ctx context.Context, p Persister) (model.Snapshot, error) {
	doc, err := p.Read(ctx)
	if err != nil {
		return model.Snapshot{}, eris.Wrap(err, "progress: read snapshot")
	}
	if doc == nil {
		d := newDocument()
		doc = &d
	}
	return snapshotOf(doc), nil
}

func snapshotOf(doc *Document) model.Snapshot {
	records := make(map[string]model.Record, len(doc.Records))
	for k, r := range doc.Records {
		records[k] = r.Clone()
	}
	meta := doc.Meta
	meta.Fields = append([]model.Field(nil), doc.Meta.Fields...)
	return model.Snapshot{
		Meta:     meta,
		Records:  records,
		Failures: append([]model.Failure(nil), doc.Failures...),
		Stats:    model.ComputeStats(records),
	}
}
