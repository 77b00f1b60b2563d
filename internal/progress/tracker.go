package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/model"
)

// MaxFailures bounds the failure audit trail kept per run.
const MaxFailures = 200

// Tracker is the in-memory Store backed by a Persister.
type Tracker struct {
	p Persister

	mu    sync.RWMutex
	doc   Document
	dirty map[string]struct{}

	now func() time.Time
}

var _ Store = (*Tracker)(nil)

// NewTracker creates an empty tracker. Call Load before use.
func NewTracker(p Persister) *Tracker {
	return &Tracker{
		p:     p,
		doc:   newDocument(),
		dirty: map[string]struct{}{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Load reads durable state. Missing or unreadable state starts a fresh run
// with a warning; it never blocks.
func (t *Tracker) Load(ctx context.Context) error {
	doc, err := t.p.Read(ctx)
	return t.load(doc, err)
}

// Inspect is Load for dry runs: a corrupt file store is not moved aside.
func (t *Tracker) Inspect(ctx context.Context) error {
	in, ok := t.p.(Inspector)
	if !ok {
		return t.Load(ctx)
	}
	doc, err := in.Inspect(ctx)
	return t.load(doc, err)
}

func (t *Tracker) load(doc *Document, err error) error {
	if err != nil {
		zap.L().Warn("progress: load failed, starting fresh", zap.Error(err))
		doc = nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if doc == nil {
		t.doc = newDocument()
	} else {
		t.doc = *doc
		if t.doc.Records == nil {
			t.doc.Records = map[string]model.Record{}
		}
	}
	if t.doc.Meta.RunID == "" {
		t.doc.Meta.RunID = uuid.NewString()
	}
	t.doc.Version = DocumentVersion
	t.dirty = map[string]struct{}{}

	zap.L().Info("progress: loaded",
		zap.String("run_id", t.doc.Meta.RunID),
		zap.String("status", string(t.doc.Meta.Status)),
		zap.Int("records", len(t.doc.Records)),
	)
	return nil
}

// Reset archives durable state and starts a new run.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.p.Archive(ctx); err != nil {
		return eris.Wrap(err, "progress: archive")
	}

	t.mu.Lock()
	t.doc = newDocument()
	t.doc.Meta.RunID = uuid.NewString()
	t.dirty = map[string]struct{}{}
	t.mu.Unlock()

	zap.L().Info("progress: reset", zap.String("run_id", t.Meta().RunID))
	return t.Flush(ctx)
}

// Get returns the stored result or Pending.
func (t *Tracker) Get(key string, f model.Field) model.FieldResult {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.doc.Records[key]
	if !ok {
		return model.Pending()
	}
	res, ok := rec.Fields[f]
	if !ok {
		return model.Pending()
	}
	return res
}

// Set overwrites one field result. The record timestamp never moves backwards.
func (t *Tracker) Set(key, company string, f model.Field, res model.FieldResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if res.UpdatedAt.IsZero() {
		res.UpdatedAt = now
	}

	rec, ok := t.doc.Records[key]
	if !ok {
		rec = model.Record{Company: company, Fields: map[model.Field]model.FieldResult{}}
	} else {
		rec = rec.Clone()
	}
	rec.Fields[f] = res
	if res.UpdatedAt.After(rec.UpdatedAt) {
		rec.UpdatedAt = res.UpdatedAt
	}
	t.doc.Records[key] = rec
	t.dirty[key] = struct{}{}
}

// RecordFailure appends to the audit trail, dropping the oldest entries
// past MaxFailures.
func (t *Tracker) RecordFailure(f model.Failure) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f.At.IsZero() {
		f.At = t.now()
	}
	t.doc.Failures = append(t.doc.Failures, f)
	if n := len(t.doc.Failures); n > MaxFailures {
		t.doc.Failures = append([]model.Failure(nil), t.doc.Failures[n-MaxFailures:]...)
	}
}

// Meta returns a copy of the run metadata.
func (t *Tracker) Meta() model.RunMeta {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m := t.doc.Meta
	m.Fields = append([]model.Field(nil), t.doc.Meta.Fields...)
	return m
}

// UpdateMeta mutates run metadata under the lock and stamps UpdatedAt.
func (t *Tracker) UpdateMeta(fn func(*model.RunMeta)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.doc.Meta)
	now := t.now()
	t.doc.Meta.UpdatedAt = &now
}

// Flush writes the current state. A failed write is retried once; a second
// failure returns ErrPersist.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.RLock()
	doc := t.copyLocked()
	dirty := make([]string, 0, len(t.dirty))
	for k := range t.dirty {
		dirty = append(dirty, k)
	}
	t.mu.RUnlock()
	sort.Strings(dirty)

	err := t.p.Write(ctx, &doc, dirty)
	if err != nil {
		zap.L().Warn("progress: flush failed, retrying", zap.Error(err))
		err = t.p.Write(ctx, &doc, dirty)
	}
	if err != nil {
		return eris.Wrapf(ErrPersist, "flush %d records: %v", len(dirty), err)
	}

	t.mu.Lock()
	for _, k := range dirty {
		delete(t.dirty, k)
	}
	t.mu.Unlock()
	return nil
}

// Snapshot returns a deep copy safe to hand to concurrent readers.
func (t *Tracker) Snapshot() model.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return snapshotOf(&t.doc)
}

func (t *Tracker) copyLocked() Document {
	out := Document{
		Version:  t.doc.Version,
		Meta:     t.doc.Meta,
		Records:  make(map[string]model.Record, len(t.doc.Records)),
		Failures: append([]model.Failure(nil), t.doc.Failures...),
	}
	out.Meta.Fields = append([]model.Field(nil), t.doc.Meta.Fields...)
	for k, r := range t.doc.Records {
		out.Records[k] = r.Clone()
	}
	return out
}
