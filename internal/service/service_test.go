package service

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-cli/internal/export"
	"github.com/sells-group/enrichment-cli/internal/extract"
	"github.com/sells-group/enrichment-cli/internal/input"
	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/progress"
	"github.com/sells-group/enrichment-cli/internal/scheduler"
	"github.com/sells-group/enrichment-cli/internal/waterfall"
)

type memPersister struct {
	mu       sync.Mutex
	doc      *progress.Document
	failFrom int
	writes   int
}

func (m *memPersister) Read(context.Context) (*progress.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil, nil
	}
	cp := *m.doc
	cp.Records = map[string]model.Record{}
	for k, r := range m.doc.Records {
		cp.Records[k] = r.Clone()
	}
	return &cp, nil
}

func (m *memPersister) Write(_ context.Context, doc *progress.Document, _ []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.failFrom > 0 && m.writes >= m.failFrom {
		return errors.New("disk full")
	}
	cp := *doc
	m.doc = &cp
	return nil
}

func (m *memPersister) Archive(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = nil
	return nil
}

func (m *memPersister) Close() error { return nil }

// lookup answers from a fixed table and counts calls.
type lookup struct {
	name   string
	values map[string]string
	calls  *int
}

func (l lookup) Name() string { return l.name }

func (l lookup) Attempt(_ context.Context, c model.Company, _ waterfall.Known) (string, error) {
	*l.calls++
	return l.values[c.Name], nil
}

// cancellingLookup finds a website and then cancels the run context.
type cancellingLookup struct {
	cancel context.CancelFunc
}

func (cancellingLookup) Name() string { return "search_website" }

func (l cancellingLookup) Attempt(_ context.Context, c model.Company, _ waterfall.Known) (string, error) {
	l.cancel()
	return "https://" + c.Key + ".nl", nil
}

type recordingSink struct {
	batches []*export.Batch
	ctxErr  error
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Export(ctx context.Context, b *export.Batch) (string, error) {
	r.batches = append(r.batches, b)
	r.ctxErr = ctx.Err()
	return "memory", nil
}

type failingNormalizer struct{}

func (failingNormalizer) Normalize(_ context.Context, t model.Table) (model.Table, error) {
	return t, errors.New("model overloaded")
}

type fixture struct {
	dir   string
	p     *memPersister
	calls int
	set   waterfall.Set
	sink  *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir(), p: &memPersister{}, sink: &recordingSink{}}
	f.set = waterfall.Set{
		model.FieldWebsite: waterfall.New(model.FieldWebsite, lookup{name: "search_website", calls: &f.calls, values: map[string]string{
			"ABC BV":   "abc.nl",
			"XYZ Corp": "xyz.nl",
		}}),
		model.FieldEmail: waterfall.New(model.FieldEmail, lookup{name: "search_email", calls: &f.calls, values: map[string]string{
			"ABC BV": "info@abc.nl",
		}}),
		model.FieldPhone: waterfall.New(model.FieldPhone, lookup{name: "site_phone", calls: &f.calls}),
	}
	return f
}

func (f *fixture) writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, "companies.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f *fixture) service(t *testing.T, inputPath string, sinks ...export.Sink) *Service {
	t.Helper()
	if len(sinks) == 0 {
		sinks = []export.Sink{&export.CSVSink{Dir: filepath.Join(f.dir, "out")}, f.sink}
	}
	return New(Deps{
		Store:      progress.NewTracker(f.p),
		Waterfalls: f.set,
		Input:      input.Options{Path: inputPath},
		Sinks:      sinks,
		Policy:     extract.DefaultPolicy(),
	})
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	records, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, f.writeInput(t, "Name\nABC BV\nXYZ Corp\n"))

	report, err := svc.Run(context.Background(), RunOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, report.Status)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Stats.Found[model.FieldWebsite])
	assert.Equal(t, 1, report.Stats.Found[model.FieldEmail])
	assert.Equal(t, 1, report.Stats.NotFound[model.FieldEmail])

	require.Len(t, report.Outputs, 2)
	require.Empty(t, report.Outputs[0].Error)
	records := readCSV(t, report.Outputs[0].Location)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Name", "Website", "Email", "Probable_Email", "Phone"}, records[0])

	col := func(name string) int {
		for i, c := range records[0] {
			if c == name {
				return i
			}
		}
		t.Fatalf("column %s missing", name)
		return -1
	}
	abc, xyz := records[1], records[2]
	assert.Equal(t, "ABC BV", abc[col("Name")])
	assert.Equal(t, "info@abc.nl", abc[col("Email")])
	assert.Equal(t, "info@abc.nl", abc[col("Probable_Email")])
	assert.Equal(t, "XYZ Corp", xyz[col("Name")])
	assert.Equal(t, "Not found", xyz[col("Email")])
	assert.Equal(t, "info@xyz.nl", xyz[col("Probable_Email")])
	assert.Equal(t, "Not found", xyz[col("Phone")])
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	path := f.writeInput(t, "Name\nABC BV\nXYZ Corp\n")

	_, err := f.service(t, path).Run(context.Background(), RunOptions{}, nil)
	require.NoError(t, err)
	first := f.calls

	report, err := f.service(t, path).Run(context.Background(), RunOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, first, f.calls, "terminal results are not re-attempted")
	assert.Equal(t, 0, report.Attempted)
	assert.Len(t, f.sink.batches, 2, "an idempotent run still exports")
}

func TestRun_ResetReattempts(t *testing.T) {
	f := newFixture(t)
	path := f.writeInput(t, "Name\nABC BV\n")

	_, err := f.service(t, path).Run(context.Background(), RunOptions{}, nil)
	require.NoError(t, err)
	first := f.calls

	report, err := f.service(t, path).Run(context.Background(), RunOptions{Reset: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2*first, f.calls)
	assert.Equal(t, 1, report.Attempted)
}

func TestRun_DryRun(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, f.writeInput(t, "Name,Website\nABC BV,https://abc.nl\nXYZ Corp,\n"))

	report, err := svc.Run(context.Background(), RunOptions{DryRun: true, Reset: true, Fields: []model.Field{model.FieldEmail}}, nil)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Plan.Total)
	assert.Equal(t, 1, report.Plan.Pending[model.FieldWebsite])
	assert.Equal(t, 2, report.Plan.Pending[model.FieldEmail])
	assert.Zero(t, f.calls)
	assert.Zero(t, f.p.writes)
	assert.Empty(t, report.Outputs)
}

func TestRun_DryRunLeavesCorruptStoreInPlace(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.dir, "progress", "state.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"records": [`), 0o644))

	p, err := progress.OpenFile(path)
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	svc := New(Deps{
		Store:      progress.NewTracker(p),
		Waterfalls: f.set,
		Input:      input.Options{Path: f.writeInput(t, "Name\nABC BV\n")},
		Sinks:      []export.Sink{f.sink},
	})
	report, err := svc.Run(context.Background(), RunOptions{DryRun: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Plan.Total)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"records": [`, string(data))
	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRun_AbortDuringDelayExportsOnDetachedContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.set[model.FieldWebsite] = waterfall.New(model.FieldWebsite, cancellingLookup{cancel: cancel})
	svc := f.service(t, f.writeInput(t, "Name\nABC BV\nXYZ Corp\n"), f.sink)

	report, err := svc.Run(ctx, RunOptions{Fields: []model.Field{model.FieldWebsite}, BatchSize: 1, BatchDelay: time.Hour}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.RunStopped, report.Status)
	assert.NotEmpty(t, report.Error)
	require.Len(t, f.sink.batches, 1)
	assert.NoError(t, f.sink.ctxErr, "sinks see a live context")
}

func TestRun_ConfigErrors(t *testing.T) {
	t.Run("missing name column", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service(t, f.writeInput(t, "Company\nABC BV\n")).Run(context.Background(), RunOptions{}, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfig))
		assert.Zero(t, f.p.writes)
	})

	t.Run("phones only without website source", func(t *testing.T) {
		f := newFixture(t)
		f.set[model.FieldWebsite] = waterfall.New(model.FieldWebsite)
		_, err := f.service(t, f.writeInput(t, "Name\nABC BV\n")).
			Run(context.Background(), RunOptions{Fields: []model.Field{model.FieldPhone}}, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfig))
		assert.Contains(t, err.Error(), "no website column")
		assert.Zero(t, f.calls)
	})

	t.Run("phones only with website column", func(t *testing.T) {
		f := newFixture(t)
		f.set[model.FieldWebsite] = waterfall.New(model.FieldWebsite)
		report, err := f.service(t, f.writeInput(t, "Name,Website\nABC BV,https://abc.nl\n")).
			Run(context.Background(), RunOptions{Fields: []model.Field{model.FieldPhone}}, nil)
		require.NoError(t, err)
		assert.Equal(t, model.RunCompleted, report.Status)
		assert.Equal(t, 1, f.calls)
	})
}

func TestRun_StoppedRunExportsPartialOutput(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, f.writeInput(t, "Name\nABC BV\nXYZ Corp\n"))

	token := scheduler.NewToken()
	token.Cancel()
	report, err := svc.Run(context.Background(), RunOptions{}, token)
	require.NoError(t, err)
	assert.Equal(t, model.RunStopped, report.Status)
	assert.Zero(t, f.calls)
	require.Len(t, f.sink.batches, 1)
	assert.Equal(t, "", f.sink.batches[0].Table.Rows[0]["Email"], "pending fields stay blank")
}

func TestRun_FailedRunExportsNothing(t *testing.T) {
	f := newFixture(t)
	f.p.failFrom = 1
	svc := f.service(t, f.writeInput(t, "Name\nABC BV\n"))

	report, err := svc.Run(context.Background(), RunOptions{}, nil)
	require.Error(t, err)
	assert.Equal(t, model.RunFailed, report.Status)
	assert.NotEmpty(t, report.Error)
	assert.Empty(t, report.Outputs)
	assert.Empty(t, f.sink.batches)
}

func TestRun_NormalizeFailureStillExports(t *testing.T) {
	f := newFixture(t)
	svc := New(Deps{
		Store:      progress.NewTracker(f.p),
		Waterfalls: f.set,
		Input:      input.Options{Path: f.writeInput(t, "Name\nABC BV\n")},
		Normalizer: failingNormalizer{},
		Sinks:      []export.Sink{f.sink},
	})

	report, err := svc.Run(context.Background(), RunOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, report.Outputs, 1)
	require.Len(t, f.sink.batches, 1)
	assert.Equal(t, "info@abc.nl", f.sink.batches[0].Table.Rows[0]["Email"])
}

func TestRun_InputOverride(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, filepath.Join(f.dir, "missing.csv"))

	_, err := svc.Run(context.Background(), RunOptions{}, nil)
	require.Error(t, err)

	report, err := svc.Run(context.Background(), RunOptions{Input: f.writeInput(t, "Name\nABC BV\n")}, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "companies.csv"), report.Input)
}
