// Package service composes one enrichment run: input, progress store,
// scheduler, merge, normalization and export.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/export"
	"github.com/sells-group/enrichment-cli/internal/extract"
	"github.com/sells-group/enrichment-cli/internal/input"
	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/normalize"
	"github.com/sells-group/enrichment-cli/internal/progress"
	"github.com/sells-group/enrichment-cli/internal/scheduler"
	"github.com/sells-group/enrichment-cli/internal/waterfall"
)

// ErrConfig marks problems detected before any batch runs.
var ErrConfig = eris.New("service: invalid run configuration")

// RunOptions are the per-run choices of the caller.
type RunOptions struct {
	// Input overrides the configured input path.
	Input      string
	Fields     []model.Field
	DryRun     bool
	Reset      bool
	// BatchSize <= 0 and BatchDelay < 0 fall back to the service defaults.
	BatchSize  int
	BatchDelay time.Duration
}

// Report summarizes a run for the operator.
type Report struct {
	RunID     string           `json:"run_id"`
	Status    model.RunStatus  `json:"status"`
	DryRun    bool             `json:"dry_run"`
	Input     string           `json:"input"`
	Plan      scheduler.Plan   `json:"plan"`
	Processed int              `json:"processed"`
	Attempted int              `json:"attempted"`
	Stats     model.Stats      `json:"stats"`
	Failures  []model.Failure  `json:"failures,omitempty"`
	Outputs   []export.Outcome `json:"outputs,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Deps wires a Service.
type Deps struct {
	Store      progress.Store
	Waterfalls waterfall.Set
	Metrics    *scheduler.Metrics
	Input      input.Options
	Normalizer normalize.Normalizer
	Sinks      []export.Sink
	Policy     extract.Policy
	BatchSize  int
	BatchDelay time.Duration
}

// Service runs enrichment end to end. It is not safe for concurrent Run
// calls; callers serialize runs.
type Service struct {
	store      progress.Store
	set        waterfall.Set
	sched      *scheduler.Scheduler
	input      input.Options
	normalizer normalize.Normalizer
	sinks      []export.Sink
	policy     extract.Policy
	batchSize  int
	batchDelay time.Duration
	now        func() time.Time
}

// New creates a Service.
func New(d Deps) *Service {
	n := d.Normalizer
	if n == nil {
		n = normalize.Noop{}
	}
	return &Service{
		store:      d.Store,
		set:        d.Waterfalls,
		sched:      scheduler.New(d.Store, d.Waterfalls, d.Metrics),
		input:      d.Input,
		normalizer: n,
		sinks:      d.Sinks,
		policy:     d.Policy.WithDefaults(),
		batchSize:  d.BatchSize,
		batchDelay: d.BatchDelay,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one run. The returned error is non-nil for configuration
// problems, a failed run or an aborted context; the report is filled as far
// as the run got.
func (s *Service) Run(ctx context.Context, opts RunOptions, token *scheduler.Token) (*Report, error) {
	in := s.input
	if opts.Input != "" {
		in.Path = opts.Input
		in.NotionDatabase = ""
	}
	log := zap.L().With(zap.String("input", in.Path))

	src, err := input.Load(ctx, in)
	if err != nil {
		return nil, eris.Wrapf(ErrConfig, "load input: %v", err)
	}
	report := &Report{Input: src.Origin, DryRun: opts.DryRun}
	if err := s.validate(src, opts.Fields); err != nil {
		return report, err
	}

	switch {
	case opts.Reset && opts.DryRun:
		log.Warn("service: reset ignored for dry run")
	case opts.Reset:
		if err := s.store.Reset(ctx); err != nil {
			return report, eris.Wrap(err, "service: reset")
		}
	}
	load := s.store.Load
	if opts.DryRun {
		load = s.store.Inspect
	}
	if err := load(ctx); err != nil {
		return report, eris.Wrap(err, "service: load progress")
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = s.batchSize
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = s.batchDelay
	}
	res, runErr := s.sched.Run(ctx, src.Companies, scheduler.Options{
		Fields:     opts.Fields,
		BatchSize:  opts.BatchSize,
		BatchDelay: opts.BatchDelay,
		DryRun:     opts.DryRun,
	}, token)

	snap := s.store.Snapshot()
	report.RunID = res.RunID
	report.Status = res.Status
	report.Plan = res.Plan
	report.Processed = res.Processed
	report.Attempted = res.Attempted
	report.Stats = snap.Stats
	report.Failures = snap.Failures
	if runErr != nil {
		report.Error = runErr.Error()
	}

	if opts.DryRun {
		log.Info("service: dry run",
			zap.Int("companies_with_work", res.Plan.Companies),
			zap.Int("batches", res.Plan.Batches),
		)
		return report, nil
	}
	if res.Status != model.RunCompleted && res.Status != model.RunStopped {
		return report, runErr
	}

	// An aborted run is recorded as stopped; its partial output is still
	// exported, detached from the cancelled ctx.
	exportCtx := ctx
	if runErr != nil || ctx.Err() != nil {
		exportCtx = context.WithoutCancel(ctx)
	}
	report.Outputs = s.finish(exportCtx, src, snap)

	log.Info("service: run finished",
		zap.String("run_id", report.RunID),
		zap.String("status", string(report.Status)),
		zap.Int("processed", report.Processed),
		zap.Any("found", report.Stats.Found),
		zap.Int("failures", len(report.Failures)),
	)
	return report, runErr
}

// Status returns the in-process snapshot of the store.
func (s *Service) Status() model.Snapshot {
	return s.store.Snapshot()
}

// finish merges, normalizes and exports.
func (s *Service) finish(ctx context.Context, src *input.Source, snap model.Snapshot) []export.Outcome {
	merged := Merge(src.Table, src.Companies, snap, s.policy)

	normalized, err := s.normalizer.Normalize(ctx, merged)
	if err != nil {
		zap.L().Warn("service: normalization failed, exporting raw values", zap.Error(err))
		normalized = merged
	}

	b := &export.Batch{
		RunID:     snap.Meta.RunID,
		RunAt:     s.now(),
		Table:     normalized,
		Companies: src.Companies,
	}
	return export.Run(ctx, b, s.sinks)
}

// validate reports problems that would make every batch pointless.
func (s *Service) validate(src *input.Source, requested []model.Field) error {
	var problems []string
	for _, f := range scheduler.EffectiveFields(requested) {
		w, ok := s.set.For(f)
		if ok && len(w.Methods()) > 0 {
			continue
		}
		if f == model.FieldWebsite && src.HasColumn(input.ColumnWebsite) {
			continue
		}
		if f == model.FieldWebsite {
			problems = append(problems, "no website column in input and no website method configured")
			continue
		}
		problems = append(problems, "no method configured for "+string(f))
	}
	if len(problems) == 0 {
		return nil
	}
	return eris.Wrap(ErrConfig, strings.Join(problems, "; "))
}
