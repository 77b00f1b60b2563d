// Package scheduler walks companies through the field waterfalls in
// fixed-size batches, recording every outcome in the progress store.
package scheduler

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/progress"
	"github.com/sells-group/enrichment-cli/internal/waterfall"
)

// Defaults carried over from the original tool.
const (
	DefaultBatchSize  = 15
	DefaultBatchDelay = 2 * time.Second
)

// Options control one run.
type Options struct {
	// Fields requested by the caller. Empty means all.
	Fields     []model.Field
	BatchSize  int
	BatchDelay time.Duration
	DryRun     bool
}

func (o Options) normalized() Options {
	if o.BatchSize < 1 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	o.Fields = EffectiveFields(o.Fields)
	return o
}

// EffectiveFields orders the requested fields and adds website when email or
// phone is requested, since their site methods need it.
func EffectiveFields(requested []model.Field) []model.Field {
	if len(requested) == 0 {
		return append([]model.Field(nil), model.AllFields...)
	}
	fields := append([]model.Field(nil), requested...)
	for _, f := range requested {
		if f == model.FieldEmail || f == model.FieldPhone {
			fields = append(fields, model.FieldWebsite)
			break
		}
	}
	return model.OrderFields(fields)
}

// Plan is the work a run would do.
type Plan struct {
	Total     int                 `json:"total"`
	Batches   int                 `json:"batches"`
	BatchSize int                 `json:"batch_size"`
	Fields    []model.Field       `json:"fields"`
	Companies int                 `json:"companies_with_work"`
	Pending   map[model.Field]int `json:"pending"`
	Skipped   map[model.Field]int `json:"skipped"`
}

// Result summarizes a run.
type Result struct {
	RunID     string          `json:"run_id"`
	Status    model.RunStatus `json:"status"`
	Processed int             `json:"processed"`
	Attempted int             `json:"attempted"`
	Plan      Plan            `json:"plan"`
}

// Scheduler drives a run. It is the single writer of its store.
type Scheduler struct {
	store   progress.Store
	set     waterfall.Set
	metrics *Metrics
}

// New creates a Scheduler. A nil metrics uses unregistered collectors.
func New(store progress.Store, set waterfall.Set, metrics *Metrics) *Scheduler {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Scheduler{store: store, set: set, metrics: metrics}
}

// needsWork reports whether f must be attempted for c. Input-provided
// values and terminal stored results are skipped.
func (s *Scheduler) needsWork(c model.Company, f model.Field) bool {
	if c.InputValue(f) != "" {
		return false
	}
	return !s.store.Get(c.Key, f).IsTerminal()
}

// Plan partitions companies and applies the skip rules without calling
// any waterfall or touching the store.
func (s *Scheduler) Plan(companies []model.Company, opts Options) Plan {
	opts = opts.normalized()
	p := Plan{
		Total:     len(companies),
		Batches:   (len(companies) + opts.BatchSize - 1) / opts.BatchSize,
		BatchSize: opts.BatchSize,
		Fields:    opts.Fields,
		Pending:   map[model.Field]int{},
		Skipped:   map[model.Field]int{},
	}
	seen := map[string]bool{}
	for _, c := range companies {
		work := false
		for _, f := range opts.Fields {
			if !seen[c.Key] && s.needsWork(c, f) {
				p.Pending[f]++
				work = true
			} else {
				p.Skipped[f]++
			}
		}
		seen[c.Key] = true
		if work {
			p.Companies++
		}
	}
	return p
}

// Run processes companies in input order until done, stopped via token, or
// aborted via ctx. Only an unwritable store fails the run; lookup failures
// never do. The returned error is non-nil for a failed or aborted run.
func (s *Scheduler) Run(ctx context.Context, companies []model.Company, opts Options, token *Token) (Result, error) {
	opts = opts.normalized()
	if token == nil {
		token = NewToken()
	}
	plan := s.Plan(companies, opts)

	if opts.DryRun {
		meta := s.store.Meta()
		return Result{RunID: meta.RunID, Status: meta.Status, Plan: plan}, nil
	}

	now := time.Now().UTC()
	s.store.UpdateMeta(func(m *model.RunMeta) {
		m.Status = model.RunRunning
		m.Fields = opts.Fields
		m.Total = len(companies)
		m.Processed = 0
		m.Error = ""
		m.FinishedAt = nil
		if m.StartedAt == nil {
			m.StartedAt = &now
		}
	})
	if err := s.store.Flush(ctx); err != nil {
		return s.fail(ctx, plan, err)
	}
	s.metrics.setStatus(model.RunRunning)

	res := Result{RunID: s.store.Meta().RunID, Plan: plan}
	log := zap.L().With(zap.String("run_id", res.RunID))
	log.Info("scheduler: run started",
		zap.Int("total", plan.Total),
		zap.Int("batches", plan.Batches),
		zap.Int("companies_with_work", plan.Companies),
		zap.Any("fields", opts.Fields),
	)

	workSinceDelay := false
	for start, batch := 0, 0; start < len(companies); start, batch = start+opts.BatchSize, batch+1 {
		if batch > 0 && opts.BatchDelay > 0 && workSinceDelay {
			if stopped := s.wait(ctx, opts.BatchDelay, token); stopped {
				if ctx.Err() != nil {
					return s.abort(ctx, res)
				}
				return s.stop(ctx, res)
			}
			workSinceDelay = false
		}
		s.metrics.Batches.Inc()
		end := min(start+opts.BatchSize, len(companies))
		log.Debug("scheduler: batch", zap.Int("batch", batch), zap.Int("from", start), zap.Int("to", end))

		for i := start; i < end; i++ {
			if token.Cancelled() {
				return s.stop(ctx, res)
			}
			if ctx.Err() != nil {
				return s.abort(ctx, res)
			}

			c := companies[i]
			worked, err := s.processCompany(ctx, c, opts.Fields, i, len(companies))
			if err != nil {
				return s.abort(ctx, res)
			}

			s.store.UpdateMeta(func(m *model.RunMeta) {
				m.Processed = i + 1
				m.BatchCursor = batch
				m.LastCompany = c.Name
			})
			res.Processed = i + 1
			if !worked {
				s.metrics.Companies.WithLabelValues("skipped").Inc()
				continue
			}
			res.Attempted++
			workSinceDelay = true
			s.metrics.Companies.WithLabelValues("enriched").Inc()
			if err := s.store.Flush(ctx); err != nil {
				return s.fail(ctx, plan, err)
			}
		}
	}

	done := time.Now().UTC()
	s.store.UpdateMeta(func(m *model.RunMeta) {
		m.Status = model.RunCompleted
		m.Processed = len(companies)
		m.FinishedAt = &done
	})
	if err := s.store.Flush(ctx); err != nil {
		return s.fail(ctx, plan, err)
	}
	s.metrics.setStatus(model.RunCompleted)
	res.Status = model.RunCompleted
	log.Info("scheduler: run completed", zap.Int("processed", res.Processed), zap.Int("attempted", res.Attempted))
	return res, nil
}

// processCompany runs every outstanding field for c and reports whether
// any waterfall ran. Website goes first so later fields can use it.
func (s *Scheduler) processCompany(ctx context.Context, c model.Company, fields []model.Field, index, total int) (bool, error) {
	var todo []model.Field
	for _, f := range fields {
		if s.needsWork(c, f) {
			todo = append(todo, f)
		}
	}
	if len(todo) == 0 {
		return false, nil
	}

	zap.L().Info("scheduler: enriching company",
		zap.String("company", c.Name),
		zap.Int("index", index+1),
		zap.Int("total", total),
		zap.Any("fields", todo),
	)

	worked := false
	for _, f := range todo {
		w, ok := s.set.For(f)
		if !ok {
			zap.L().Warn("scheduler: no waterfall for field", zap.String("field", string(f)))
			continue
		}
		worked = true

		out, err := w.Run(ctx, c, waterfall.Known{Website: s.knownWebsite(c)})
		if err != nil {
			return worked, err
		}
		for _, me := range out.Errors {
			s.store.RecordFailure(model.Failure{
				Company: c.Name,
				Field:   f,
				Method:  me.Method,
				Error:   me.Err.Error(),
			})
			s.metrics.MethodErrors.WithLabelValues(string(f), me.Method).Inc()
		}
		s.store.Set(c.Key, c.Name, f, out.Result)
		s.metrics.Fields.WithLabelValues(string(f), string(out.Result.State)).Inc()
	}
	return worked, nil
}

func (s *Scheduler) knownWebsite(c model.Company) string {
	if v := c.InputValue(model.FieldWebsite); v != "" {
		return v
	}
	if r := s.store.Get(c.Key, model.FieldWebsite); r.State == model.StateFound {
		return r.Value
	}
	return ""
}

// wait sleeps for d and reports whether the run should stop instead.
func (s *Scheduler) wait(ctx context.Context, d time.Duration, token *Token) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-token.Done():
		return true
	case <-ctx.Done():
		return true
	}
}

// stop records a graceful stop. Progress up to the last finished company
// is already durable.
func (s *Scheduler) stop(ctx context.Context, res Result) (Result, error) {
	return s.halt(ctx, res, nil)
}

// abort handles a cancelled ctx: the run is recorded as stopped with what
// it has, and the ctx error is returned.
func (s *Scheduler) abort(ctx context.Context, res Result) (Result, error) {
	return s.halt(ctx, res, ctx.Err())
}

func (s *Scheduler) halt(ctx context.Context, res Result, cause error) (Result, error) {
	now := time.Now().UTC()
	s.store.UpdateMeta(func(m *model.RunMeta) {
		m.Status = model.RunStopped
		m.FinishedAt = &now
	})
	if err := s.store.Flush(context.WithoutCancel(ctx)); err != nil {
		return s.fail(ctx, res.Plan, err)
	}
	s.metrics.setStatus(model.RunStopped)
	res.Status = model.RunStopped
	zap.L().Info("scheduler: run stopped",
		zap.String("run_id", res.RunID),
		zap.Int("processed", res.Processed),
		zap.String("last_company", s.store.Meta().LastCompany),
	)
	if cause != nil {
		return res, eris.Wrap(cause, "scheduler: aborted")
	}
	return res, nil
}

// fail marks the run failed. The store already retried its write once.
func (s *Scheduler) fail(ctx context.Context, plan Plan, cause error) (Result, error) {
	meta := s.store.Meta()
	now := time.Now().UTC()
	s.store.UpdateMeta(func(m *model.RunMeta) {
		m.Status = model.RunFailed
		m.Error = cause.Error()
		m.FinishedAt = &now
	})
	if err := s.store.Flush(context.WithoutCancel(ctx)); err != nil {
		zap.L().Error("scheduler: could not record failure", zap.Error(err))
	}
	s.metrics.setStatus(model.RunFailed)
	zap.L().Error("scheduler: run failed",
		zap.String("run_id", meta.RunID),
		zap.String("last_company", meta.LastCompany),
		zap.Int("processed", meta.Processed),
		zap.Error(cause),
	)
	return Result{RunID: meta.RunID, Status: model.RunFailed, Processed: meta.Processed, Plan: plan},
		eris.Wrapf(cause, "scheduler: run failed after %q", meta.LastCompany)
}
