// Package waterfall resolves one contact field for a company by trying an
// ordered list of methods until one of them produces a value.
package waterfall

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/model"
)

// Known carries values resolved earlier in the run that later methods can
// build on.
type Known struct {
	Website string
}

// Method is one way of finding a field value. An empty string with a nil
// error is a clean miss; an error means the method could not complete.
type Method interface {
	Name() string
	Attempt(ctx context.Context, c model.Company, known Known) (string, error)
}

// MethodError is a method failure observed during a Run.
type MethodError struct {
	Method string
	Index  int
	Err    error
}

// Outcome is the result of one Run plus the method failures seen on the way.
type Outcome struct {
	Result model.FieldResult
	Errors []MethodError
}

// Waterfall runs the methods for a single field in order.
type Waterfall struct {
	field   model.Field
	methods []Method
}

// New creates a Waterfall for field.
func New(field model.Field, methods ...Method) *Waterfall {
	return &Waterfall{field: field, methods: methods}
}

// Field returns the field this waterfall resolves.
func (w *Waterfall) Field() model.Field { return w.field }

// Methods returns the method names in evaluation order.
func (w *Waterfall) Methods() []string {
	out := make([]string, len(w.methods))
	for i, m := range w.methods {
		out[i] = m.Name()
	}
	return out
}

// Run evaluates methods in order and stops at the first non-empty value.
//
// Method errors are logged and skipped. When every method errored the
// result stays Pending so a resumed run tries again; when at least one
// method missed cleanly the result is NotFound. The returned error is
// non-nil only when ctx is done.
func (w *Waterfall) Run(ctx context.Context, c model.Company, known Known) (Outcome, error) {
	var out Outcome
	misses := 0

	for i, m := range w.methods {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		log := zap.L().With(
			zap.String("company", c.Name),
			zap.String("field", string(w.field)),
			zap.String("method", m.Name()),
		)
		start := time.Now()
		val, err := m.Attempt(ctx, c, known)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			log.Warn("waterfall: method failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
			out.Errors = append(out.Errors, MethodError{Method: m.Name(), Index: i, Err: err})
			continue
		}
		if val == "" {
			log.Debug("waterfall: no result", zap.Duration("elapsed", time.Since(start)))
			misses++
			continue
		}

		log.Debug("waterfall: found", zap.String("value", val), zap.Int("index", i))
		out.Result = model.Found(val, m.Name(), i)
		out.Result.Attempts = i + 1
		return out, nil
	}

	if misses == 0 && len(out.Errors) > 0 {
		out.Result = model.Pending()
		out.Result.Error = out.Errors[len(out.Errors)-1].Err.Error()
	} else {
		out.Result = model.NotFound()
	}
	out.Result.Attempts = len(w.methods)
	return out, nil
}

// Set maps each field to its waterfall.
type Set map[model.Field]*Waterfall

// For returns the waterfall for f.
func (s Set) For(f model.Field) (*Waterfall, bool) {
	w, ok := s[f]
	return w, ok && w != nil
}
