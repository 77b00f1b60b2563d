// Package export writes the merged company table to files and pushes
// enriched contact data back to the systems it came from.
package export

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/model"
)

// Merged output columns.
const (
	ColumnName          = "Name"
	ColumnWebsite       = "Website"
	ColumnEmail         = "Email"
	ColumnProbableEmail = "Probable_Email"
	ColumnPhone         = "Phone"
)

// Batch is the merged output of one run. Table rows line up with
// Company.Index.
type Batch struct {
	RunID     string
	RunAt     time.Time
	Table     model.Table
	Companies []model.Company

	// Files collects local paths written by earlier sinks.
	Files []string
}

// Contact returns the merged website, email and phone for c with
// not-found markers blanked.
func (b *Batch) Contact(c model.Company) (website, email, phone string) {
	if c.Index < 0 || c.Index >= len(b.Table.Rows) {
		return "", "", ""
	}
	row := b.Table.Rows[c.Index]
	clean := func(v string) string {
		v = strings.TrimSpace(v)
		if strings.EqualFold(v, model.NotFoundValue) {
			return ""
		}
		return v
	}
	return clean(row[ColumnWebsite]), clean(row[ColumnEmail]), clean(row[ColumnPhone])
}

// Sink is one export destination. Export returns a human-readable location
// of what it wrote, or "" when it wrote nothing.
type Sink interface {
	Name() string
	Export(ctx context.Context, b *Batch) (string, error)
}

// Outcome is the result of one sink.
type Outcome struct {
	Sink     string `json:"sink"`
	Location string `json:"location,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Run exports b to every sink in order. A failing sink is logged and
// reported; later sinks still run.
func Run(ctx context.Context, b *Batch, sinks []Sink) []Outcome {
	out := make([]Outcome, 0, len(sinks))
	for _, s := range sinks {
		loc, err := s.Export(ctx, b)
		o := Outcome{Sink: s.Name(), Location: loc}
		if err != nil {
			zap.L().Error("export: sink failed", zap.String("sink", s.Name()), zap.Error(err))
			o.Error = err.Error()
		} else if loc != "" {
			zap.L().Info("export: written", zap.String("sink", s.Name()), zap.String("location", loc))
		}
		out = append(out, o)
	}
	return out
}
