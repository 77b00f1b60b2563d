// Package normalize cleans text columns of the merged output with an LLM.
// It is a pure table-to-table filter; a failure leaves the input usable.
package normalize

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/resilience"
)

// DefaultChunkSize is the number of values sent per request.
const DefaultChunkSize = 50

// Normalizer rewrites selected columns of a table. The input table is not
// modified.
type Normalizer interface {
	Normalize(ctx context.Context, t model.Table) (model.Table, error)
}

// Noop returns the table unchanged.
type Noop struct{}

// Normalize implements Normalizer.
func (Noop) Normalize(_ context.Context, t model.Table) (model.Table, error) {
	return t, nil
}

// Options are shared by the LLM normalizers.
type Options struct {
	Columns   []string
	ChunkSize int
	Backoff   resilience.Backoff
}

// completeFunc sends one prompt and returns the raw text answer.
type completeFunc func(ctx context.Context, prompt string) (string, error)

// chunked is the provider-independent part: it batches values, asks for a
// JSON object keyed by row index and applies the answers.
type chunked struct {
	provider string
	opts     Options
	complete completeFunc
}

func newChunked(provider string, opts Options, fn completeFunc) chunked {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Backoff.OnRetry == nil {
		opts.Backoff.OnRetry = resilience.LogRetry(provider, "normalize")
	}
	return chunked{provider: provider, opts: opts, complete: fn}
}

// Normalize implements Normalizer. Rows missing from an answer keep their
// original value.
func (c chunked) Normalize(ctx context.Context, t model.Table) (model.Table, error) {
	out := cloneTable(t)
	for _, col := range c.opts.Columns {
		if !hasColumn(t.Columns, col) {
			zap.L().Debug("normalize: column not in table", zap.String("column", col))
			continue
		}
		var idx []int
		for i, row := range t.Rows {
			v := strings.TrimSpace(row[col])
			if v != "" && !strings.EqualFold(v, model.NotFoundValue) {
				idx = append(idx, i)
			}
		}
		for start := 0; start < len(idx); start += c.opts.ChunkSize {
			end := min(start+c.opts.ChunkSize, len(idx))
			if err := c.normalizeChunk(ctx, t, out, col, idx[start:end]); err != nil {
				return t, err
			}
		}
	}
	return out, nil
}

func (c chunked) normalizeChunk(ctx context.Context, in, out model.Table, col string, rows []int) error {
	values := make(map[string]string, len(rows))
	for _, i := range rows {
		values[strconv.Itoa(i)] = in.Rows[i][col]
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return eris.Wrap(err, "normalize: encode chunk")
	}

	answer, err := resilience.RetryValue(ctx, c.opts.Backoff, func(ctx context.Context) (string, error) {
		return c.complete(ctx, buildPrompt(col, string(payload)))
	})
	if err != nil {
		return eris.Wrapf(err, "normalize: %s column %s", c.provider, col)
	}

	cleaned, err := parseAnswer(answer)
	if err != nil {
		return eris.Wrapf(err, "normalize: %s column %s", c.provider, col)
	}
	changed := 0
	for _, i := range rows {
		v, ok := cleaned[strconv.Itoa(i)]
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if v != out.Rows[i][col] {
			changed++
		}
		out.Rows[i][col] = strings.TrimSpace(v)
	}
	zap.L().Debug("normalize: chunk done",
		zap.String("provider", c.provider),
		zap.String("column", col),
		zap.Int("values", len(rows)),
		zap.Int("changed", changed),
	)
	return nil
}

func buildPrompt(column, payload string) string {
	return strings.TrimSpace(`
You clean up the "` + column + `" column of a company list.

Return ONLY a JSON object with exactly the same keys as the input, mapping each key to the cleaned value.

Rules:
- Fix capitalization, stray whitespace, quotes and encoding artifacts.
- Do not translate, abbreviate or add legal suffixes.
- If a value is already clean, return it unchanged.

Input:
` + payload)
}

// parseAnswer decodes the model's JSON object, tolerating a markdown fence.
func parseAnswer(answer string) (map[string]string, error) {
	s := strings.TrimSpace(answer)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &out); err != nil {
		return nil, eris.Wrap(err, "parse answer")
	}
	return out, nil
}

func cloneTable(t model.Table) model.Table {
	out := model.Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]map[string]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		r := make(map[string]string, len(row))
		for k, v := range row {
			r[k] = v
		}
		out.Rows[i] = r
	}
	return out
}

func hasColumn(cols []string, want string) bool {
	for _, c := range cols {
		if c == want {
			return true
		}
	}
	return false
}
