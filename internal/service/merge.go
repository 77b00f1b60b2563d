package service

import (
	"strings"

	"github.com/sells-group/enrichment-cli/internal/export"
	"github.com/sells-group/enrichment-cli/internal/extract"
	"github.com/sells-group/enrichment-cli/internal/model"
)

var mergeFields = []struct {
	column string
	field  model.Field
}{
	{export.ColumnWebsite, model.FieldWebsite},
	{export.ColumnEmail, model.FieldEmail},
	{export.ColumnPhone, model.FieldPhone},
}

// Merge lays stored results over the original rows. Original columns keep
// their order; Website, Email, Probable_Email and Phone are overwritten in
// place when present (matched case-insensitively) and appended otherwise.
//
// Input-provided values win over stored ones. Found results give their
// value, NotFound gives "Not found" and Pending leaves the original cell.
// Rows without a company (blank name) are copied unchanged.
func Merge(t model.Table, companies []model.Company, snap model.Snapshot, p extract.Policy) model.Table {
	out := model.Table{Columns: append([]string(nil), t.Columns...)}
	rename := map[string]string{}
	for _, col := range []string{export.ColumnWebsite, export.ColumnEmail, export.ColumnProbableEmail, export.ColumnPhone} {
		out.Columns = placeColumn(out.Columns, col, rename)
	}

	byIndex := make(map[int]model.Company, len(companies))
	for _, c := range companies {
		byIndex[c.Index] = c
	}

	out.Rows = make([]map[string]string, len(t.Rows))
	for i, src := range t.Rows {
		row := make(map[string]string, len(out.Columns))
		for k, v := range src {
			if to, ok := rename[k]; ok {
				k = to
			}
			row[k] = v
		}
		c, ok := byIndex[i]
		if ok {
			for _, mf := range mergeFields {
				if v := mergedValue(c, mf.field, snap); v != "" {
					row[mf.column] = v
				}
			}
			row[export.ColumnProbableEmail] = extract.ProbableEmail(row[export.ColumnWebsite], p.ProbablePrefix)
		}
		for _, col := range out.Columns {
			if _, ok := row[col]; !ok {
				row[col] = ""
			}
		}
		out.Rows[i] = row
	}
	return out
}

// mergedValue returns the value for f, or "" to keep the original cell.
func mergedValue(c model.Company, f model.Field, snap model.Snapshot) string {
	if v := c.InputValue(f); v != "" {
		return v
	}
	return snap.Result(c.Key, f).OutputValue()
}

// placeColumn makes col part of cols. An existing column differing only in
// case is renamed in place and recorded in rename.
func placeColumn(cols []string, col string, rename map[string]string) []string {
	for _, existing := range cols {
		if existing == col {
			return cols
		}
	}
	for i, existing := range cols {
		if strings.EqualFold(existing, col) {
			rename[existing] = col
			cols[i] = col
			return cols
		}
	}
	return append(cols, col)
}
