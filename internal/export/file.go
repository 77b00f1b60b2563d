package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// DefaultLayout names the dated output file.
const DefaultLayout = "2006-01-02 - Companies Enriched.csv"

// fileName renders the dated file name for b with the given extension.
func fileName(layout string, b *Batch, ext string) string {
	if layout == "" {
		layout = DefaultLayout
	}
	name := b.RunAt.Format(layout)
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

// CSVSink writes the merged table as a dated CSV file.
type CSVSink struct {
	Dir    string
	Layout string
}

// Name implements Sink.
func (s *CSVSink) Name() string { return "csv" }

// Export implements Sink.
func (s *CSVSink) Export(_ context.Context, b *Batch) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", eris.Wrap(err, "csv export: create dir")
	}
	path := filepath.Join(s.Dir, fileName(s.Layout, b, ".csv"))

	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrap(err, "csv export: create file")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(b.Table.Columns); err != nil {
		return "", eris.Wrap(err, "csv export: write header")
	}
	for i := range b.Table.Rows {
		if err := w.Write(b.Table.Values(i)); err != nil {
			return "", eris.Wrap(err, "csv export: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "csv export: flush")
	}
	b.Files = append(b.Files, path)
	return path, nil
}

// XLSXSink writes the merged table as a dated workbook.
type XLSXSink struct {
	Dir    string
	Layout string
	Sheet  string
}

// Name implements Sink.
func (s *XLSXSink) Name() string { return "xlsx" }

// Export implements Sink.
func (s *XLSXSink) Export(_ context.Context, b *Batch) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", eris.Wrap(err, "xlsx export: create dir")
	}
	sheetName := s.Sheet
	if sheetName == "" {
		sheetName = "Companies"
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return "", eris.Wrap(err, "xlsx export: add sheet")
	}
	header := sheet.AddRow()
	for _, col := range b.Table.Columns {
		header.AddCell().SetString(col)
	}
	for i := range b.Table.Rows {
		row := sheet.AddRow()
		for _, v := range b.Table.Values(i) {
			row.AddCell().SetString(v)
		}
	}

	path := filepath.Join(s.Dir, fileName(s.Layout, b, ".xlsx"))
	if err := f.Save(path); err != nil {
		return "", eris.Wrap(err, "xlsx export: save")
	}
	b.Files = append(b.Files, path)
	return path, nil
}
