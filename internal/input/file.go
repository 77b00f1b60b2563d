package input

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/enrichment-cli/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV reads a CSV file with a header row.
func ReadCSV(path string) (model.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Table{}, eris.Wrap(err, "input: open csv")
	}
	defer f.Close() //nolint:errcheck

	br := bufio.NewReader(f)
	if head, _ := br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	r := csv.NewReader(br)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.Table{}, eris.Wrap(err, "input: read csv row")
		}
		records = append(records, rec)
	}
	return tableFromRecords(records)
}

// ReadXLSX reads the named sheet, or the first one, with a header row.
func ReadXLSX(path, sheetName string) (model.Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return model.Table{}, eris.Wrap(err, "input: open xlsx")
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return model.Table{}, eris.Errorf("input: sheet %q not found", sheetName)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return model.Table{}, eris.New("input: workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}

	records := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return tableFromRecords(records)
}

// tableFromRecords treats the first record as the header. Blank rows are
// dropped and short rows padded.
func tableFromRecords(records [][]string) (model.Table, error) {
	if len(records) == 0 {
		return model.Table{}, eris.New("input: file is empty")
	}
	var t model.Table
	for _, h := range records[0] {
		t.Columns = append(t.Columns, strings.TrimSpace(h))
	}
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make(map[string]string, len(t.Columns))
		for j, col := range t.Columns {
			if j < len(rec) {
				row[col] = rec[j]
			} else {
				row[col] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
