// Package input loads the company list from CSV, XLSX, a Notion database,
// or an ftp:// URL pointing at either file type.
package input

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/remote"
	"github.com/sells-group/enrichment-cli/pkg/notion"
)

// Standard column names.
const (
	ColumnName    = "Name"
	ColumnWebsite = "Website"
	ColumnEmail   = "Email"
	ColumnPhone   = "Phone"
)

// Column aliases, matched case-insensitively.
var (
	cityColumns   = []string{"City", "Plaats", "Town"}
	streetColumns = []string{"Street", "Straat", "Address", "Adres"}
	zipColumns    = []string{"Zip", "Postcode", "Postal Code", "Zipcode"}
)

// Options select and shape the input.
type Options struct {
	Path       string // local file or ftp:// URL
	Sheet      string // XLSX sheet name; first sheet when empty
	NameColumn string // defaults to "Name"

	NotionDatabase string
	Notion         notion.Client
	NotionProps    NotionProperties

	FTP *remote.Client
}

// Source is a loaded company list plus the table it came from.
type Source struct {
	Origin    string
	Companies []model.Company
	Table     model.Table
}

// HasColumn reports whether the input carried a column, case-insensitively.
func (s *Source) HasColumn(name string) bool {
	return findColumn(s.Table.Columns, name) != ""
}

// Load reads companies from whichever input the options name.
func Load(ctx context.Context, o Options) (*Source, error) {
	if o.NameColumn == "" {
		o.NameColumn = ColumnName
	}
	switch {
	case o.NotionDatabase != "":
		if o.Notion == nil {
			return nil, eris.New("input: notion database configured without a client")
		}
		return LoadNotion(ctx, o.Notion, o.NotionDatabase, o.NotionProps)
	case o.Path == "":
		return nil, eris.New("input: no input path or notion database")
	case remote.IsFTP(o.Path):
		return loadRemote(ctx, o)
	default:
		return loadFile(o.Path, o)
	}
}

func loadRemote(ctx context.Context, o Options) (*Source, error) {
	loc, err := remote.ParseURL(o.Path)
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp("", "enrich-input-*")
	if err != nil {
		return nil, eris.Wrap(err, "input: temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	client := o.FTP
	if client == nil {
		client = remote.NewClient(0)
	}
	local := filepath.Join(dir, filepath.Base(loc.Path))
	n, err := client.DownloadToFile(ctx, o.Path, local)
	if err != nil {
		return nil, eris.Wrap(err, "input: download")
	}
	zap.L().Info("input: downloaded", zap.String("url", loc.Host+loc.Path), zap.Int64("bytes", n))

	src, err := loadFile(local, o)
	if err != nil {
		return nil, err
	}
	src.Origin = o.Path
	return src, nil
}

func loadFile(path string, o Options) (*Source, error) {
	var (
		table model.Table
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		table, err = ReadCSV(path)
	case ".xlsx":
		table, err = ReadXLSX(path, o.Sheet)
	default:
		return nil, eris.Errorf("input: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	companies, err := Companies(table, o.NameColumn)
	if err != nil {
		return nil, err
	}
	zap.L().Info("input: loaded companies", zap.String("path", path), zap.Int("count", len(companies)))
	return &Source{Origin: path, Companies: companies, Table: table}, nil
}

// Companies maps table rows to companies. The name column is required;
// rows with an empty name are skipped.
func Companies(t model.Table, nameColumn string) ([]model.Company, error) {
	nameCol := findColumn(t.Columns, nameColumn)
	if nameCol == "" {
		return nil, eris.Errorf("input: required column %q missing (have %s)", nameColumn, strings.Join(t.Columns, ", "))
	}
	city := findColumn(t.Columns, cityColumns...)
	street := findColumn(t.Columns, streetColumns...)
	zip := findColumn(t.Columns, zipColumns...)
	website := findColumn(t.Columns, ColumnWebsite)
	email := findColumn(t.Columns, ColumnEmail)
	phone := findColumn(t.Columns, ColumnPhone, "Telefoon")

	out := make([]model.Company, 0, len(t.Rows))
	for i, row := range t.Rows {
		name := strings.TrimSpace(row[nameCol])
		if name == "" {
			continue
		}
		c := model.NewCompany(i, name)
		c.City = get(row, city)
		c.Street = get(row, street)
		c.Zip = get(row, zip)
		c.Website = get(row, website)
		c.Email = get(row, email)
		c.Phone = get(row, phone)
		for k, v := range row {
			c.Row[k] = v
		}
		out = append(out, c)
	}
	return out, nil
}

func get(row map[string]string, col string) string {
	if col == "" {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// findColumn returns the first header matching any candidate, ignoring
// case and surrounding space.
func findColumn(columns []string, candidates ...string) string {
	for _, want := range candidates {
		for _, col := range columns {
			if strings.EqualFold(strings.TrimSpace(col), want) {
				return col
			}
		}
	}
	return ""
}
