package input

import (
	"context"
	"sort"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/pkg/notion"
)

// NotionProperties names the database properties read as company columns.
type NotionProperties struct {
	Name    string
	Website string
	Email   string
	Phone   string
}

func (p NotionProperties) withDefaults() NotionProperties {
	if p.Name == "" {
		p.Name = ColumnName
	}
	if p.Website == "" {
		p.Website = ColumnWebsite
	}
	if p.Email == "" {
		p.Email = ColumnEmail
	}
	if p.Phone == "" {
		p.Phone = ColumnPhone
	}
	return p
}

// LoadNotion reads every page of a database as one company. The mapped
// properties become the standard columns; every other property is kept as
// an extra column in first-seen order.
func LoadNotion(ctx context.Context, c notion.Client, dbID string, props NotionProperties) (*Source, error) {
	props = props.withDefaults()
	pages, err := notion.QueryAll(ctx, c, dbID)
	if err != nil {
		return nil, eris.Wrap(err, "input: load notion database")
	}

	mapped := map[string]string{
		props.Name:    ColumnName,
		props.Website: ColumnWebsite,
		props.Email:   ColumnEmail,
		props.Phone:   ColumnPhone,
	}
	t := model.Table{Columns: []string{ColumnName, ColumnWebsite, ColumnEmail, ColumnPhone}}
	seen := map[string]bool{}
	for _, col := range t.Columns {
		seen[col] = true
	}

	pageIDs := make([]string, 0, len(pages))
	for _, page := range pages {
		row := map[string]string{}
		for _, name := range sortedNames(page) {
			col := name
			if std, ok := mapped[name]; ok {
				col = std
			}
			if !seen[col] {
				seen[col] = true
				t.Columns = append(t.Columns, col)
			}
			row[col] = notion.PropertyText(page, name)
		}
		t.Rows = append(t.Rows, row)
		pageIDs = append(pageIDs, string(page.ID))
	}

	companies, err := Companies(t, ColumnName)
	if err != nil {
		return nil, err
	}
	for i := range companies {
		companies[i].PageID = pageIDs[companies[i].Index]
	}
	zap.L().Info("input: loaded notion database", zap.String("database", dbID), zap.Int("count", len(companies)))
	return &Source{Origin: "notion:" + dbID, Companies: companies, Table: t}, nil
}

func sortedNames(page notionapi.Page) []string {
	names := notion.PropertyNames(page)
	sort.Strings(names)
	return names
}
