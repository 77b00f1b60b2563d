package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/enrichment-cli/internal/extract"
	"github.com/sells-group/enrichment-cli/internal/model"
)

func TestMerge(t *testing.T) {
	table := model.Table{
		Columns: []string{"Name", "City", "website"},
		Rows: []map[string]string{
			{"Name": "ABC BV", "City": "Utrecht", "website": ""},
			{"Name": "", "City": "Delft", "website": "keep.nl"},
			{"Name": "Input Co", "City": "", "website": "https://input.nl"},
			{"Name": "Later BV", "City": "", "website": ""},
		},
	}
	abc := model.NewCompany(0, "ABC BV")
	in := model.NewCompany(2, "Input Co")
	in.Website = "https://input.nl"
	later := model.NewCompany(3, "Later BV")

	snap := model.Snapshot{Records: map[string]model.Record{
		abc.Key: {Company: "ABC BV", Fields: map[model.Field]model.FieldResult{
			model.FieldWebsite: model.Found("https://www.abc.nl", "search_website", 0),
			model.FieldEmail:   model.Found("sales@abc.nl", "site_email", 1),
			model.FieldPhone:   model.NotFound(),
		}},
		in.Key: {Company: "Input Co", Fields: map[model.Field]model.FieldResult{
			model.FieldWebsite: model.Found("https://other.nl", "search_website", 0),
		}},
	}}

	out := Merge(table, []model.Company{abc, in, later}, snap, extract.Policy{ProbablePrefix: "contact"})

	assert.Equal(t, []string{"Name", "City", "Website", "Email", "Probable_Email", "Phone"}, out.Columns)

	assert.Equal(t, map[string]string{
		"Name": "ABC BV", "City": "Utrecht", "Website": "https://www.abc.nl",
		"Email": "sales@abc.nl", "Probable_Email": "contact@abc.nl", "Phone": "Not found",
	}, out.Rows[0])

	assert.Equal(t, "keep.nl", out.Rows[1]["Website"], "rows without a company are copied")
	assert.Equal(t, "", out.Rows[1]["Probable_Email"])

	assert.Equal(t, "https://input.nl", out.Rows[2]["Website"], "input value wins")
	assert.Equal(t, "contact@input.nl", out.Rows[2]["Probable_Email"])

	assert.Equal(t, "", out.Rows[3]["Email"], "pending stays blank")
	assert.Equal(t, "", out.Rows[3]["Probable_Email"])

	assert.Equal(t, "", table.Rows[0]["website"], "input table not modified")
	assert.Equal(t, []string{"Name", "City", "website"}, table.Columns)
}
