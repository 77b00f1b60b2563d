package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "ABC BV", "abc bv"},
		{"collapses whitespace", "  Acme   Holding \t B.V. ", "acme holding b.v."},
		{"folds diacritics", "Café Één", "cafe een"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CompanyKey(tt.in))
		})
	}
}

func TestNewCompany(t *testing.T) {
	t.Parallel()

	c := NewCompany(3, "  Bakkerij Müller ")
	assert.Equal(t, "Bakkerij Müller", c.Name)
	assert.Equal(t, "bakkerij muller", c.Key)
	assert.Equal(t, 3, c.Index)
	assert.NotNil(t, c.Row)
}

func TestCompanyInputValue(t *testing.T) {
	t.Parallel()

	c := Company{Website: " https://abc.nl ", Email: "Not found", Phone: ""}
	assert.Equal(t, "https://abc.nl", c.InputValue(FieldWebsite))
	assert.Empty(t, c.InputValue(FieldEmail))
	assert.Empty(t, c.InputValue(FieldPhone))
}

func TestCompanySearchLocation(t *testing.T) {
	t.Parallel()

	c := Company{City: "Utrecht", Street: "Oudegracht 1"}
	assert.Equal(t, "Oudegracht 1 Utrecht", c.SearchLocation())
	assert.Empty(t, Company{}.SearchLocation())
}

func TestParseField(t *testing.T) {
	t.Parallel()

	f, err := ParseField("email")
	require.NoError(t, err)
	assert.Equal(t, FieldEmail, f)

	_, err = ParseField("fax")
	assert.Error(t, err)
}

func TestOrderFields(t *testing.T) {
	t.Parallel()

	got := OrderFields([]Field{FieldPhone, FieldEmail, FieldPhone, FieldWebsite})
	assert.Equal(t, []Field{FieldWebsite, FieldEmail, FieldPhone}, got)
	assert.Empty(t, OrderFields(nil))
}

func TestFieldResultStates(t *testing.T) {
	t.Parallel()

	found := Found("info@abc.nl", "search_email", 0)
	assert.True(t, found.IsTerminal())
	assert.Equal(t, "info@abc.nl", found.OutputValue())

	nf := NotFound()
	assert.True(t, nf.IsTerminal())
	assert.Equal(t, NotFoundValue, nf.OutputValue())

	p := Pending()
	assert.False(t, p.IsTerminal())
	assert.Empty(t, p.OutputValue())
}

func TestRunStatusIsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, RunNotStarted.IsTerminal())
	assert.False(t, RunRunning.IsTerminal())
	assert.True(t, RunCompleted.IsTerminal())
	assert.True(t, RunStopped.IsTerminal())
	assert.True(t, RunFailed.IsTerminal())
}

func TestSnapshotResultAndStats(t *testing.T) {
	t.Parallel()

	records := map[string]Record{
		"abc bv": {Company: "ABC BV", Fields: map[Field]FieldResult{
			FieldWebsite: Found("https://abc.nl", "search_website", 0),
			FieldEmail:   Found("info@abc.nl", "search_email", 0),
		}},
		"xyz corp": {Company: "XYZ Corp", Fields: map[Field]FieldResult{
			FieldWebsite: Found("https://xyz.nl", "search_website", 0),
			FieldEmail:   NotFound(),
			FieldPhone:   Pending(),
		}},
	}
	snap := Snapshot{Records: records, Stats: ComputeStats(records)}

	assert.Equal(t, StateFound, snap.Result("abc bv", FieldEmail).State)
	assert.Equal(t, StatePending, snap.Result("abc bv", FieldPhone).State)
	assert.Equal(t, StatePending, snap.Result("missing", FieldEmail).State)

	assert.Equal(t, 2, snap.Stats.Found[FieldWebsite])
	assert.Equal(t, 1, snap.Stats.Found[FieldEmail])
	assert.Equal(t, 1, snap.Stats.NotFound[FieldEmail])
	assert.Equal(t, 1, snap.Stats.Pending[FieldPhone])
}

func TestRecordClone(t *testing.T) {
	t.Parallel()

	rec := Record{Company: "ABC", Fields: map[Field]FieldResult{FieldEmail: NotFound()}}
	cp := rec.Clone()
	cp.Fields[FieldEmail] = Found("x@abc.nl", "m", 0)
	assert.Equal(t, StateNotFound, rec.Fields[FieldEmail].State)
}

func TestTableValues(t *testing.T) {
	t.Parallel()

	tbl := Table{
		Columns: []string{"Name", "Email"},
		Rows:    []map[string]string{{"Name": "ABC", "Email": "info@abc.nl", "Extra": "x"}},
	}
	assert.Equal(t, []string{"ABC", "info@abc.nl"}, tbl.Values(0))
}
