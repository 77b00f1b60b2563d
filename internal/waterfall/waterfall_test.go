package waterfall

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-cli/internal/extract"
	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/resilience"
	"github.com/sells-group/enrichment-cli/internal/scrape"
	"github.com/sells-group/enrichment-cli/pkg/google"
)

type stubMethod struct {
	name  string
	value string
	err   error
	calls int
}

func (s *stubMethod) Name() string { return s.name }

func (s *stubMethod) Attempt(context.Context, model.Company, Known) (string, error) {
	s.calls++
	return s.value, s.err
}

// fakeSource answers searches and fetches from fixed tables.
type fakeSource struct {
	mu        sync.Mutex
	hits      map[string][]model.SearchHit
	pages     map[string]string
	searchErr error
	fetchErr  map[string]error
	queries   []string
	fetched   []string
}

func (f *fakeSource) Search(_ context.Context, q string) ([]model.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits[q], nil
}

func (f *fakeSource) Fetch(_ context.Context, u string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, u)
	if err := f.fetchErr[u]; err != nil {
		return "", err
	}
	if f.fetchErr["*"] != nil {
		return "", f.fetchErr["*"]
	}
	return f.pages[u], nil
}

type fakePlaces struct {
	resp *google.TextSearchResponse
	err  error
}

func (f *fakePlaces) TextSearch(context.Context, string) (*google.TextSearchResponse, error) {
	return f.resp, f.err
}

func newPlaces(resp *google.TextSearchResponse) *scrape.Places {
	return scrape.NewPlaces(&fakePlaces{resp: resp}, resilience.Backoff{Attempts: 1}, resilience.BreakerConfig{})
}

var abc = model.Company{Name: "ABC BV", City: "Amsterdam"}

func TestRunStopsAtFirstValue(t *testing.T) {
	t.Parallel()

	first := &stubMethod{name: "one", value: "info@abc.nl"}
	second := &stubMethod{name: "two", value: "sales@abc.nl"}
	w := New(model.FieldEmail, first, second)

	out, err := w.Run(context.Background(), abc, Known{})
	require.NoError(t, err)
	assert.Equal(t, model.StateFound, out.Result.State)
	assert.Equal(t, "info@abc.nl", out.Result.Value)
	assert.Equal(t, "one", out.Result.Method)
	assert.Equal(t, 0, out.Result.MethodIndex)
	assert.Equal(t, 1, out.Result.Attempts)
	assert.Equal(t, 0, second.calls)
}

func TestRunFallsThroughMissesAndErrors(t *testing.T) {
	t.Parallel()

	failing := &stubMethod{name: "broken", err: errors.New("timeout")}
	miss := &stubMethod{name: "miss"}
	hit := &stubMethod{name: "hit", value: "https://abc.nl"}
	w := New(model.FieldWebsite, failing, miss, hit)

	out, err := w.Run(context.Background(), abc, Known{})
	require.NoError(t, err)
	assert.Equal(t, "hit", out.Result.Method)
	assert.Equal(t, 2, out.Result.MethodIndex)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "broken", out.Errors[0].Method)
	assert.Equal(t, 0, out.Errors[0].Index)
}

func TestRunAllErroredStaysPending(t *testing.T) {
	t.Parallel()

	w := New(model.FieldEmail,
		&stubMethod{name: "a", err: errors.New("503")},
		&stubMethod{name: "b", err: errors.New("reset")},
	)
	out, err := w.Run(context.Background(), abc, Known{})
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, out.Result.State)
	assert.False(t, out.Result.IsTerminal())
	assert.Equal(t, "reset", out.Result.Error)
	assert.Len(t, out.Errors, 2)
}

func TestRunMissWithErrorIsNotFound(t *testing.T) {
	t.Parallel()

	w := New(model.FieldPhone,
		&stubMethod{name: "a", err: errors.New("503")},
		&stubMethod{name: "b"},
	)
	out, err := w.Run(context.Background(), abc, Known{})
	require.NoError(t, err)
	assert.Equal(t, model.StateNotFound, out.Result.State)
	assert.Equal(t, 2, out.Result.Attempts)
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &stubMethod{name: "a", value: "x"}
	_, err := New(model.FieldEmail, m).Run(ctx, abc, Known{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.calls)
}

func TestSearchEmail(t *testing.T) {
	t.Parallel()

	src := &fakeSource{hits: map[string][]model.SearchHit{
		`"ABC BV" Amsterdam email`: {
			{Title: "ABC BV contact", Description: "Mail ons via info@abc.nl of bel"},
		},
	}}
	m := NewSearchEmail(src, extract.DefaultPolicy())

	got, err := m.Attempt(context.Background(), abc, Known{})
	require.NoError(t, err)
	assert.Equal(t, "info@abc.nl", got)
	assert.Equal(t, []string{`"ABC BV" email contact`, `"ABC BV" Amsterdam email`}, src.queries)
}

func TestSearchEmailSkipsCityVariantWithoutCity(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	got, err := NewSearchEmail(src, extract.Policy{}).Attempt(context.Background(), model.Company{Name: "XYZ Corp"}, Known{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, []string{`"XYZ Corp" email contact`, `"XYZ Corp" contact email address`}, src.queries)
}

func TestSearchEmailAllQueriesFailed(t *testing.T) {
	t.Parallel()

	src := &fakeSource{searchErr: resilience.Transient("search", 503, nil)}
	_, err := NewSearchEmail(src, extract.Policy{}).Attempt(context.Background(), abc, Known{})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestSiteEmailCombinesPages(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		pages: map[string]string{
			"https://abc.nl":         "Welkom bij ABC",
			"https://abc.nl/contact": "Schrijf naar sales@abc.nl of info@abc.nl",
		},
		fetchErr: map[string]error{"https://abc.nl/about": errors.New("404")},
	}
	m := NewSiteEmail(src, extract.DefaultPolicy(), []string{"/contact", "about"}, 2)

	got, err := m.Attempt(context.Background(), abc, Known{Website: "abc.nl"})
	require.NoError(t, err)
	assert.Equal(t, "info@abc.nl", got)
	assert.ElementsMatch(t, []string{"https://abc.nl", "https://abc.nl/contact", "https://abc.nl/about"}, src.fetched)
}

func TestSiteEmailWithoutWebsiteIsMiss(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	got, err := NewSiteEmail(src, extract.Policy{}, []string{"/contact"}, 0).Attempt(context.Background(), abc, Known{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, src.fetched)
}

func TestSiteEmailAllPagesFailed(t *testing.T) {
	t.Parallel()

	src := &fakeSource{fetchErr: map[string]error{"*": errors.New("connection refused")}}
	_, err := NewSiteEmail(src, extract.Policy{}, []string{"/contact"}, 0).Attempt(context.Background(), abc, Known{Website: "https://abc.nl"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 pages failed")
}

func TestPageURLs(t *testing.T) {
	t.Parallel()

	got := pageURLs("https://www.abc.nl/nl/home", []string{"/contact", "contact", "", "/about"})
	assert.Equal(t, []string{
		"https://www.abc.nl/nl/home",
		"https://www.abc.nl/contact",
		"https://www.abc.nl/about",
	}, got)
	assert.Nil(t, pageURLs("", []string{"/contact"}))
}

func TestSearchWebsite(t *testing.T) {
	t.Parallel()

	src := &fakeSource{hits: map[string][]model.SearchHit{
		"ABC BV Amsterdam official website": {
			{URL: "https://www.linkedin.com/company/abc"},
			{URL: "https://www.abc.nl/"},
		},
	}}
	got, err := NewSearchWebsite(src, extract.Policy{}).Attempt(context.Background(), abc, Known{})
	require.NoError(t, err)
	assert.Equal(t, "https://www.abc.nl/", got)
}

func TestSearchWebsiteFallsBackToPlainQuery(t *testing.T) {
	t.Parallel()

	src := &fakeSource{hits: map[string][]model.SearchHit{
		"XYZ Corp": {{URL: "xyz.nl"}},
	}}
	got, err := NewSearchWebsite(src, extract.Policy{}).Attempt(context.Background(), model.Company{Name: "XYZ Corp"}, Known{})
	require.NoError(t, err)
	assert.Equal(t, "https://xyz.nl", got)
	assert.Equal(t, []string{"XYZ Corp official website", "XYZ Corp"}, src.queries)
}

func TestSitePhoneStopsAtFirstPage(t *testing.T) {
	t.Parallel()

	src := &fakeSource{pages: map[string]string{
		"https://abc.nl":         "Bel 020-123 4567",
		"https://abc.nl/contact": "Bel 030-765 4321",
	}}
	got, err := NewSitePhone(src, []string{"/contact"}).Attempt(context.Background(), abc, Known{Website: "https://abc.nl"})
	require.NoError(t, err)
	assert.Equal(t, "020-123 4567", got)
	assert.Equal(t, []string{"https://abc.nl"}, src.fetched)
}

func TestSitePhoneMissingPageIsMiss(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		pages:    map[string]string{"https://abc.nl": "geen nummer"},
		fetchErr: map[string]error{"https://abc.nl/contact": errors.New("404")},
	}
	got, err := NewSitePhone(src, []string{"/contact"}).Attempt(context.Background(), abc, Known{Website: "https://abc.nl"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPlacesMethods(t *testing.T) {
	t.Parallel()

	places := newPlaces(&google.TextSearchResponse{Places: []google.Place{
		{DisplayName: google.DisplayName{Text: "ABC"}, WebsiteURI: "https://facebook.com/abc", InternationalPhoneNumber: "+1 555 1234"},
		{DisplayName: google.DisplayName{Text: "ABC BV"}, WebsiteURI: "abc.nl", NationalPhoneNumber: "020 123 4567"},
	}})

	site, err := NewPlacesWebsite(places, extract.Policy{}).Attempt(context.Background(), abc, Known{})
	require.NoError(t, err)
	assert.Equal(t, "https://abc.nl", site)

	phone, err := NewPlacesPhone(places).Attempt(context.Background(), abc, Known{})
	require.NoError(t, err)
	assert.Equal(t, "020-123 4567", phone)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "waterfall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
waterfall:
  website: [places_website, search_website]
  phone: [site_phone, places_phone]
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"places_website", "search_website"}, cfg.Website)
	assert.Equal(t, []string{"site_phone", "places_phone"}, cfg.Phone)
	assert.Equal(t, DefaultConfig().Email, cfg.Email)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigBadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "waterfall.yaml")
	require.NoError(t, os.WriteFile(path, []byte("waterfall: [unclosed"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	err := Config{Email: []string{"guess_email"}}.Validate()
	assert.ErrorContains(t, err, "unknown method")

	err = Config{Phone: []string{MethodSiteEmail}}.Validate()
	assert.ErrorContains(t, err, "resolves email, not phone")
}

func TestBuild(t *testing.T) {
	t.Parallel()

	set, err := Build(DefaultConfig(), Deps{Source: &fakeSource{}, ContactPaths: []string{"/contact"}})
	require.NoError(t, err)

	w, ok := set.For(model.FieldEmail)
	require.True(t, ok)
	assert.Equal(t, []string{MethodSearchEmail, MethodSiteEmail}, w.Methods())

	w, ok = set.For(model.FieldPhone)
	require.True(t, ok)
	assert.Equal(t, []string{MethodSitePhone}, w.Methods())
}

func TestBuildPlacesRequiresClient(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Website = []string{MethodPlacesWebsite}
	_, err := Build(cfg, Deps{Source: &fakeSource{}})
	assert.ErrorContains(t, err, "places")
}

func TestMethodNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{MethodPlacesPhone, MethodSitePhone}, MethodNames(model.FieldPhone))
}
