package waterfall

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-cli/internal/extract"
	"github.com/sells-group/enrichment-cli/internal/model"
	"github.com/sells-group/enrichment-cli/internal/scrape"
)

// Method names accepted in waterfall.yaml.
const (
	MethodSearchEmail   = "search_email"
	MethodSiteEmail     = "site_email"
	MethodSearchWebsite = "search_website"
	MethodPlacesWebsite = "places_website"
	MethodSitePhone     = "site_phone"
	MethodPlacesPhone   = "places_phone"
)

// Deps are the collaborators methods are built from.
type Deps struct {
	Source scrape.Source
	// Places is optional; places_* methods fail to build without it.
	Places *scrape.Places
	Policy extract.Policy
	// ContactPaths are appended to the site root by the site_* methods.
	ContactPaths []string
	// PageConcurrency bounds parallel page fetches per company.
	PageConcurrency int
}

type factory struct {
	field model.Field
	build func(Deps) (Method, error)
}

var registry = map[string]factory{
	MethodSearchEmail: {model.FieldEmail, func(d Deps) (Method, error) {
		if d.Source == nil {
			return nil, errNoSource
		}
		return NewSearchEmail(d.Source, d.Policy), nil
	}},
	MethodSiteEmail: {model.FieldEmail, func(d Deps) (Method, error) {
		if d.Source == nil {
			return nil, errNoSource
		}
		return NewSiteEmail(d.Source, d.Policy, d.ContactPaths, d.PageConcurrency), nil
	}},
	MethodSearchWebsite: {model.FieldWebsite, func(d Deps) (Method, error) {
		if d.Source == nil {
			return nil, errNoSource
		}
		return NewSearchWebsite(d.Source, d.Policy), nil
	}},
	MethodPlacesWebsite: {model.FieldWebsite, func(d Deps) (Method, error) {
		if d.Places == nil {
			return nil, errNoPlaces
		}
		return NewPlacesWebsite(d.Places, d.Policy), nil
	}},
	MethodSitePhone: {model.FieldPhone, func(d Deps) (Method, error) {
		if d.Source == nil {
			return nil, errNoSource
		}
		return NewSitePhone(d.Source, d.ContactPaths), nil
	}},
	MethodPlacesPhone: {model.FieldPhone, func(d Deps) (Method, error) {
		if d.Places == nil {
			return nil, errNoPlaces
		}
		return NewPlacesPhone(d.Places), nil
	}},
}

var (
	errNoSource = eris.New("no search/fetch source configured")
	errNoPlaces = eris.New("google places is not configured")
)

// MethodNames lists the registered methods that resolve f.
func MethodNames(f model.Field) []string {
	var out []string
	for name, fac := range registry {
		if fac.field == f {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Build validates cfg and constructs a waterfall per field.
func Build(cfg Config, d Deps) (Set, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d.Policy = d.Policy.WithDefaults()

	set := make(Set, len(model.AllFields))
	for _, f := range model.AllFields {
		names := cfg.Methods(f)
		methods := make([]Method, 0, len(names))
		for _, name := range names {
			m, err := registry[name].build(d)
			if err != nil {
				return nil, eris.Wrapf(err, "waterfall: build %s", name)
			}
			methods = append(methods, m)
		}
		set[f] = New(f, methods...)
	}
	return set, nil
}

