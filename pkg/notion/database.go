package notion

import (
	"context"
	"strconv"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll pages through a database and returns every row.
func QueryAll(ctx context.Context, c Client, dbID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	req := &notionapi.DatabaseQueryRequest{PageSize: 100}
	for {
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		req = &notionapi.DatabaseQueryRequest{PageSize: 100, StartCursor: resp.NextCursor}
	}
}

// PropertyText renders a page property as plain text. Unsupported property
// types and missing properties yield "".
func PropertyText(page notionapi.Page, name string) string {
	prop, ok := page.Properties[name]
	if !ok {
		return ""
	}
	var b strings.Builder
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		for _, rt := range p.Title {
			b.WriteString(rt.PlainText)
		}
	case *notionapi.RichTextProperty:
		for _, rt := range p.RichText {
			b.WriteString(rt.PlainText)
		}
	case *notionapi.URLProperty:
		b.WriteString(p.URL)
	case *notionapi.EmailProperty:
		b.WriteString(p.Email)
	case *notionapi.PhoneNumberProperty:
		b.WriteString(p.PhoneNumber)
	case *notionapi.NumberProperty:
		b.WriteString(strconv.FormatFloat(p.Number, 'f', -1, 64))
	case *notionapi.SelectProperty:
		b.WriteString(p.Select.Name)
	}
	return strings.TrimSpace(b.String())
}

// PropertyNames returns the page's property names.
func PropertyNames(page notionapi.Page) []string {
	names := make([]string, 0, len(page.Properties))
	for name := range page.Properties {
		names = append(names, name)
	}
	return names
}

// ContactProperties names the page properties that receive enrichment
// results. An empty name skips that field.
type ContactProperties struct {
	Website string
	Email   string
	Phone   string
}

// ContactUpdate builds a page update for the given values, or nil when there
// is nothing to write.
func ContactUpdate(names ContactProperties, website, email, phone string) *notionapi.PageUpdateRequest {
	out := notionapi.Properties{}
	if v := strings.TrimSpace(website); v != "" && names.Website != "" {
		out[names.Website] = notionapi.URLProperty{URL: v}
	}
	if v := strings.TrimSpace(email); v != "" && names.Email != "" {
		out[names.Email] = notionapi.EmailProperty{Email: v}
	}
	if v := strings.TrimSpace(phone); v != "" && names.Phone != "" {
		out[names.Phone] = notionapi.PhoneNumberProperty{PhoneNumber: v}
	}
	if len(out) == 0 {
		return nil
	}
	return &notionapi.PageUpdateRequest{Properties: out}
}
