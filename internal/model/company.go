// Package model defines the records that flow through an enrichment run.
package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NotFoundValue is written to merged output for fields that were attempted
// without a result.
const NotFoundValue = "Not found"

// Company is one input row to be enriched. It is never mutated by the
// pipeline; results live in the progress store keyed by Key.
type Company struct {
	Key     string            `json:"key"`
	Index   int               `json:"index"`
	Name    string            `json:"name"`
	City    string            `json:"city,omitempty"`
	Street  string            `json:"street,omitempty"`
	Zip     string            `json:"zip,omitempty"`
	Website string            `json:"website,omitempty"` // input-provided
	Email   string            `json:"email,omitempty"`   // input-provided
	Phone   string            `json:"phone,omitempty"`   // input-provided
	Row     map[string]string `json:"row,omitempty"`     // original columns
	PageID  string            `json:"page_id,omitempty"` // Notion page, when loaded from Notion
}

// NewCompany builds a Company with its identity key derived from name.
func NewCompany(index int, name string) Company {
	name = strings.TrimSpace(name)
	return Company{
		Key:   CompanyKey(name),
		Index: index,
		Name:  name,
		Row:   map[string]string{},
	}
}

// InputValue returns the value supplied by the input file for field, or ""
// when the input left it blank or marked it as not found.
func (c Company) InputValue(f Field) string {
	var v string
	switch f {
	case FieldWebsite:
		v = c.Website
	case FieldEmail:
		v = c.Email
	case FieldPhone:
		v = c.Phone
	}
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, NotFoundValue) {
		return ""
	}
	return v
}

// SearchLocation joins the optional address parts used to disambiguate
// search queries.
func (c Company) SearchLocation() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Street, c.Zip, c.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// CompanyKey normalizes a company name into its identity key: lowercase,
// diacritics folded, whitespace collapsed.
func CompanyKey(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
