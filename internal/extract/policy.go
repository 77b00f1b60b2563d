// Package extract pulls typed contact values out of unstructured text.
// Every function is pure; the heuristics they apply are carried in Policy.
package extract

import "strings"

// Policy holds the tunable heuristics used by the extractors.
type Policy struct {
	// EmailExclusions rejects an address when any entry is a substring of
	// the lowercased address (image extensions, placeholder and platform
	// addresses, site-builder domains).
	EmailExclusions []string `yaml:"email_exclusions" mapstructure:"email_exclusions"`

	// PriorityPrefixes orders local parts when several addresses share the
	// company's website domain.
	PriorityPrefixes []string `yaml:"priority_prefixes" mapstructure:"priority_prefixes"`

	// WebsiteExclusions rejects search hits on these domains or their subdomains.
	WebsiteExclusions []string `yaml:"website_exclusions" mapstructure:"website_exclusions"`

	// ProbablePrefix is the local part used for synthesized addresses.
	ProbablePrefix string `yaml:"probable_prefix" mapstructure:"probable_prefix"`
}

// DefaultEmailExclusions merges the placeholder, platform and no-reply
// patterns used by the search and scrape finders.
var DefaultEmailExclusions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp",
	"example.", "your@", "email@", "name@", "user@",
	"test@", "sample@", "demo@", "@example", "@test",
	"test.com", "email.com", "domain.com",
	"yourcompany.", "company.com", "website.com",
	"wixpress.com", "sentry.io", "wordpress.com", "squarespace.com",
	"noreply@", "no-reply@", "donotreply@",
	"support@google", "support@facebook",
}

// DefaultPriorityPrefixes are the preferred local parts, best first.
var DefaultPriorityPrefixes = []string{"info", "contact", "hello", "office", "admin", "sales"}

// DefaultWebsiteExclusions are social, directory, registry and search
// domains that never count as a company's own website.
var DefaultWebsiteExclusions = []string{
	"facebook.com", "linkedin.com", "twitter.com", "instagram.com",
	"youtube.com", "tiktok.com", "pinterest.com", "x.com",
	"yelp.com", "yellowpages.com", "glassdoor.com", "indeed.com",
	"wikipedia.org", "crunchbase.com", "bloomberg.com",
	"kvk.nl", "openkvk.nl", "companyweb.be", "companyinfo.nl",
	"google.com", "google.nl", "bing.com",
}

// DefaultPolicy returns the stock heuristics.
func DefaultPolicy() Policy {
	return Policy{
		EmailExclusions:   append([]string(nil), DefaultEmailExclusions...),
		PriorityPrefixes:  append([]string(nil), DefaultPriorityPrefixes...),
		WebsiteExclusions: append([]string(nil), DefaultWebsiteExclusions...),
		ProbablePrefix:    "info",
	}
}

// WithDefaults fills empty lists from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if len(p.EmailExclusions) == 0 {
		p.EmailExclusions = d.EmailExclusions
	}
	if len(p.PriorityPrefixes) == 0 {
		p.PriorityPrefixes = d.PriorityPrefixes
	}
	if len(p.WebsiteExclusions) == 0 {
		p.WebsiteExclusions = d.WebsiteExclusions
	}
	if strings.TrimSpace(p.ProbablePrefix) == "" {
		p.ProbablePrefix = d.ProbablePrefix
	}
	return p
}

// nameTokens splits a company name into lowercase words longer than minLen.
func nameTokens(name string, minLen int) []string {
	var out []string
	seen := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(name)) {
		if len(w) <= minLen || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
