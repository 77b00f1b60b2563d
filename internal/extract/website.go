package extract

import (
	"sort"
	"strings"

	"github.com/sells-group/enrichment-cli/internal/model"
)

const (
	nameWordScore = 10
	nlTLDScore    = 5
	comTLDScore   = 3
)

// ExcludedDomain reports whether domain is, or is a subdomain of, an entry
// in the exclusion list.
func ExcludedDomain(domain string, exclusions []string) bool {
	domain = strings.ToLower(domain)
	for _, ex := range exclusions {
		ex = strings.ToLower(strings.TrimSpace(ex))
		if ex == "" {
			continue
		}
		if domain == ex || strings.HasSuffix(domain, "."+ex) {
			return true
		}
	}
	return false
}

type scoredSite struct {
	url   string
	score int
}

// SelectWebsite scores non-excluded search hits against the company name
// and returns the best URL, normalized to carry a scheme. Each name word
// longer than two characters found in the domain adds 10, a .nl domain adds
// 5 and a .com domain adds 3. Ties keep search order.
func SelectWebsite(hits []model.SearchHit, companyName string, p Policy) string {
	words := nameTokens(companyName, 2)
	seen := map[string]bool{}

	var cands []scoredSite
	for _, h := range hits {
		d := Domain(h.URL)
		if d == "" || seen[d] || ExcludedDomain(d, p.WebsiteExclusions) {
			continue
		}
		seen[d] = true

		score := 0
		for _, w := range words {
			if strings.Contains(d, w) {
				score += nameWordScore
			}
		}
		switch {
		case strings.HasSuffix(d, ".nl"):
			score += nlTLDScore
		case strings.HasSuffix(d, ".com"):
			score += comTLDScore
		}
		cands = append(cands, scoredSite{url: h.URL, score: score})
	}
	if len(cands) == 0 {
		return ""
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	return NormalizeURL(cands[0].url)
}
