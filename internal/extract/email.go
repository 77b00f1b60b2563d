package extract

import (
	"regexp"
	"strings"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Emails returns every address in text that survives the exclusion list,
// lowercased and deduplicated in discovery order.
func Emails(text string, p Policy) []string {
	if text == "" {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, m := range emailRe.FindAllString(text, -1) {
		addr := strings.ToLower(m)
		if seen[addr] || excludedEmail(addr, p.EmailExclusions) {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

func excludedEmail(addr string, exclusions []string) bool {
	for _, ex := range exclusions {
		if ex != "" && strings.Contains(addr, strings.ToLower(ex)) {
			return true
		}
	}
	return false
}

// EmailHints narrows the choice between several candidate addresses.
type EmailHints struct {
	CompanyName string
	// Domain is the company's resolved website domain, if known.
	Domain string
}

// SelectEmail picks one address from candidates. Addresses on the company's
// own domain win, ordered by the policy's priority prefixes; then an address
// whose domain shares a token longer than three characters with the company
// name; then the first candidate.
func SelectEmail(candidates []string, hints EmailHints, p Policy) string {
	if len(candidates) == 0 {
		return ""
	}

	if domain := strings.ToLower(hints.Domain); domain != "" {
		var onDomain []string
		for _, c := range candidates {
			if strings.Contains(emailDomain(c), domain) {
				onDomain = append(onDomain, c)
			}
		}
		for _, prefix := range p.PriorityPrefixes {
			for _, c := range onDomain {
				if strings.HasPrefix(c, strings.ToLower(prefix)+"@") {
					return c
				}
			}
		}
		if len(onDomain) > 0 {
			return onDomain[0]
		}
	}

	for _, tok := range nameTokens(hints.CompanyName, 3) {
		for _, c := range candidates {
			if strings.Contains(emailDomain(c), tok) {
				return c
			}
		}
	}

	return candidates[0]
}

// BestEmail runs Emails then SelectEmail.
func BestEmail(text string, hints EmailHints, p Policy) string {
	return SelectEmail(Emails(text, p), hints, p)
}

func emailDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return ""
}
