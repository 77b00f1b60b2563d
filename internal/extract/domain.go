package extract

import (
	"strings"

	"github.com/sells-group/enrichment-cli/internal/model"
)

// Domain reduces a URL, bare host or email address to its registrable host:
// lowercased, without scheme, leading "www.", port, path, query or fragment.
// It returns "" when nothing host-like remains.
func Domain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == strings.ToLower(model.NotFoundValue) {
		return ""
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "//")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")
	s = strings.Trim(s, ".")
	if !strings.Contains(s, ".") {
		return ""
	}
	return s
}

// ProbableEmail synthesizes prefix@domain from a website. An empty prefix
// defaults to "info".
func ProbableEmail(website, prefix string) string {
	d := Domain(website)
	if d == "" {
		return ""
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "info"
	}
	return strings.ToLower(prefix) + "@" + d
}

// NormalizeURL prefixes https:// when the value has no scheme.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s
	}
	return "https://" + strings.TrimPrefix(s, "//")
}
