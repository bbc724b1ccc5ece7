package crm

import (
	"net/url"
	"strings"
)

const linkedinDomain = "linkedin.com"

// SlugOf extracts the canonical lowercase slug from a LinkedIn URL so that
// the same entity scraped via different URL variants is recognized as
// identical. For profiles the segment after "in" is used, for companies the
// segment after "company"; when the marker is absent the last path segment
// wins. It never fails: unparseable input degrades to a lowercased,
// query-stripped form of the raw string. Empty input yields "".
func SlugOf(kind EntityKind, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	withScheme := raw
	if !strings.HasPrefix(withScheme, "http://") && !strings.HasPrefix(withScheme, "https://") {
		withScheme = "https://" + withScheme
	}
	u, err := url.Parse(withScheme)
	if err != nil {
		return fallbackSlug(raw)
	}
	segments := splitPath(u.Path)
	if len(segments) == 0 {
		return ""
	}
	marker := "in"
	if kind == KindCompany {
		marker = "company"
	}
	for i, seg := range segments {
		if strings.EqualFold(seg, marker) && i+1 < len(segments) {
			return strings.ToLower(segments[i+1])
		}
	}
	return strings.ToLower(segments[len(segments)-1])
}

// CanonicalURL rewrites raw into the single stored form for its slug, so two
// differently-formatted URLs for the same entity converge to one value. When
// no slug can be derived the trimmed input is returned as-is.
func CanonicalURL(kind EntityKind, raw string) string {
	slug := SlugOf(kind, raw)
	if slug == "" {
		return strings.TrimSpace(raw)
	}
	if kind == KindCompany {
		return "https://www.linkedin.com/company/" + slug
	}
	return "https://www.linkedin.com/in/" + slug
}

// IsLinkedinURL reports whether raw plausibly points at the LinkedIn domain.
func IsLinkedinURL(raw string) bool {
	return strings.Contains(strings.ToLower(raw), linkedinDomain)
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fallbackSlug(raw string) string {
	s := strings.ToLower(raw)
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, "/")
}
