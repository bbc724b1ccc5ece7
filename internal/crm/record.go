package crm

import "strings"

// Record is one scraped payload row from the vendor. The vendor's shape is
// not contractually stable, so fields are reached through narrow accessors
// instead of a typed schema; the import validity gate is the enforcement
// boundary.
type Record map[string]any

// Str returns the first non-empty string stored under any of the given keys.
func (r Record) Str(keys ...string) string {
	for _, k := range keys {
		if v, ok := r[k].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// NameOf returns the record's display name.
func (r Record) NameOf() string {
	return r.Str("name", "full_name", "company_name")
}

// URLOf returns the LinkedIn URL field the vendor supplied for this record.
func (r Record) URLOf() string {
	return r.Str("url", "input_url", "linkedin_url", "link")
}

// LogoOf returns a logo or avatar image URL, if any.
func (r Record) LogoOf() string {
	return r.Str("logo", "logo_url", "avatar", "profile_pic_url")
}

// WebsiteOf returns the company website, if any.
func (r Record) WebsiteOf() string {
	return r.Str("website", "company_website")
}

// HeadlineOf returns a profile headline or about line.
func (r Record) HeadlineOf() string {
	return r.Str("headline", "position", "about")
}

// IndustryOf returns the company industry, if any.
func (r Record) IndustryOf() string {
	return r.Str("industries", "industry")
}

// Experience is a (title, company) pair extracted from a profile record.
type Experience struct {
	Title   string
	Company string
}

// CurrentCompanyOf returns the separately-reported current employer name.
func (r Record) CurrentCompanyOf() string {
	switch v := r["current_company"].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		return Record(v).Str("name", "company_name")
	default:
		return r.Str("current_company_name")
	}
}

// ExperienceOf extracts the record's experience entries. Entries without a
// distinguishable (title, company) pair are dropped.
func (r Record) ExperienceOf() []Experience {
	raw, ok := r["experience"].([]any)
	if !ok {
		return nil
	}
	out := make([]Experience, 0, len(raw))
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		entry := Record(m)
		exp := Experience{
			Title:   entry.Str("title", "position"),
			Company: entry.Str("company", "company_name"),
		}
		if exp.Title == "" || exp.Company == "" || strings.EqualFold(exp.Title, exp.Company) {
			continue
		}
		out = append(out, exp)
	}
	return out
}

// Placeholder names the vendor substitutes for private or missing profiles.
var placeholderNames = []string{"unknown", "linkedin member", "private"}

// Valid applies the vendor-shape validity gate: a record with a missing or
// placeholder name must never be persisted.
func (r Record) Valid() (bool, string) {
	name := r.NameOf()
	if name == "" {
		return false, "missing name"
	}
	lower := strings.ToLower(name)
	for _, p := range placeholderNames {
		if lower == p {
			return false, "placeholder name: " + name
		}
	}
	return true, ""
}
