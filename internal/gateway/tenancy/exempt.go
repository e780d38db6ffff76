package tenancy

import "strings"

// Exemption names the category a path was exempted under.
type Exemption int

const (
	ExemptNone Exemption = iota
	// ExemptPublic covers public business data (catalog, public reviews, auth).
	ExemptPublic
	// ExemptDiagnostic covers operational introspection (health, metrics).
	ExemptDiagnostic
)

func (e Exemption) String() string {
	switch e {
	case ExemptPublic:
		return "public"
	case ExemptDiagnostic:
		return "diagnostic"
	default:
		return "none"
	}
}

// PathPrefixes is a list of path prefixes matched on segment boundaries.
type PathPrefixes []string

// NewPathPrefixes normalises prefixes: blanks are dropped and trailing
// slashes trimmed ("/api/catalog/" and "/api/catalog" are the same prefix).
func NewPathPrefixes(prefixes []string) PathPrefixes {
	out := make(PathPrefixes, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p != "/" {
			p = strings.TrimRight(p, "/")
		}
		out = append(out, p)
	}
	return out
}

// Match reports whether path equals a prefix or continues it after a '/'.
// "/api/marketplace/catalog-admin" does not match "/api/marketplace/catalog".
func (pp PathPrefixes) Match(path string) bool {
	for _, p := range pp {
		if p == "/" {
			return true
		}
		if path == p {
			return true
		}
		if len(path) > len(p) && path[len(p)] == '/' && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// ExemptionMatcher decides which paths bypass tenant validation.
// Public and diagnostic prefixes are configured separately because they
// carry different trust implications.
type ExemptionMatcher struct {
	public     PathPrefixes
	diagnostic PathPrefixes
}

// NewExemptionMatcher builds a matcher from the two prefix categories.
func NewExemptionMatcher(public, diagnostic []string) *ExemptionMatcher {
	return &ExemptionMatcher{
		public:     NewPathPrefixes(public),
		diagnostic: NewPathPrefixes(diagnostic),
	}
}

// Match returns the exemption category of path, if any.
func (m *ExemptionMatcher) Match(path string) (Exemption, bool) {
	if m == nil {
		return ExemptNone, false
	}
	if m.diagnostic.Match(path) {
		return ExemptDiagnostic, true
	}
	if m.public.Match(path) {
		return ExemptPublic, true
	}
	return ExemptNone, false
}
