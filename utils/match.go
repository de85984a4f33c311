package utils

import "strings"

// MatchResource reports whether a concrete resource path matches a rule
// pattern. A pattern segment prefixed ':' matches any single literal token
// in the same position (e.g. "/audit/tenant/:tenantId" matches
// "/audit/tenant/42"); a trailing "/*" matches any suffix; a lone "*"
// matches everything. Anything else is exact, case-sensitive comparison.
func MatchResource(value, pattern string) bool {
	if pattern == value || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	}
	if !strings.ContainsRune(pattern, ':') {
		return false
	}
	vSegs := strings.Split(value, "/")
	pSegs := strings.Split(pattern, "/")
	if len(vSegs) != len(pSegs) {
		return false
	}
	for i, p := range pSegs {
		if len(p) > 1 && p[0] == ':' {
			if vSegs[i] == "" {
				return false
			}
			continue
		}
		if p != vSegs[i] {
			return false
		}
	}
	return true
}
