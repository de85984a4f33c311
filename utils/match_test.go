package utils

import "testing"

func TestMatchResource(t *testing.T) {
	cases := []struct {
		value   string
		pattern string
		want    bool
	}{
		{"/audit", "/audit", true},
		{"/audit", "/Audit", false},
		{"/audit", "*", true},
		{"/audit/tenant/42", "/audit/*", true},
		{"/billing/tenant/42", "/audit/*", false},
		{"/audit/tenant/42", "/audit/tenant/:tenantId", true},
		{"/audit/tenant/42/rows", "/audit/tenant/:tenantId", false},
		{"/audit/tenant/", "/audit/tenant/:tenantId", false},
		{"/audit/other/42", "/audit/tenant/:tenantId", false},
		{"feature_data", "feature_data", true},
		{"feature_data", "feature", false},
	}
	for _, c := range cases {
		if got := MatchResource(c.value, c.pattern); got != c.want {
			t.Errorf("MatchResource(%q, %q) = %v, want %v", c.value, c.pattern, got, c.want)
		}
	}
}
