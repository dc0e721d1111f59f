package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/v1/users/me":                "/v1/users/me",
		"/v1/users/01J8Z3":            "/v1/users/:id",
		"/v1/users/01J8Z3/roles/7":    "/v1/users/:id/roles/:role_id",
		"/v1/roles/7/permissions":     "/v1/roles/:id/permissions",
		"/v1/auth/login":              "/v1/auth/login",
		"/v1/auth/login?redirect=yes": "/v1/auth/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"alice@example.com": "a***@example.com",
		"a@b.c":             "a***@b.c",
		"no-at-sign":        "***",
		"":                  "***",
	}
	for input, expected := range cases {
		if got := MaskEmail(input); got != expected {
			t.Fatalf("MaskEmail(%q)=%q, want %q", input, got, expected)
		}
	}
}
