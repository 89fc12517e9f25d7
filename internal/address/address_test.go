package address

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		opts   Options
		want   string
		wantOK bool
	}{
		{"plain", "user@example.com", DefaultOptions, "user@example.com", true},
		{"uppercase", "User@Example.COM", DefaultOptions, "user@example.com", true},
		{"plus tag dropped", "user+promo@Example.com", DefaultOptions, "user@example.com", true},
		{"plus tag kept", "user+promo@Example.com", Options{}, "user+promo@example.com", true},
		{"display name", "Jane Doe <Jane@Example.com>", DefaultOptions, "jane@example.com", true},
		{"quoted display name with at", `"a@b" <real@host.example>`, DefaultOptions, "real@host.example", true},
		{"empty angle falls back", "<> bounce@host.example", DefaultOptions, "bounce@host.example", true},
		{"token in text", "for <x> delivered to ops@corp.example; id 1", DefaultOptions, "ops@corp.example", true},
		{"trailing dot domain", "a@b.example.", DefaultOptions, "a@b.example", true},
		{"no at", "postmaster", DefaultOptions, "", false},
		{"empty", "", DefaultOptions, "", false},
		{"only tag", "+x@example.com", DefaultOptions, "", false},
		{"empty domain", "user@", DefaultOptions, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.in, tt.opts)
			if ok != tt.wantOK {
				t.Fatalf("Normalize(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"user+promo@Example.com",
		"Name <A.B+c@Sub.Example.org>",
		"weird!#$%&'*/=?^_`{|}~-user@host-1.example",
		"x@y.z.",
		"not an address",
	}
	for _, opts := range []Options{DefaultOptions, {}} {
		for _, in := range inputs {
			once, ok := Normalize(in, opts)
			if !ok {
				continue
			}
			twice, ok := Normalize(once, opts)
			if !ok {
				t.Fatalf("Normalize(%q) rejected its own output %q", in, once)
			}
			if once != twice {
				t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
			}
		}
	}
}

func TestSplit(t *testing.T) {
	local, domain, err := Split("a@b@c.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if local != "a@b" || domain != "c.example" {
		t.Errorf("Split = %q, %q", local, domain)
	}

	if _, _, err := Split("nope"); err != ErrNoAt {
		t.Errorf("expected ErrNoAt, got %v", err)
	}
	if _, _, err := Split("@d.example"); err != ErrEmptyLocal {
		t.Errorf("expected ErrEmptyLocal, got %v", err)
	}
	if _, _, err := Split("u@"); err != ErrEmptyDomain {
		t.Errorf("expected ErrEmptyDomain, got %v", err)
	}
}

func TestDomainHelpers(t *testing.T) {
	if got := Domain("u@Mixed.Example"); got != "mixed.example" {
		t.Errorf("Domain = %q", got)
	}
	if got := Domain("bare"); got != "" {
		t.Errorf("Domain(bare) = %q", got)
	}
	if got := Local("User@Mixed.Example"); got != "User" {
		t.Errorf("Local = %q", got)
	}
	if got := Local("bare"); got != "" {
		t.Errorf("Local(bare) = %q", got)
	}
	if got := NormalizeDomain(" @Example.COM. "); got != "example.com" {
		t.Errorf("NormalizeDomain = %q", got)
	}
	if !IsDomain("example.com") || IsDomain("a@example.com") || IsDomain("") {
		t.Error("IsDomain misclassified input")
	}
}
