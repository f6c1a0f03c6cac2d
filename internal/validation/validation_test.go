package validation

import (
	"strings"
	"testing"
)

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello  ", 100); got != "hello" {
		t.Errorf("expected trimmed string, got %q", got)
	}
	if got := SanitizeString("abc\x00def", 100); got != "abcdef" {
		t.Errorf("expected null bytes removed, got %q", got)
	}
	if got := SanitizeString(strings.Repeat("a", 200), 10); len(got) != 10 {
		t.Errorf("expected truncation to 10, got %d", len(got))
	}
}

func TestIsValidSlug(t *testing.T) {
	valid := []string{"acme", "night-shift", "a1-b2-c3", "123"}
	for _, s := range valid {
		if !IsValidSlug(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}

	invalid := []string{"", "UPPER", "has space", "-leading", "trailing-", "double--dash", strings.Repeat("a", 64)}
	for _, s := range invalid {
		if IsValidSlug(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	if !IsValidEmail("owner@example.com") {
		t.Error("expected owner@example.com to be valid")
	}
	for _, s := range []string{"", "noat", "two@@example.com", "spaces in@example.com", "missing@tld"} {
		if IsValidEmail(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Night Shift Staffing": "night-shift-staffing",
		"  ACME, Inc.  ":       "acme-inc",
		"already-a-slug":       "already-a-slug",
		"___":                  "",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateCombinators(t *testing.T) {
	errs := Validate(
		Required("name", ""),
		ValidEmail("email", "not-an-email"),
		ValidSlug("slug", "Bad Slug"),
		MaxLength("notes", strings.Repeat("x", 20), 10),
	)
	if len(errs) != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", len(errs), errs)
	}

	errs = Validate(
		Required("name", "ok"),
		ValidEmail("email", "owner@example.com"),
		ValidSlug("slug", "good-slug"),
	)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}
