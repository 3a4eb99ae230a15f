package slugify

import (
	"strconv"
	"strings"
	"testing"
)

func TestMake(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Acme", "acme"},
		{"spaces and punctuation", "Acme Co!", "acme-co"},
		{"accents folded", "Ayuntamiento de León", "ayuntamiento-de-leon"},
		{"tilde n", "Peñafiel", "penafiel"},
		{"collapsed separators", "a  --  b", "a-b"},
		{"leading and trailing junk", "  ¡Hola!  ", "hola"},
		{"digits kept", "Mapa 2024", "mapa-2024"},
		{"only symbols", "!!!", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Make(tc.in); got != tc.want {
				t.Errorf("Make(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMakeUnique(t *testing.T) {
	slug := MakeUnique("Acme Co")
	if !strings.HasPrefix(slug, "acme-co-") {
		t.Errorf("MakeUnique should keep the base slug as prefix, got %q", slug)
	}

	suffix := strings.TrimPrefix(slug, "acme-co-")
	if _, err := strconv.ParseInt(suffix, 36, 64); err != nil {
		t.Errorf("suffix %q should be a base36 timestamp: %v", suffix, err)
	}
}
