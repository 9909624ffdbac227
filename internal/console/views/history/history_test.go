package history

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Rename Objects", 20, "Rename Objects"},
		{"Rename Objects", 10, "Rename ..."},
		{"Set Volume on Forêt", 10, "Set Vol..."},
		{"short", 3, "short"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	got := truncate("Éclaboussure_Été_Forêt", 9)
	if !utf8.ValidString(got) {
		t.Fatalf("invalid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis, got %q", got)
	}
}
