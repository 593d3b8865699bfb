package logger

import "testing"

func TestTruncateForLog(t *testing.T) {
	if got := TruncateForLog("  short  ", 100); got != "short" {
		t.Fatalf("expected trimmed string, got %q", got)
	}

	if got := TruncateForLog("abcdefgh", 4); got != "abcd..." {
		t.Fatalf("expected truncated string with ellipsis, got %q", got)
	}

	if got := TruncateForLog("anything", 0); got != "" {
		t.Fatalf("expected empty string for non-positive limit, got %q", got)
	}

	// Runes, not bytes.
	if got := TruncateForLog("héllo", 2); got != "hé..." {
		t.Fatalf("expected rune-aware truncation, got %q", got)
	}
}
