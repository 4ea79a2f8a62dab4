package ocr

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateKeepsRunesWhole(t *testing.T) {
	got := truncate("  "+strings.Repeat("日本", 10)+"  ", 7)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate split a rune: %q", got)
	}
	if got != "日本日本日本日" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncate(" ok ", 10); got != "ok" {
		t.Fatalf("expected trimmed input, got %q", got)
	}
}
