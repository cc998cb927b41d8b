package search

import (
	"strings"
	"testing"
)

func TestGrepBasics(t *testing.T) {
	content := "alpha beta\ngamma beta\ndelta"

	items, err := Grep(content, `beta`, 0, 0, false)
	if err != nil {
		t.Fatalf("grep: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(items))
	}

	first := items[0].(map[string]any)
	if first["match"] != "beta" {
		t.Errorf("match = %v", first["match"])
	}
	if first["line_num"] != float64(1) {
		t.Errorf("first match should be on line 1, got %v", first["line_num"])
	}
	second := items[1].(map[string]any)
	if second["line_num"] != float64(2) {
		t.Errorf("second match should be on line 2, got %v", second["line_num"])
	}

	span := first["span"].([]any)
	start, end := int(span[0].(float64)), int(span[1].(float64))
	if content[start:end] != "beta" {
		t.Errorf("span [%d,%d) does not point at the match", start, end)
	}
}

func TestGrepWindowClampsAtEdges(t *testing.T) {
	content := "needle in a haystack"

	items, err := Grep(content, `needle`, 0, 500, false)
	if err != nil {
		t.Fatalf("grep: %v", err)
	}
	snippet := items[0].(map[string]any)["snippet"].(string)
	if snippet != content {
		t.Errorf("oversized window should clamp to full content, got %q", snippet)
	}
}

func TestGrepMaxMatches(t *testing.T) {
	content := strings.Repeat("x ", 100)

	items, err := Grep(content, `x`, 5, 10, false)
	if err != nil {
		t.Fatalf("grep: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("expected 5 matches with cap, got %d", len(items))
	}
}

func TestGrepCaseInsensitive(t *testing.T) {
	items, err := Grep("Alpha ALPHA alpha", `alpha`, 0, 10, true)
	if err != nil {
		t.Fatalf("grep: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected 3 case-insensitive matches, got %d", len(items))
	}
}

func TestGrepInvalidPattern(t *testing.T) {
	if _, err := Grep("content", `[unclosed`, 0, 10, false); err == nil {
		t.Fatalf("expected error for invalid pattern")
	}
}

func TestGrepNoMatches(t *testing.T) {
	items, err := Grep("nothing here", `zzz`, 0, 10, false)
	if err != nil {
		t.Fatalf("grep: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty result, got %d", len(items))
	}
}
