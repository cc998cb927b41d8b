package structure

import (
	"encoding/json"
	"testing"
)

func wrapFiles(t *testing.T, files any) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{"files": files})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestParseSymbolsFilesArray(t *testing.T) {
	output := wrapFiles(t, []map[string]any{{
		"path": "test.py",
		"symbols": []map[string]any{
			{"name": "func1", "kind": "function", "lines": []int{1, 10}, "exported": true},
			{"name": "MyClass", "kind": "class", "lines": []int{12, 50}, "exported": true},
		},
	}})

	symbols := ParseSymbols(output, "test.py")
	if len(symbols) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(symbols))
	}
	if symbols[0].Name != "func1" || symbols[0].Kind != "function" {
		t.Errorf("first symbol = %+v", symbols[0])
	}
	if symbols[0].StartLine != 1 || symbols[0].EndLine != 10 {
		t.Errorf("line range = %d-%d", symbols[0].StartLine, symbols[0].EndLine)
	}
}

func TestParseSymbolsBareArray(t *testing.T) {
	output := `[{"path": "test.py", "symbols": [{"name": "main", "kind": "function", "lines": [5, 20], "exported": false}]}]`

	symbols := ParseSymbols(output, "test.py")
	if len(symbols) != 1 {
		t.Fatalf("expected 1 symbol, got %d", len(symbols))
	}
	if symbols[0].Name != "main" || symbols[0].Exported {
		t.Errorf("symbol = %+v", symbols[0])
	}
}

func TestParseSymbolsMatchesByBasename(t *testing.T) {
	output := wrapFiles(t, []map[string]any{{
		"path": "/some/long/path/test.py",
		"symbols": []map[string]any{
			{"name": "func", "kind": "function", "lines": []int{1, 5}, "exported": true},
		},
	}})

	symbols := ParseSymbols(output, "test.py")
	if len(symbols) != 1 {
		t.Fatalf("expected basename match, got %d symbols", len(symbols))
	}
}

func TestParseSymbolsNoMatch(t *testing.T) {
	output := wrapFiles(t, []map[string]any{{
		"path": "other.py",
		"symbols": []map[string]any{
			{"name": "func", "kind": "function", "lines": []int{1, 5}, "exported": true},
		},
	}})

	if symbols := ParseSymbols(output, "test.py"); len(symbols) != 0 {
		t.Errorf("expected no symbols for unmatched file, got %d", len(symbols))
	}
}

func TestParseSymbolsInvalidJSON(t *testing.T) {
	if symbols := ParseSymbols("not valid json {{{", "test.py"); symbols != nil {
		t.Errorf("expected nil for invalid JSON")
	}
}

func TestParseSymbolsSortsByStartLine(t *testing.T) {
	output := wrapFiles(t, []map[string]any{{
		"path": "test.py",
		"symbols": []map[string]any{
			{"name": "third", "kind": "function", "lines": []int{30, 40}, "exported": true},
			{"name": "first", "kind": "function", "lines": []int{1, 10}, "exported": true},
			{"name": "second", "kind": "class", "lines": []int{15, 25}, "exported": true},
		},
	}})

	symbols := ParseSymbols(output, "test.py")
	got := []string{symbols[0].Name, symbols[1].Name, symbols[2].Name}
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestParseSymbolsSignature(t *testing.T) {
	output := wrapFiles(t, []map[string]any{{
		"path": "test.py",
		"symbols": []map[string]any{
			{"name": "greet", "kind": "function", "lines": []int{1, 3}, "signature": "greet(name: str) -> str", "exported": true},
		},
	}})

	symbols := ParseSymbols(output, "test.py")
	if symbols[0].Signature != "greet(name: str) -> str" {
		t.Errorf("signature = %q", symbols[0].Signature)
	}
}

func TestLineToChar(t *testing.T) {
	content := "first line\nsecond line"
	if got := LineToChar(content, 1); got != 0 {
		t.Errorf("line 1 = %d", got)
	}
	if got := LineToChar(content, 2); got != 11 {
		t.Errorf("line 2 = %d", got)
	}
	if got := LineToChar("a\n\nb", 2); got != 2 {
		t.Errorf("empty line handling = %d", got)
	}
	if got := LineToChar("a\n\nb", 3); got != 3 {
		t.Errorf("line 3 = %d", got)
	}
	if got := LineToChar("test", 0); got != 0 {
		t.Errorf("line 0 = %d", got)
	}
	if got := LineToChar("a\nb", 99); got != 3 {
		t.Errorf("past-end line should clamp to len, got %d", got)
	}
}
