package handle

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/selimbzr/ravel/internal/session"
)

func newSession() *session.Session {
	return &session.Session{
		Handles: map[string]session.HandleRecord{},
		Buffers: []string{},
	}
}

func matchItems(n int) []any {
	items := make([]any, n)
	for i := range items {
		items[i] = map[string]any{
			"match":    fmt.Sprintf("hit-%d", i),
			"line_num": float64(i + 1),
			"snippet":  fmt.Sprintf("context around hit-%d here", i),
		}
	}
	return items
}

func TestStoreDescriptorFormat(t *testing.T) {
	r := NewRegistry(newSession())

	stub := r.Store("match", matchItems(3))
	if !strings.HasPrefix(stub, "$res1: Array(3) [") {
		t.Errorf("unexpected descriptor: %s", stub)
	}
	if !strings.Contains(stub, "context around hit-0") {
		t.Errorf("descriptor should preview the snippet field: %s", stub)
	}

	empty := r.Store("match", []any{})
	if empty != "$res2: Array(0) []" {
		t.Errorf("empty descriptor = %q", empty)
	}
}

func TestStoreReturnsCompleteDescriptor(t *testing.T) {
	// Store's return is the final printable descriptor; callers must not
	// run it through MakeStub again.
	r := NewRegistry(newSession())

	stub := r.Store("grep", []any{map[string]any{"snippet": "hello world"}})
	if stub != "$res1: Array(1) [hello world]" {
		t.Errorf("descriptor = %q, want %q", stub, "$res1: Array(1) [hello world]")
	}
	if n := strings.Count(stub, ": Array("); n != 1 {
		t.Errorf("descriptor carries %d Array markers, want exactly 1: %s", n, stub)
	}
}

func TestExpandAcceptsBareNameAndDescriptor(t *testing.T) {
	r := NewRegistry(newSession())
	stub := r.Store("match", matchItems(5))

	byName, err := r.Expand("$res1", 10, 0)
	if err != nil {
		t.Fatalf("expand by name: %v", err)
	}
	byStub, err := r.Expand(stub, 10, 0)
	if err != nil {
		t.Fatalf("expand by descriptor: %v", err)
	}
	if len(byName) != 5 || len(byStub) != 5 {
		t.Errorf("expected 5 items both ways, got %d and %d", len(byName), len(byStub))
	}
}

func TestExpandPagination(t *testing.T) {
	r := NewRegistry(newSession())
	r.Store("match", matchItems(10))

	page, err := r.Expand("$res1", 3, 4)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page))
	}
	first := page[0].(map[string]any)
	if first["match"] != "hit-4" {
		t.Errorf("offset not honored, first item = %v", first["match"])
	}

	past, err := r.Expand("$res1", 3, 50)
	if err != nil {
		t.Fatalf("expand past end: %v", err)
	}
	if len(past) != 0 {
		t.Errorf("offset past end should yield empty slice")
	}
}

func TestUnknownHandle(t *testing.T) {
	r := NewRegistry(newSession())

	_, err := r.Expand("$res9", 10, 0)
	var unknown *UnknownHandleError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownHandleError, got %v", err)
	}
	if unknown.Name != "$res9" {
		t.Errorf("error should carry the canonical name, got %q", unknown.Name)
	}
}

func TestFilterProducesNewHandle(t *testing.T) {
	r := NewRegistry(newSession())
	r.Store("match", matchItems(10))

	stub, err := r.Filter("$res1", "hit-[02468]$")
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if !strings.HasPrefix(stub, "$res2:") {
		t.Errorf("filter must allocate a new handle, got %s", stub)
	}

	n, err := r.Count("$res2")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 filtered items, got %d", n)
	}
	// Source handle untouched.
	if n, _ := r.Count("$res1"); n != 10 {
		t.Errorf("filter mutated the source handle")
	}
}

func TestFilterFunc(t *testing.T) {
	r := NewRegistry(newSession())
	r.Store("value", []any{float64(1), float64(2), float64(3), float64(4)})

	stub, err := r.FilterFunc("$res1", func(item any) bool {
		return item.(float64) > 2
	})
	if err != nil {
		t.Fatalf("filter func: %v", err)
	}
	items, _ := r.Expand(Canonicalize(stub), 10, 0)
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
}

func TestMapFieldKeepsPositions(t *testing.T) {
	r := NewRegistry(newSession())
	r.Store("match", []any{
		map[string]any{"line_num": float64(3)},
		map[string]any{"other": "x"},
		map[string]any{"line_num": float64(7)},
	})

	if _, err := r.MapField("$res1", "line_num"); err != nil {
		t.Fatalf("map field: %v", err)
	}
	items, _ := r.Expand("$res2", 10, 0)
	if len(items) != 3 {
		t.Fatalf("projection must keep source positions, got %d items", len(items))
	}
	if items[1] != nil {
		t.Errorf("missing field should project to nil, got %v", items[1])
	}
}

func TestSumField(t *testing.T) {
	r := NewRegistry(newSession())
	r.Store("match", []any{
		map[string]any{"size": float64(10)},
		map[string]any{"size": float64(2.5)},
	})
	r.Store("value", []any{float64(1), "2.5", float64(3)})

	total, err := r.SumField("$res1", "size")
	if err != nil {
		t.Fatalf("sum field: %v", err)
	}
	if total != 12.5 {
		t.Errorf("expected 12.5, got %v", total)
	}

	direct, err := r.SumField("$res2", "")
	if err != nil {
		t.Fatalf("sum without field: %v", err)
	}
	if direct != 6.5 {
		t.Errorf("expected 6.5, got %v", direct)
	}
}

func TestSumFieldRejectsNonNumeric(t *testing.T) {
	r := NewRegistry(newSession())
	r.Store("value", []any{float64(1), "not a number"})

	if _, err := r.SumField("$res1", ""); err == nil {
		t.Fatalf("expected error for non-numeric value")
	}
}

func TestDeleteNeverRecyclesNames(t *testing.T) {
	r := NewRegistry(newSession())
	r.Store("match", matchItems(2))

	if !r.Delete("$res1") {
		t.Fatalf("delete should succeed for live handle")
	}
	if r.Delete("$res1") {
		t.Errorf("second delete should report missing")
	}

	stub := r.Store("match", matchItems(1))
	if !strings.HasPrefix(stub, "$res2:") {
		t.Errorf("deleted name must not be reused, got %s", stub)
	}
}

func TestListAndLast(t *testing.T) {
	r := NewRegistry(newSession())
	if r.List() != "No active handles." {
		t.Errorf("empty list message wrong: %q", r.List())
	}
	if _, err := r.Last(); err == nil {
		t.Errorf("Last should fail with no handles")
	}

	r.Store("match", matchItems(2))
	r.Store("match", matchItems(4))

	out := r.List()
	if !strings.Contains(out, "$res1: Array(2)") || !strings.Contains(out, "$res2: Array(4)") {
		t.Errorf("list output missing entries: %q", out)
	}
	if strings.Index(out, "$res1") > strings.Index(out, "$res2") {
		t.Errorf("list should be in creation order")
	}

	last, err := r.Last()
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last != "$res2" {
		t.Errorf("expected $res2, got %s", last)
	}
}

func TestCanonicalize(t *testing.T) {
	cases := map[string]string{
		"$res3":                       "$res3",
		"  $res3  ":                   "$res3",
		"$res3: Array(12) [preview]":  "$res3",
		"$res10: Array(0) []":         "$res10",
	}
	for in, want := range cases {
		if got := Canonicalize(in); got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}
