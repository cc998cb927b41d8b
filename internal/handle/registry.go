// Package handle stores materialized result sets server-side and hands
// back compact lazy references, keeping large payloads out of the caller's
// context window.
package handle

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/selimbzr/ravel/internal/session"
)

// PreviewLength caps the preview text embedded in a handle descriptor.
const PreviewLength = 80

// defaultFields is the field set pattern predicates match against, in
// priority order, when filtering map-shaped items.
var defaultFields = []string{"snippet", "line", "match", "content", "text"}

// UnknownHandleError reports a reference to a handle that was never created
// or has been deleted.
type UnknownHandleError struct {
	Name string
}

func (e *UnknownHandleError) Error() string {
	return fmt.Sprintf("unknown handle: %s", e.Name)
}

// Registry exposes handle operations over a session's handle table. All
// mutations go straight into the session; the caller persists afterward.
type Registry struct {
	sess *session.Session
}

// NewRegistry wraps a session's handle table.
func NewRegistry(sess *session.Session) *Registry {
	return &Registry{sess: sess}
}

// Store allocates the next sequence number, records the items under it, and
// returns the descriptor string. Names are never recycled, even after delete.
func (r *Registry) Store(kind string, items []any) string {
	r.sess.HandleCounter++
	name := fmt.Sprintf("$res%d", r.sess.HandleCounter)
	r.sess.Handles[name] = session.HandleRecord{
		Kind:  kind,
		Seq:   r.sess.HandleCounter,
		Items: items,
	}
	return MakeStub(name, items)
}

// MakeStub builds the compact descriptor: "$resN: Array(count) [preview]".
func MakeStub(name string, items []any) string {
	if len(items) == 0 {
		return fmt.Sprintf("%s: Array(0) []", name)
	}

	preview := ""
	switch first := items[0].(type) {
	case map[string]any:
		for _, field := range defaultFields {
			if v, ok := first[field]; ok {
				preview = truncateRunes(fmt.Sprintf("%v", v), PreviewLength)
				break
			}
		}
		if preview == "" {
			keys := make([]string, 0, len(first))
			for k := range first {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			if len(keys) > 0 {
				k := keys[0]
				preview = fmt.Sprintf("%s: %s", k, truncateRunes(fmt.Sprintf("%v", first[k]), 40))
			}
		}
	default:
		preview = truncateRunes(fmt.Sprintf("%v", first), PreviewLength)
	}

	preview = strings.Join(strings.Fields(preview), " ")
	if len(preview) > PreviewLength {
		preview = preview[:PreviewLength-3] + "..."
	}
	return fmt.Sprintf("%s: Array(%d) [%s]", name, len(items), preview)
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Canonicalize normalizes a handle reference. Callers routinely paste back
// the full descriptor string instead of the bare name, so both forms are
// accepted: "$res3" and "$res3: Array(12) [preview]".
func Canonicalize(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.Index(ref, ":"); i >= 0 {
		ref = strings.TrimSpace(ref[:i])
	}
	return ref
}

func (r *Registry) lookup(ref string) (string, session.HandleRecord, error) {
	name := Canonicalize(ref)
	rec, ok := r.sess.Handles[name]
	if !ok {
		return name, session.HandleRecord{}, &UnknownHandleError{Name: name}
	}
	return name, rec, nil
}

// Expand returns a page of items from a handle, honoring limit and offset.
func (r *Registry) Expand(ref string, limit, offset int) ([]any, error) {
	_, rec, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rec.Items) {
		return []any{}, nil
	}
	end := len(rec.Items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rec.Items[offset:end], nil
}

// Count reports the number of items without materializing them.
func (r *Registry) Count(ref string) (int, error) {
	_, rec, err := r.lookup(ref)
	if err != nil {
		return 0, err
	}
	return len(rec.Items), nil
}

// Filter keeps items whose default fields match the pattern and stores the
// survivors under a new handle. Map-shaped items match if any of the default
// fields matches; other items match against their string form.
func (r *Registry) Filter(ref, pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid filter pattern: %w", err)
	}
	return r.FilterFunc(ref, func(item any) bool {
		if m, ok := item.(map[string]any); ok {
			for _, field := range defaultFields {
				if v, present := m[field]; present && re.MatchString(fmt.Sprintf("%v", v)) {
					return true
				}
			}
			return false
		}
		return re.MatchString(fmt.Sprintf("%v", item))
	})
}

// FilterFunc is the caller-supplied-predicate variant of Filter. The result
// is always a new handle; the source handle is left untouched.
func (r *Registry) FilterFunc(ref string, keep func(any) bool) (string, error) {
	_, rec, err := r.lookup(ref)
	if err != nil {
		return "", err
	}
	filtered := []any{}
	for _, item := range rec.Items {
		if keep(item) {
			filtered = append(filtered, item)
		}
	}
	return r.Store(rec.Kind, filtered), nil
}

// MapField projects one field from each item into a new handle. Items
// missing the field project to nil, keeping positions aligned with the
// source handle.
func (r *Registry) MapField(ref, field string) (string, error) {
	_, rec, err := r.lookup(ref)
	if err != nil {
		return "", err
	}
	extracted := make([]any, 0, len(rec.Items))
	for _, item := range rec.Items {
		if m, ok := item.(map[string]any); ok {
			if v, present := m[field]; present {
				extracted = append(extracted, v)
				continue
			}
		}
		extracted = append(extracted, nil)
	}
	return r.Store(field, extracted), nil
}

// SumField adds up numeric values across a handle's items. With a field
// name, map items contribute that field; field-less items contribute
// themselves. Any non-numeric value is an error rather than a silent skip.
func (r *Registry) SumField(ref, field string) (float64, error) {
	name, rec, err := r.lookup(ref)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for i, item := range rec.Items {
		val := item
		if field != "" {
			if m, ok := item.(map[string]any); ok {
				val = m[field]
			}
		}
		n, err := toNumber(val)
		if err != nil {
			return 0, fmt.Errorf("%s item %d: %w", name, i, err)
		}
		total += n
	}
	return total, nil
}

func toNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("non-numeric value of type %T", v)
	}
}

// Delete frees a handle's items. Returns false when the handle does not
// exist; the freed name is never reassigned.
func (r *Registry) Delete(ref string) bool {
	name := Canonicalize(ref)
	if _, ok := r.sess.Handles[name]; !ok {
		return false
	}
	delete(r.sess.Handles, name)
	return true
}

// List formats all live handles in creation order.
func (r *Registry) List() string {
	if len(r.sess.Handles) == 0 {
		return "No active handles."
	}
	type entry struct {
		name string
		seq  int
		size int
	}
	entries := make([]entry, 0, len(r.sess.Handles))
	for name, rec := range r.sess.Handles {
		entries = append(entries, entry{name: name, seq: rec.Seq, size: len(rec.Items)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	var b strings.Builder
	b.WriteString("Active handles:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n  %s: Array(%d)", e.name, e.size)
	}
	return b.String()
}

// Last returns the most recently allocated handle name, for chaining.
func (r *Registry) Last() (string, error) {
	if r.sess.HandleCounter == 0 {
		return "", fmt.Errorf("no handles created yet")
	}
	return fmt.Sprintf("$res%d", r.sess.HandleCounter), nil
}
