// Package finalize manages a session's single answer slot: one value,
// validated as JSON-shaped, captured with a timestamp for external
// retrieval independent of the session's working state.
package finalize

import (
	"fmt"
	"reflect"
	"time"

	"github.com/selimbzr/ravel/internal/session"
)

// SerializationError reports a value that cannot round-trip through JSON.
type SerializationError struct {
	Path string
	Kind reflect.Kind
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("value is not JSON-serializable: %s at %s (only primitives, sequences, and string-keyed maps are allowed)", e.Kind, e.Path)
}

// Set validates value and overwrites the session's answer slot. The slot
// holds at most one answer; validation failures leave the session
// untouched.
func Set(s *session.Session, value any) error {
	if err := Validate(value); err != nil {
		return err
	}
	s.FinalAnswer = &session.FinalAnswer{
		Value: value,
		SetAt: time.Now().UTC(),
	}
	return nil
}

// Has reports whether an answer was set, including an explicit nil value.
func Has(s *session.Session) bool {
	return s.FinalAnswer != nil
}

// Get returns the answer value and whether one was set.
func Get(s *session.Session) (any, bool) {
	if s.FinalAnswer == nil {
		return nil, false
	}
	return s.FinalAnswer.Value, true
}

// Clear empties the answer slot. Only session reset uses this.
func Clear(s *session.Session) {
	s.FinalAnswer = nil
}

// Describe summarizes a value for confirmation output: its type name plus a
// length for strings, slices, and maps.
func Describe(value any) string {
	if value == nil {
		return "nil"
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return fmt.Sprintf("%s (length: %d)", v.Kind(), v.Len())
	default:
		return v.Kind().String()
	}
}

// Validate walks a value and rejects anything that would not survive a
// JSON round-trip: only nil, booleans, numbers, strings, sequences, and
// string-keyed maps pass. The error names the first offending element.
func Validate(value any) error {
	return validate(reflect.ValueOf(value), "value")
}

func validate(v reflect.Value, path string) error {
	if !v.IsValid() {
		return nil // nil is a legal answer
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil

	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Pointer {
			// Pointers hide arbitrary types (compiled regexps, files);
			// the slot stores data, not references.
			return &SerializationError{Path: path, Kind: v.Elem().Kind()}
		}
		return validate(v.Elem(), path)

	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := validate(v.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return &SerializationError{Path: path, Kind: v.Kind()}
		}
		iter := v.MapRange()
		for iter.Next() {
			if err := validate(iter.Value(), fmt.Sprintf("%s[%q]", path, iter.Key().String())); err != nil {
				return err
			}
		}
		return nil

	default:
		return &SerializationError{Path: path, Kind: v.Kind()}
	}
}
