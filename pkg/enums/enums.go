// Package enums holds the string enums stored in Postgres enum columns.
package enums

import (
	"fmt"
	"slices"
)

// set is the ordered list of values a string enum accepts.
type set[T ~string] []T

func (s set[T]) contains(v T) bool { return slices.Contains(s, v) }

func (s set[T]) parse(kind, raw string) (T, error) {
	if v := T(raw); s.contains(v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}

func (s set[T]) values() []T { return slices.Clone(s) }
