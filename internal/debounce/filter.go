package debounce

import "strings"

// Filter keeps the items whose name contains query, ignoring case, in their
// original order. An empty query returns items unchanged.
func Filter[T any](items []T, query string, name func(T) string) []T {
	if query == "" {
		return items
	}
	q := strings.ToLower(query)
	out := make([]T, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(name(it)), q) {
			out = append(out, it)
		}
	}
	return out
}
