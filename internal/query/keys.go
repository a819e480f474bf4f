package query

import "sort"

// SortedKeys returns the keys of a column map in sorted order.
// Compilers use it so generated SQL is deterministic.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
