package utils

import (
	"sort"

	"github.com/duke-git/lancet/v2/maputil"
)

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := maputil.Keys(m)
	sort.Strings(keys)
	return keys
}
