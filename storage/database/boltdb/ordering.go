package boltdb

import (
	"sort"

	"github.com/trezcool/darasa/core"
)

// comparators maps an ordering field to a three-way comparison of two documents.
type comparators[T any] map[string]func(a, b T) int

// sortDocs stable-sorts docs by orderings; unknown fields are ignored.
func sortDocs[T any](docs []T, orderings []core.DBOrdering, cmps comparators[T]) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, ord := range orderings {
			cmp, ok := cmps[ord.Field]
			if !ok {
				continue
			}
			c := cmp(docs[i], docs[j])
			if !ord.Ascending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}
