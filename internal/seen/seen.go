// Package seen implements set-difference filtering of items against
// the identity keys delivered by earlier runs.
package seen

import (
	"sort"

	"InsightFlow/internal/domain"
)

// Set is a collection of identity keys. It only ever grows.
type Set map[string]struct{}

// New builds a set from the given keys.
func New(keys ...string) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Add inserts a key.
func (s Set) Add(key string) {
	s[key] = struct{}{}
}

// Len returns the number of keys.
func (s Set) Len() int {
	return len(s)
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Sorted returns the keys in ascending order.
func (s Set) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FilterNew returns the items whose identity key is not in prior, in input order,
// together with a copy of prior extended by those keys. Items repeating a key
// already accepted in the same call are dropped. prior is not modified.
func FilterNew(items []domain.Item, prior Set) ([]domain.Item, Set) {
	next := prior.Clone()
	fresh := make([]domain.Item, 0, len(items))
	for _, it := range items {
		key := it.IdentityKey()
		if next.Has(key) {
			continue
		}
		next.Add(key)
		fresh = append(fresh, it)
	}
	return fresh, next
}
