// Package lock serialises writers on the same resource family.
//
// Version creation reads and rewrites every row of a family (the latest
// flag, the HEAD mirror), so two writers on one family must not interleave.
// Keys name the family, for example "source:orgs/O/S" or "concepts:12:C1".
package lock

import (
	"context"
	"slices"

	dErrors "termrepo/pkg/domain-errors"
)

// Locker acquires exclusive locks on a set of keys.
type Locker interface {
	// Acquire blocks until every key is held or ctx is done. The returned
	// release func is safe to call more than once.
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

// normalize sorts and dedupes keys so every caller locks in the same order.
func normalize(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

func timeoutErr(err error, key string) error {
	return dErrors.Wrap(err, dErrors.CodeTimeout, "lock "+key+" not acquired")
}
