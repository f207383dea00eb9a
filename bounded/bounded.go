// Package bounded implements page-capped sequences with a
// construction-time capacity. Every bounded list carries its own limit N;
// the only ways to produce one are Empty, From (which fails if the input
// is already too long) and Push (which fails rather than truncate). This
// mirrors the BoundedVec discipline the source election tool leans on for
// the solver's statically-known tensor shapes.
package bounded

import "github.com/tos-network/electsim/apperr"

// List is a sequence capped at a construction-time capacity.
type List[T any] struct {
	items []T
	cap   int
}

// Empty returns a List with capacity cap and no elements.
func Empty[T any](cap int) List[T] {
	return List[T]{cap: cap}
}

// From builds a List from seq, failing with CapacityExceeded if the input
// is longer than cap. The returned list never silently truncates.
func From[T any](seq []T, cap int) (List[T], error) {
	if len(seq) > cap {
		var zero T
		return List[T]{}, apperr.CapacityExceeded("%T: %d items exceeds capacity %d", zero, len(seq), cap)
	}
	items := make([]T, len(seq))
	copy(items, seq)
	return List[T]{items: items, cap: cap}, nil
}

// Push appends v, failing with CapacityExceeded if the list is already at
// capacity.
func (l *List[T]) Push(v T) error {
	if len(l.items) >= l.cap {
		return apperr.CapacityExceeded("push would exceed capacity %d", l.cap)
	}
	l.items = append(l.items, v)
	return nil
}

// Len reports the current element count.
func (l List[T]) Len() int { return len(l.items) }

// Cap reports the construction-time capacity.
func (l List[T]) Cap() int { return l.cap }

// Items returns the underlying slice. Callers must not mutate it in a way
// that would violate the capacity invariant; it is exposed read-mostly for
// iteration and serialization.
func (l List[T]) Items() []T { return l.items }

// Chunk splits flat into successive Lists of at most perPage items each,
// failing with CapacityExceeded if that would require more than maxPages
// lists. This is the pagination step the snapshot reconstructor uses to
// split a sorted voter list into VoterSnapshotPerBlock-capped pages.
func Chunk[T any](flat []T, perPage, maxPages int) ([]List[T], error) {
	if len(flat) == 0 {
		return nil, nil
	}
	var pages []List[T]
	for start := 0; start < len(flat); start += perPage {
		end := start + perPage
		if end > len(flat) {
			end = len(flat)
		}
		page, err := From(flat[start:end], perPage)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
		if len(pages) > maxPages {
			return nil, apperr.CapacityExceeded("%d voters require more than %d pages of %d", len(flat), maxPages, perPage)
		}
	}
	return pages, nil
}
