// Package selector implements next-clip selection: the set difference between
// a candidate list and the validated set, and the choice of one element from
// it. Normal mode picks uniformly at random, expert mode deterministically by
// dataset order.
package selector

import (
	"math/rand"
	"sync"

	"github.com/NINAnor/tabmon-species-api/internal/validation"
)

// KeyFunc extracts the clip position from a candidate row.
type KeyFunc[T any] func(T) validation.ClipKey

// Unvalidated returns the candidates whose position is not in the validated
// set, preserving candidate order.
func Unvalidated[T any](candidates []T, validated validation.ClipSet, key KeyFunc[T]) []T {
	var remaining []T
	for _, c := range candidates {
		if !validated.Contains(key(c)) {
			remaining = append(remaining, c)
		}
	}
	return remaining
}

// Remaining counts the candidates not yet validated: |C| - |C ∩ V|.
func Remaining[T any](candidates []T, validated validation.ClipSet, key KeyFunc[T]) int {
	count := 0
	for _, c := range candidates {
		if !validated.Contains(key(c)) {
			count++
		}
	}
	return count
}

// Picker chooses random candidates. It is safe for concurrent use; a fixed
// seed makes the pick sequence reproducible.
type Picker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPicker returns a Picker seeded with seed.
func NewPicker(seed int64) *Picker {
	return &Picker{rng: rand.New(rand.NewSource(seed))}
}

// PickRandom returns a uniformly random unvalidated candidate. The second
// return value is false when every candidate is validated; callers report
// completion instead of an error.
func PickRandom[T any](p *Picker, candidates []T, validated validation.ClipSet, key KeyFunc[T]) (T, bool) {
	remaining := Unvalidated(candidates, validated, key)
	var zero T
	if len(remaining) == 0 {
		return zero, false
	}
	p.mu.Lock()
	idx := p.rng.Intn(len(remaining))
	p.mu.Unlock()
	return remaining[idx], true
}

// PickFirst returns the first unvalidated candidate in candidate order. With
// candidates ordered by (filename, start time) this gives every session the
// same deterministic walk through an assignment.
func PickFirst[T any](candidates []T, validated validation.ClipSet, key KeyFunc[T]) (T, bool) {
	var zero T
	for _, c := range candidates {
		if !validated.Contains(key(c)) {
			return c, true
		}
	}
	return zero, false
}
