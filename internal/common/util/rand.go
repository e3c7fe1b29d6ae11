package util

import (
	"math/rand"
	"sync"
)

// LockedSource is a rand.Source that can be shared between goroutines.
type LockedSource struct {
	lk  sync.Mutex
	src rand.Source
}

func (r *LockedSource) Int63() (n int64) {
	r.lk.Lock()
	n = r.src.Int63()
	r.lk.Unlock()
	return
}

func (r *LockedSource) Seed(seed int64) {
	r.lk.Lock()
	r.src.Seed(seed)
	r.lk.Unlock()
}

// NewThreadsafeRand returns a *rand.Rand backed by a LockedSource.
func NewThreadsafeRand(seed int64) *rand.Rand {
	return rand.New(&LockedSource{src: rand.NewSource(seed)})
}

// Sample returns k elements drawn uniformly without replacement, in random order. All elements are
// returned, in their original order, if k is not positive or not smaller than len(elements).
// elements is not modified.
func Sample[T any](rng *rand.Rand, elements []T, k int) []T {
	if k <= 0 || k >= len(elements) {
		out := make([]T, len(elements))
		copy(out, elements)
		return out
	}
	pool := make([]T, len(elements))
	copy(pool, elements)
	// Partial Fisher-Yates: after i steps pool[:i] is a uniform sample of size i.
	for i := 0; i < k; i++ {
		j := i + rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// Unique returns elements with later duplicates removed, keeping first occurrences in order.
func Unique[T comparable](elements []T) []T {
	seen := make(map[T]struct{}, len(elements))
	out := make([]T, 0, len(elements))
	for _, e := range elements {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
