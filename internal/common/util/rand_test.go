package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewThreadsafeRand_Deterministic(t *testing.T) {
	a := NewThreadsafeRand(42)
	b := NewThreadsafeRand(42)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestNewThreadsafeRand_ConcurrentUse(t *testing.T) {
	r := NewThreadsafeRand(1)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Intn(1000)
			}
		}()
	}
	wg.Wait()
}

func TestSample(t *testing.T) {
	elements := make([]int, 1000)
	for i := range elements {
		elements[i] = i
	}
	rng := NewThreadsafeRand(7)

	sample := Sample(rng, elements, 100)
	assert.Len(t, sample, 100)
	assert.Len(t, Unique(sample), 100)
	for _, e := range sample {
		assert.Contains(t, elements, e)
	}
	for i, e := range elements {
		assert.Equal(t, i, e, "input must not be modified")
	}
}

func TestSample_ReturnsAllWhenSmall(t *testing.T) {
	rng := NewThreadsafeRand(7)
	assert.Equal(t, []string{"a", "b"}, Sample(rng, []string{"a", "b"}, 5))
	assert.Equal(t, []string{"a", "b"}, Sample(rng, []string{"a", "b"}, 2))
	assert.Equal(t, []string{"a", "b"}, Sample(rng, []string{"a", "b"}, 0))
	assert.Empty(t, Sample(rng, []string{}, 3))
}

func TestSample_Uniform(t *testing.T) {
	rng := NewThreadsafeRand(11)
	counts := make([]int, 10)
	elements := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	for i := 0; i < 10000; i++ {
		for _, e := range Sample(rng, elements, 3) {
			counts[e]++
		}
	}
	// Each element is expected 3000 times.
	for _, c := range counts {
		assert.InDelta(t, 3000, c, 300)
	}
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, Unique([]string{"b", "a", "b", "c", "a"}))
	assert.Empty(t, Unique([]string(nil)))
}
