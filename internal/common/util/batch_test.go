package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchCount(t *testing.T) {
	tests := map[string]struct {
		total     int
		batchSize int
		want      int
	}{
		"empty":          {0, 10, 0},
		"exact":          {100, 10, 10},
		"remainder":      {101, 10, 11},
		"single short":   {3, 10, 1},
		"zero batchSize": {10, 0, 0},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, BatchCount(tc.total, tc.batchSize))
		})
	}
}
