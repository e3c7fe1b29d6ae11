package util

// BatchCount returns the number of batches needed to send total elements at most batchSize at a time.
// The final batch holds the remainder.
func BatchCount(total, batchSize int) int {
	if batchSize <= 0 || total <= 0 {
		return 0
	}
	return (total + batchSize - 1) / batchSize
}
