package queue

// Option configures a GiftQueue.
type Option func(*GiftQueue)

// WithCapacity bounds how many gifts may wait for the ingest worker.
func WithCapacity(n int) Option {
	return func(q *GiftQueue) {
		if n > 0 {
			q.capacity = n
		}
	}
}
