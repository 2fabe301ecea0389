package queue

import "errors"

// ErrRateLimited is returned by AddJob when the per-queue token bucket is
// exhausted.
var ErrRateLimited = errors.New("queue: rate limit exceeded")

// ErrQueueSaturated is returned by AddJob when the admission breaker has
// opened due to queue depth or worker saturation.
var ErrQueueSaturated = errors.New("queue: admission breaker open, queue saturated")
