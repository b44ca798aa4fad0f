package eventadmin

import "time"

// Tuning constants (spec §6). These are compile-time by design: the async worker
// pool size and queue bound define the concurrency and memory envelope of the engine
// and are not safe to change while workers are running.
const (
	// WorkerCount is the fixed size of the async delivery worker pool (N).
	WorkerCount = 5

	// MaxParallelPerHandler bounds concurrent in-flight async deliveries to a single
	// unordered handler (P = floor(N/3)+1).
	MaxParallelPerHandler = WorkerCount/3 + 1

	// QueueBound is the maximum number of entries the async queue may hold (Q).
	QueueBound = 512

	// SlowHandlerThreshold is the elapsed-time cutoff past which a handler invocation
	// blacklists its handler (T).
	SlowHandlerThreshold = 60 * time.Second

	// MaxPrefixLength is the maximum byte length of a "<prefix>/*" subscription pattern's
	// prefix, and of an event topic considered for prefix-channel matching (L).
	MaxPrefixLength = 255
)
