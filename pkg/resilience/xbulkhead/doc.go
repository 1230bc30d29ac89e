// Package xbulkhead isolates concurrent callers of a shared resource so a
// surge against one operation can't starve every other operation sharing
// the same process.
//
// # Design
//
// A Strategy holds a fixed number of permits (MaxParallelization). A call
// that finds a free permit runs immediately. A call that doesn't may wait
// in a bounded queue (MaxQueuing) for one to free up; once both the
// permits and the queue are full, the call is rejected immediately with
// BulkheadRejectedError rather than piling up unboundedly.
//
// This mirrors the semaphore-plus-bounded-queue shape of a worker pool,
// but stays synchronous: Execute blocks the calling goroutine until it
// either runs the operation or is rejected, instead of handing the task
// off to a background worker and returning early. A caller waiting in the
// queue that observes its context canceled gives up its place and returns
// OperationCanceledError instead of waiting out the remaining queue.
package xbulkhead
