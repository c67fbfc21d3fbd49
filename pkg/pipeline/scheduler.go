package pipeline

import "context"

// Task is one schedulable unit of cooperative work: a receiver's accept
// loop, a processor's consume-and-forward loop, or an exporter's sink
// loop. Step must suspend only at channel/semaphore/I/O/timer operations
// and must never block the scheduler indefinitely on CPU-bound work.
type Task interface {
	// Step performs one unit of work. done=true means the task has
	// finished (its input channel closed and drained) and should not be
	// rescheduled.
	Step(ctx context.Context) (done bool, err error)
}

// Scheduler runs a set of Tasks under one of the two concurrency
// profiles described in spec.md §4.1 (pkg/pipeline/pool,
// pkg/pipeline/pinned). Both expose this same interface so a Controller
// can be built against either without caring which is active.
type Scheduler interface {
	// Schedule registers t to run; name is used only for logging/metrics.
	Schedule(ctx context.Context, name string, t Task)
	// Wait blocks until every scheduled task has reported done, or ctx
	// passed to Schedule calls is cancelled.
	Wait()
}
