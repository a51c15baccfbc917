// Package dispatch models the fire-and-forget hand-off between the message
// append path and the background pipeline. Callers enqueue a task and move
// on; execution, ordering and retries are the worker pool's concern.
package dispatch

import "context"

// Task kinds routed by the pipeline worker pool.
const (
	KindSafetyCheck      = "safety_check"
	KindChunkSummary     = "chunk_summary"
	KindSuperSummary     = "super_summary"
	KindProfileSynthesis = "profile_synthesis"
	KindStageProgress    = "stage_progress"
)

// Task is one background pipeline job for one user.
type Task struct {
	Kind   string `json:"kind"`
	UserID string `json:"user_id"`
}

type Dispatcher interface {
	// Dispatch enqueues t. Errors mean the task was not enqueued; callers
	// on the hot path log and continue.
	Dispatch(ctx context.Context, t Task) error
}
