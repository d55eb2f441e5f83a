// -----------------------------------------------------------------------
// Storage Interfaces - Task store and artifact store contracts
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/tabula/internal/models"
)

// TaskListOptions filters and pages task list queries
type TaskListOptions struct {
	Status string
	Limit  int
	Offset int
}

// TaskStorage - interface for durable task lifecycle persistence.
// The claim operation is the single serialization point of the system:
// it must be atomic so at most one dispatcher ever owns a given task.
type TaskStorage interface {
	// Creation and reads
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	ListTasks(ctx context.Context, opts *TaskListOptions) ([]*models.Task, error)
	GetStats(ctx context.Context) (*models.TaskStats, error)

	// ClaimNextPending atomically claims the oldest pending task for the
	// given worker. Returns nil with no error when nothing is claimable.
	ClaimNextPending(ctx context.Context, workerID string, lease time.Duration) (*models.Task, error)

	// UpdateTask persists lifecycle mutations. Rejects updates to tasks
	// already in a terminal state.
	UpdateTask(ctx context.Context, task *models.Task) error

	// FailExpiredLeases fails every claimed or running task whose lease
	// has passed, returning the IDs it transitioned. Run by the reaper.
	FailExpiredLeases(ctx context.Context) ([]string, error)

	Close() error
}

// ArtifactStore - interface for durable report artifact persistence.
// Artifacts are keyed deterministically by task ID so readers can derive
// the location without coordinating with the dispatcher.
type ArtifactStore interface {
	// Write durably persists the artifact for the task and returns its path
	Write(taskID string, data []byte) (string, error)

	// Path returns the deterministic artifact path for a task ID
	Path(taskID string) string

	// Exists reports whether the artifact for the task is present
	Exists(taskID string) bool

	// Read returns the artifact bytes for the task
	Read(taskID string) ([]byte, error)
}
