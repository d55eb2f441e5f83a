// -----------------------------------------------------------------------
// Extraction Task - Durable task record and lifecycle state machine
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of an extraction task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // Created, waiting for a dispatcher to claim it
	TaskStatusClaimed   TaskStatus = "claimed"   // Owned by a dispatcher, pipeline not yet started
	TaskStatusRunning   TaskStatus = "running"   // Pipeline executing
	TaskStatusCompleted TaskStatus = "completed" // Terminal: artifact durably written
	TaskStatusFailed    TaskStatus = "failed"    // Terminal: error recorded in ErrorKind/ErrorDetail
)

// IsValid returns true if the status is a known lifecycle state
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusClaimed, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for completed and failed states.
// Terminal tasks are never mutated again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Error kinds recorded on failed tasks. Stable strings, shown to API callers.
const (
	ErrorKindProtocol       = "protocol_error"     // Expected page structure not found
	ErrorKindNoOptions      = "no_options"         // Server declared zero valid options
	ErrorKindEmptySelection = "empty_selection"    // Requested selection has no overlap with available options
	ErrorKindValidation     = "validation_failure" // Server rejected the submitted payload
	ErrorKindTransport      = "transport_error"    // Network or server fault, potentially transient
	ErrorKindStorage        = "storage_error"      // Artifact write or task store update failed
	ErrorKindTimeout        = "timeout"            // Pipeline exceeded its wall-clock budget
	ErrorKindCrash          = "crash"              // Execution unit died unexpectedly
)

// Task represents one extraction request and its lifecycle.
//
// Task State Lifecycle:
//  1. Created by the API facade with status pending
//  2. Claimed atomically by exactly one dispatcher worker (pending -> claimed)
//  3. Marked running when the scrape pipeline actually starts
//  4. Terminal: completed (artifact written) or failed (error recorded)
//
// The task record is the only persisted state in the system. Session tokens
// and option lists are ephemeral and re-fetched on every attempt.
type Task struct {
	// Core identification
	ID string `json:"id" badgerhold:"key"` // Unique task ID (task_<uuid>)

	// Request (immutable snapshot at creation time)
	RequestedSelection []string `json:"requested_selection"` // Selection values supplied by the caller, in caller order

	// Lifecycle state
	Status      TaskStatus `json:"status"`
	ErrorKind   string     `json:"error_kind,omitempty"`   // Taxonomy kind, set only when failed
	ErrorDetail string     `json:"error_detail,omitempty"` // Human-readable detail, set only when failed

	// Artifact reference, set only when completed. The artifact for task T
	// lives at a key derived from T's ID, so readers never coordinate with
	// the dispatcher to serve downloads.
	ArtifactPath string `json:"artifact_path,omitempty"`

	// Ownership tracking
	WorkerID string `json:"worker_id,omitempty"` // Dispatcher worker that claimed the task

	// Timestamps
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Lease expiry for the claim. A claimed or running task whose lease has
	// passed is presumed orphaned by a dead dispatcher and may be failed by
	// the reaper.
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

// NewTask creates a new pending task for the given selection
func NewTask(id string, requestedSelection []string) *Task {
	now := time.Now()
	selection := make([]string, len(requestedSelection))
	copy(selection, requestedSelection)
	return &Task{
		ID:                 id,
		RequestedSelection: selection,
		Status:             TaskStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Validate validates the task record
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if len(t.RequestedSelection) == 0 {
		return fmt.Errorf("requested selection cannot be empty")
	}
	for i, v := range t.RequestedSelection {
		if v == "" {
			return fmt.Errorf("requested selection value %d is empty", i)
		}
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid task status: %s", t.Status)
	}
	return nil
}

// IsTerminal returns true if the task is in a terminal state
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// MarkClaimed records dispatcher ownership and the lease window.
// The caller must have already established the claim atomically.
func (t *Task) MarkClaimed(workerID string, leaseDuration time.Duration) {
	now := time.Now()
	expiry := now.Add(leaseDuration)
	t.Status = TaskStatusClaimed
	t.WorkerID = workerID
	t.ClaimedAt = &now
	t.LeaseExpiresAt = &expiry
	t.UpdatedAt = now
}

// MarkStarted records that pipeline execution has begun
func (t *Task) MarkStarted() {
	now := time.Now()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
	t.UpdatedAt = now
}

// MarkCompleted records terminal success. The artifact must already be
// durably written at artifactPath before this is persisted.
func (t *Task) MarkCompleted(artifactPath string) {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.ArtifactPath = artifactPath
	t.ErrorKind = ""
	t.ErrorDetail = ""
	t.CompletedAt = &now
	t.LeaseExpiresAt = nil
	t.UpdatedAt = now
}

// MarkFailed records terminal failure with the error taxonomy kind and detail
func (t *Task) MarkFailed(kind, detail string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.ErrorKind = kind
	t.ErrorDetail = detail
	t.ArtifactPath = ""
	t.CompletedAt = &now
	t.LeaseExpiresAt = nil
	t.UpdatedAt = now
}

// LeaseExpired returns true if the task holds a lease that has passed
func (t *Task) LeaseExpired(now time.Time) bool {
	return t.LeaseExpiresAt != nil && now.After(*t.LeaseExpiresAt)
}

// ToJSON serializes the task for API responses
func (t *Task) ToJSON() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return data, nil
}

// TaskFromJSON deserializes a task from JSON
func TaskFromJSON(data []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// TaskStats summarizes task counts by status
type TaskStats struct {
	Pending   int `json:"pending"`
	Claimed   int `json:"claimed"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}
