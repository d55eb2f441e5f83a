package models

import (
	"testing"
	"time"
)

func TestNewTask(t *testing.T) {
	selection := []string{"202507", "202508"}
	task := NewTask("task_abc", selection)

	if task.Status != TaskStatusPending {
		t.Errorf("expected pending, got %s", task.Status)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	// Caller mutations must not leak into the task
	selection[0] = "mutated"
	if task.RequestedSelection[0] != "202507" {
		t.Error("requested selection should be copied, not aliased")
	}
}

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    *Task
		wantErr bool
	}{
		{"valid", NewTask("task_1", []string{"202508"}), false},
		{"missing id", NewTask("", []string{"202508"}), true},
		{"empty selection", NewTask("task_2", nil), true},
		{"blank selection value", NewTask("task_3", []string{"202508", ""}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	task := NewTask("task_4", []string{"202508"})
	task.Status = TaskStatus("bogus")
	if err := task.Validate(); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestTaskLifecycle(t *testing.T) {
	task := NewTask("task_life", []string{"202508"})

	task.MarkClaimed("worker-3", time.Minute)
	if task.Status != TaskStatusClaimed || task.WorkerID != "worker-3" {
		t.Errorf("unexpected claim state: %s %s", task.Status, task.WorkerID)
	}
	if task.LeaseExpiresAt == nil || task.ClaimedAt == nil {
		t.Fatal("expected claim timestamps to be set")
	}
	if task.IsTerminal() {
		t.Error("claimed task must not be terminal")
	}

	task.MarkStarted()
	if task.Status != TaskStatusRunning || task.StartedAt == nil {
		t.Errorf("unexpected running state: %s", task.Status)
	}

	task.MarkCompleted("/data/artifacts/task_life.csv")
	if !task.IsTerminal() {
		t.Error("completed task must be terminal")
	}
	if task.ArtifactPath == "" || task.CompletedAt == nil {
		t.Error("expected artifact path and completion time")
	}
	if task.LeaseExpiresAt != nil {
		t.Error("lease must be cleared on completion")
	}
}

// A completed task carries an artifact and no error; a failed task carries an
// error and no artifact. The two never mix.
func TestTerminalStatesAreExclusive(t *testing.T) {
	completed := NewTask("task_done", []string{"202508"})
	completed.MarkFailed(ErrorKindTransport, "first attempt died")
	completed.Status = TaskStatusRunning
	completed.MarkCompleted("/data/artifacts/task_done.csv")
	if completed.ErrorKind != "" || completed.ErrorDetail != "" {
		t.Error("completion must clear error fields")
	}

	failed := NewTask("task_dead", []string{"202508"})
	failed.ArtifactPath = "/stale/path.csv"
	failed.MarkFailed(ErrorKindValidation, "server re-rendered the form")
	if failed.ArtifactPath != "" {
		t.Error("failure must clear the artifact path")
	}
	if failed.ErrorKind != ErrorKindValidation {
		t.Errorf("unexpected error kind: %s", failed.ErrorKind)
	}
}

func TestLeaseExpired(t *testing.T) {
	task := NewTask("task_lease", []string{"202508"})
	now := time.Now()

	if task.LeaseExpired(now) {
		t.Error("pending task has no lease to expire")
	}

	task.MarkClaimed("worker-1", time.Hour)
	if task.LeaseExpired(now) {
		t.Error("fresh lease should not be expired")
	}
	if !task.LeaseExpired(now.Add(2 * time.Hour)) {
		t.Error("lease past its expiry should be expired")
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	terminal := map[TaskStatus]bool{
		TaskStatusPending:   false,
		TaskStatusClaimed:   false,
		TaskStatusRunning:   false,
		TaskStatusCompleted: true,
		TaskStatusFailed:    true,
	}
	for status, want := range terminal {
		if status.IsTerminal() != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, status.IsTerminal(), want)
		}
	}
}

func TestTaskJSONRoundTrip(t *testing.T) {
	task := NewTask("task_json", []string{"202507", "202508"})
	task.MarkFailed(ErrorKindNoOptions, "server declared zero valid periods")

	data, err := task.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	got, err := TaskFromJSON(data)
	if err != nil {
		t.Fatalf("TaskFromJSON failed: %v", err)
	}
	if got.ID != task.ID || got.Status != task.Status || got.ErrorKind != task.ErrorKind {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
