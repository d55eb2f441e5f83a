package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/tabula/internal/interfaces"
	"github.com/ternarybob/tabula/internal/models"
)

// ErrTaskNotFound is returned when a task ID does not exist
var ErrTaskNotFound = errors.New("task not found")

// ErrTerminalTask is returned on attempts to mutate a completed or failed task
var ErrTerminalTask = errors.New("task is in a terminal state")

// TaskStorage implements the TaskStorage interface for Badger
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TaskStorage) CreateTask(ctx context.Context, task *models.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	if task.Status != models.TaskStatusPending {
		return fmt.Errorf("new tasks must be pending, got %s", task.Status)
	}

	if err := s.db.Store().Insert(task.ID, task); err != nil {
		if err == badgerhold.ErrKeyExists {
			return fmt.Errorf("task %s already exists", task.ID)
		}
		return fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Debug().Str("task_id", task.ID).Msg("Task created")
	return nil
}

func (s *TaskStorage) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	if err := s.db.Store().Get(taskID, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

func (s *TaskStorage) ListTasks(ctx context.Context, opts *interfaces.TaskListOptions) ([]*models.Task, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(models.TaskStatus(opts.Status))
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var tasks []models.Task
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	result := make([]*models.Task, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

func (s *TaskStorage) GetStats(ctx context.Context) (*models.TaskStats, error) {
	var tasks []models.Task
	if err := s.db.Store().Find(&tasks, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to load tasks for stats: %w", err)
	}

	stats := &models.TaskStats{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusPending:
			stats.Pending++
		case models.TaskStatusClaimed:
			stats.Claimed++
		case models.TaskStatusRunning:
			stats.Running++
		case models.TaskStatusCompleted:
			stats.Completed++
		case models.TaskStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// ClaimNextPending claims the oldest pending task inside one serializable
// Badger transaction. The read of the pending set and the status write
// commit together, so when two dispatchers race, one commit wins and the
// loser sees a conflict. A conflict means "nothing claimed", not an error.
func (s *TaskStorage) ClaimNextPending(ctx context.Context, workerID string, lease time.Duration) (*models.Task, error) {
	var claimed *models.Task

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var candidates []models.Task
		query := badgerhold.Where("Status").Eq(models.TaskStatusPending).SortBy("CreatedAt").Limit(1)
		if err := s.db.Store().TxFind(txn, &candidates, query); err != nil {
			return fmt.Errorf("failed to query pending tasks: %w", err)
		}
		if len(candidates) == 0 {
			return nil
		}

		task := candidates[0]
		task.MarkClaimed(workerID, lease)
		if err := s.db.Store().TxUpdate(txn, task.ID, &task); err != nil {
			return fmt.Errorf("failed to claim task %s: %w", task.ID, err)
		}
		claimed = &task
		return nil
	})

	if err != nil {
		if errors.Is(err, badgerdb.ErrConflict) {
			// Another dispatcher won the race this cycle.
			return nil, nil
		}
		return nil, err
	}

	if claimed != nil {
		s.logger.Debug().
			Str("task_id", claimed.ID).
			Str("worker_id", workerID).
			Msg("Task claimed")
	}
	return claimed, nil
}

// UpdateTask persists a lifecycle mutation. Terminal tasks are immutable;
// an update against one is rejected so a slow pipeline can never overwrite
// a state the reaper already settled.
func (s *TaskStorage) UpdateTask(ctx context.Context, task *models.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var existing models.Task
		if err := s.db.Store().TxGet(txn, task.ID, &existing); err != nil {
			if err == badgerhold.ErrNotFound {
				return ErrTaskNotFound
			}
			return fmt.Errorf("failed to load task: %w", err)
		}
		if existing.IsTerminal() {
			return ErrTerminalTask
		}
		if err := s.db.Store().TxUpdate(txn, task.ID, task); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("task_id", task.ID).
		Str("status", string(task.Status)).
		Msg("Task updated")
	return nil
}

// FailExpiredLeases transitions claimed or running tasks with expired
// leases to failed. A task only ends up here when its dispatcher died
// without settling it.
func (s *TaskStorage) FailExpiredLeases(ctx context.Context) ([]string, error) {
	now := time.Now()
	var expired []models.Task

	query := badgerhold.Where("Status").Eq(models.TaskStatusClaimed).
		Or(badgerhold.Where("Status").Eq(models.TaskStatusRunning))
	if err := s.db.Store().Find(&expired, query); err != nil {
		return nil, fmt.Errorf("failed to query leased tasks: %w", err)
	}

	var reaped []string
	for i := range expired {
		task := expired[i]
		if !task.LeaseExpired(now) {
			continue
		}

		task.MarkFailed(models.ErrorKindCrash, "task lease expired; dispatcher presumed dead")
		if err := s.UpdateTask(ctx, &task); err != nil {
			if errors.Is(err, ErrTerminalTask) {
				continue // settled by its owner between query and update
			}
			return reaped, err
		}

		s.logger.Warn().
			Str("task_id", task.ID).
			Str("worker_id", task.WorkerID).
			Msg("Failed task with expired lease")
		reaped = append(reaped, task.ID)
	}
	return reaped, nil
}

func (s *TaskStorage) Close() error {
	return s.db.Close()
}
