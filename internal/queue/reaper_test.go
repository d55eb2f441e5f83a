package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tabula/internal/common"
	"github.com/ternarybob/tabula/internal/models"
	badgerstore "github.com/ternarybob/tabula/internal/storage/badger"
)

func TestReaperFailsExpiredLeases(t *testing.T) {
	logger := arbor.NewLogger()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	storage := badgerstore.NewTaskStorage(db, logger)
	ctx := context.Background()

	orphan := models.NewTask("task_orphan", []string{"202508"})
	require.NoError(t, storage.CreateTask(ctx, orphan))
	orphan.MarkClaimed("dead-worker", -time.Second)
	require.NoError(t, storage.UpdateTask(ctx, orphan))

	healthy := models.NewTask("task_healthy", []string{"202508"})
	require.NoError(t, storage.CreateTask(ctx, healthy))
	healthy.MarkClaimed("live-worker", time.Hour)
	require.NoError(t, storage.UpdateTask(ctx, healthy))

	reaper := NewReaper(storage, logger)
	reaper.RunNow()

	got := waitForTerminal(t, storage, orphan.ID, 3*time.Second)
	assert.Equal(t, models.TaskStatusFailed, got.Status)
	assert.Equal(t, models.ErrorKindCrash, got.ErrorKind)

	untouched, err := storage.GetTask(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusClaimed, untouched.Status)
}
