package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"queuesync/internal/errors"
	"queuesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	cfg := models.DatabaseConfig{Path: filepath.Join(t.TempDir(), "queue.db"), BusyTimeoutMs: 5000}
	db, err := New(context.Background(), cfg, models.RetryConfig{InitialBackoffMs: 5, MaxBackoffMs: 20, MaxAttempts: 3})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertEntry(t *testing.T, db *Database, serviceType string, createdAt time.Time) *models.QueueEntry {
	t.Helper()
	entry := &models.QueueEntry{ServiceType: serviceType, EstimatedDurationMinutes: 30, CreatedAt: createdAt}
	require.NoError(t, db.InsertQueueEntry(context.Background(), entry))
	return entry
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New(context.Background(), models.DatabaseConfig{Path: "../escape.db"}, models.RetryConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid database path")
}

func TestNew_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()

	db, err := New(ctx, models.DatabaseConfig{Path: path}, models.RetryConfig{})
	require.NoError(t, err)
	insertEntry(t, db, "haircut", time.Now())
	require.NoError(t, db.Close())

	db, err = New(ctx, models.DatabaseConfig{Path: path}, models.RetryConfig{})
	require.NoError(t, err)
	defer db.Close()

	count, err := db.CountWaiting(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInsertAndGetQueueEntry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	created := time.Date(2026, 10, 17, 12, 30, 15, 999, time.FixedZone("CEST", 2*3600))

	entry := insertEntry(t, db, "beard trim", created)
	assert.NotZero(t, entry.ID)

	got, err := db.GetQueueEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "beard trim", got.ServiceType)
	assert.Equal(t, 30, got.EstimatedDurationMinutes)
	assert.False(t, got.Completed)
	assert.Nil(t, got.ActualDurationMinutes)
	assert.Nil(t, got.CompletedAt)
	assert.True(t, got.CreatedAt.Equal(created.Truncate(time.Second)))
	assert.Equal(t, time.UTC, got.CreatedAt.Location())

	missing, err := db.GetQueueEntry(ctx, 9999)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCompleteQueueEntry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	entry := insertEntry(t, db, "haircut", time.Now())

	require.NoError(t, db.CompleteQueueEntry(ctx, entry.ID, 25, time.Now()))

	got, err := db.GetQueueEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	require.NotNil(t, got.ActualDurationMinutes)
	assert.Equal(t, 25, *got.ActualDurationMinutes)
	assert.NotNil(t, got.CompletedAt)

	err = db.CompleteQueueEntry(ctx, entry.ID, 40, time.Now())
	assert.True(t, errors.IsAlreadyCompleted(err))

	got, err = db.GetQueueEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, *got.ActualDurationMinutes, "actual duration is written at most once")

	err = db.CompleteQueueEntry(ctx, 4242, 10, time.Now())
	assert.True(t, errors.IsNotFound(err))
}

func TestCompleteQueueEntry_ConcurrentExactlyOneWins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	entry := insertEntry(t, db, "haircut", time.Now())

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		already int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(minutes int) {
			defer wg.Done()
			err := db.CompleteQueueEntry(ctx, entry.ID, minutes, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.IsAlreadyCompleted(err):
				already++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(10 + i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, already)

	count, err := db.CountWaiting(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCountWaitingMatchesIncompleteEntries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, insertEntry(t, db, "haircut", now.Add(time.Duration(i)*time.Minute)).ID)
	}
	require.NoError(t, db.CompleteQueueEntry(ctx, ids[1], 10, now))
	require.NoError(t, db.CompleteQueueEntry(ctx, ids[3], 10, now))

	count, err := db.CountWaiting(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	waiting, err := db.ListWaiting(ctx)
	require.NoError(t, err)
	require.Len(t, waiting, 3)
	assert.Equal(t, []int64{ids[0], ids[2], ids[4]}, []int64{waiting[0].ID, waiting[1].ID, waiting[2].ID})

	oldest, err := db.OldestWaiting(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[0], oldest.ID)
}

func TestOldestWaiting_Empty(t *testing.T) {
	db := setupTestDB(t)

	oldest, err := db.OldestWaiting(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, oldest)
}

func TestAverageActualDuration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	hour := time.Date(2026, 10, 17, 14, 0, 0, 0, time.UTC)

	a := insertEntry(t, db, "haircut", hour.Add(-time.Hour))
	b := insertEntry(t, db, "haircut", hour.Add(-time.Hour))
	c := insertEntry(t, db, "haircut", hour.Add(-time.Hour))
	require.NoError(t, db.CompleteQueueEntry(ctx, a.ID, 20, hour.Add(5*time.Minute)))
	require.NoError(t, db.CompleteQueueEntry(ctx, b.ID, 40, hour.Add(50*time.Minute)))
	require.NoError(t, db.CompleteQueueEntry(ctx, c.ID, 90, hour.Add(70*time.Minute)))

	avg, n, err := db.AverageActualDuration(ctx, hour, hour.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 30.0, avg, 0.001)

	avg, n, err = db.AverageActualDuration(ctx, hour.Add(-24*time.Hour), hour.Add(-23*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Zero(t, avg)
}

func TestQueueAnalyticsUpsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, db.UpsertQueueAnalytics(ctx, &models.QueueAnalytics{Day: "2026-10-17", Hour: 11, DayOfWeek: 6, QueueLength: 2, CreatedAt: now}))
	require.NoError(t, db.UpsertQueueAnalytics(ctx, &models.QueueAnalytics{Day: "2026-10-17", Hour: 10, DayOfWeek: 6, QueueLength: 1, CreatedAt: now}))
	require.NoError(t, db.UpsertQueueAnalytics(ctx, &models.QueueAnalytics{Day: "2026-10-17", Hour: 11, DayOfWeek: 6, QueueLength: 5, AverageWaitMinutes: 18, CreatedAt: now}))
	require.NoError(t, db.UpsertQueueAnalytics(ctx, &models.QueueAnalytics{Day: "2026-10-18", Hour: 11, DayOfWeek: 0, QueueLength: 9, CreatedAt: now}))

	samples, err := db.ListQueueAnalytics(ctx, "2026-10-17")
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 10, samples[0].Hour)
	assert.Equal(t, 11, samples[1].Hour)
	assert.Equal(t, 5, samples[1].QueueLength)
	assert.Equal(t, 18, samples[1].AverageWaitMinutes)

	empty, err := db.ListQueueAnalytics(ctx, "2020-01-01")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestChatMessagesOrderedByTimestampThenID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	add := func(user, body string, dir models.ChatDirection, at time.Time) *models.ChatMessage {
		msg := &models.ChatMessage{UserID: user, Body: body, Direction: dir, Timestamp: at}
		require.NoError(t, db.InsertChatMessage(ctx, msg))
		return msg
	}

	add("admin", "third", models.ChatFromSystem, t0.Add(time.Minute))
	add("admin", "first", models.ChatFromUser, t0)
	add("admin", "second", models.ChatFromSystem, t0)
	add("someone-else", "hidden", models.ChatFromUser, t0)

	history, err := db.ListChatMessages(ctx, "admin", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Body)
	assert.Equal(t, "second", history[1].Body)
	assert.Equal(t, "third", history[2].Body)
	assert.True(t, history[0].IsFromUser())
	assert.Equal(t, models.ChatFromSystem, history[1].Direction)

	latest, err := db.ListChatMessages(ctx, "admin", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "second", latest[0].Body)
	assert.Equal(t, "third", latest[1].Body)
}

func TestHealthCheck(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.HealthCheck(context.Background()))
}
