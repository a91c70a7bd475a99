package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"time"

	"queuesync/internal/errors"
	"queuesync/internal/migrations"
	"queuesync/internal/models"
	"queuesync/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the SQLite-backed queue store.
type Database struct {
	db    *sql.DB
	retry retryPolicy
}

// New opens (creating if needed) the database file, switches it to WAL
// mode and applies pending migrations.
func New(ctx context.Context, cfg models.DatabaseConfig, retryCfg models.RetryConfig) (*Database, error) {
	if err := security.ValidateFilePath(cfg.Path); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, closeWith(db, fmt.Errorf("failed to ping database: %w", err))
	}

	if _, err := migrations.Apply(ctx, db); err != nil {
		return nil, closeWith(db, errors.Wrap(err, errors.ErrCodeDatabaseMigration, "failed to initialize schema"))
	}

	return &Database{db: db, retry: newRetryPolicy(retryCfg)}, nil
}

func dsn(cfg models.DatabaseConfig) string {
	busy := cfg.BusyTimeoutMs
	if busy <= 0 {
		busy = 5000
	}
	q := url.Values{}
	q.Set("_busy_timeout", strconv.Itoa(busy))
	q.Set("_journal_mode", "WAL")
	q.Set("_txlock", "immediate")
	return "file:" + cfg.Path + "?" + q.Encode()
}

func closeWith(db *sql.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%w (close error: %v)", err, closeErr)
	}
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// HealthCheck pings the underlying connection.
func (d *Database) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueEntry(row rowScanner) (*models.QueueEntry, error) {
	var (
		entry       models.QueueEntry
		actual      sql.NullInt64
		completedAt sql.NullTime
	)
	if err := row.Scan(&entry.ID, &entry.ServiceType, &entry.EstimatedDurationMinutes,
		&actual, &entry.Completed, &entry.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	if actual.Valid {
		v := int(actual.Int64)
		entry.ActualDurationMinutes = &v
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		entry.CompletedAt = &t
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}

// InsertQueueEntry persists a new incomplete entry and fills in its ID.
func (d *Database) InsertQueueEntry(ctx context.Context, entry *models.QueueEntry) error {
	entry.CreatedAt = storeTime(entry.CreatedAt)
	entry.Completed = false

	id, err := retryable(ctx, d.retry, func() (int64, error) {
		res, err := d.db.ExecContext(ctx, InsertQueueEntryQuery,
			entry.ServiceType, entry.EstimatedDurationMinutes, entry.CreatedAt)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	})
	if err != nil {
		return errors.NewDatabaseError("insert queue entry", err)
	}
	entry.ID = id
	return nil
}

// GetQueueEntry returns nil, nil when no entry has the given id.
func (d *Database) GetQueueEntry(ctx context.Context, id int64) (*models.QueueEntry, error) {
	entry, err := scanQueueEntry(d.db.QueryRowContext(ctx, SelectQueueEntryQuery, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get queue entry", err)
	}
	return entry, nil
}

// CompleteQueueEntry marks an incomplete entry completed. It returns a
// NOT_FOUND error for unknown ids and ALREADY_COMPLETED when the entry was
// completed before, including by a concurrent caller that won the race.
func (d *Database) CompleteQueueEntry(ctx context.Context, id int64, actualDurationMinutes int, completedAt time.Time) error {
	affected, err := retryable(ctx, d.retry, func() (int64, error) {
		res, err := d.db.ExecContext(ctx, CompleteQueueEntryQuery, actualDurationMinutes, storeTime(completedAt), id)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return errors.NewDatabaseError("complete queue entry", err)
	}
	if affected == 1 {
		return nil
	}

	var completed bool
	err = d.db.QueryRowContext(ctx, SelectQueueEntryCompletedQuery, id).Scan(&completed)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError("queue entry", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return errors.NewDatabaseError("check queue entry", err)
	}
	return errors.NewAlreadyCompletedError(id)
}

// CountWaiting counts incomplete entries. The count is never cached.
func (d *Database) CountWaiting(ctx context.Context) (int, error) {
	count, err := retryable(ctx, d.retry, func() (int, error) {
		var n int
		err := d.db.QueryRowContext(ctx, CountWaitingQuery).Scan(&n)
		return n, err
	})
	if err != nil {
		return 0, errors.NewDatabaseError("count waiting", err)
	}
	return count, nil
}

// ListWaiting returns incomplete entries oldest first.
func (d *Database) ListWaiting(ctx context.Context) ([]*models.QueueEntry, error) {
	rows, err := d.db.QueryContext(ctx, SelectWaitingQuery)
	if err != nil {
		return nil, errors.NewDatabaseError("list waiting", err)
	}
	defer rows.Close()

	entries := make([]*models.QueueEntry, 0)
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan queue entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list waiting", err)
	}
	return entries, nil
}

// OldestWaiting returns nil, nil when nobody is waiting.
func (d *Database) OldestWaiting(ctx context.Context) (*models.QueueEntry, error) {
	entry, err := scanQueueEntry(d.db.QueryRowContext(ctx, SelectOldestWaitingQuery))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewDatabaseError("oldest waiting", err)
	}
	return entry, nil
}

// AverageActualDuration averages the actual duration of entries completed
// in [from, to). It returns the number of entries averaged as well.
func (d *Database) AverageActualDuration(ctx context.Context, from, to time.Time) (float64, int, error) {
	var (
		avg   float64
		count int
	)
	err := d.db.QueryRowContext(ctx, AverageActualDurationQuery, storeTime(from), storeTime(to)).Scan(&avg, &count)
	if err != nil {
		return 0, 0, errors.NewDatabaseError("average duration", err)
	}
	return avg, count, nil
}

// UpsertQueueAnalytics writes the sample for (Day, Hour), replacing any
// earlier sample for the same hour.
func (d *Database) UpsertQueueAnalytics(ctx context.Context, a *models.QueueAnalytics) error {
	a.CreatedAt = storeTime(a.CreatedAt)
	err := retryableNoReturn(ctx, d.retry, func() error {
		_, err := d.db.ExecContext(ctx, UpsertQueueAnalyticsQuery,
			a.Day, a.Hour, a.DayOfWeek, a.QueueLength, a.AverageWaitMinutes, a.CreatedAt)
		return err
	})
	if err != nil {
		return errors.NewDatabaseError("upsert analytics", err)
	}
	return nil
}

// ListQueueAnalytics returns a day's samples ordered by hour. day is
// formatted as 2006-01-02.
func (d *Database) ListQueueAnalytics(ctx context.Context, day string) ([]*models.QueueAnalytics, error) {
	rows, err := d.db.QueryContext(ctx, SelectQueueAnalyticsByDayQuery, day)
	if err != nil {
		return nil, errors.NewDatabaseError("list analytics", err)
	}
	defer rows.Close()

	samples := make([]*models.QueueAnalytics, 0)
	for rows.Next() {
		var a models.QueueAnalytics
		if err := rows.Scan(&a.ID, &a.Day, &a.Hour, &a.DayOfWeek, &a.QueueLength, &a.AverageWaitMinutes, &a.CreatedAt); err != nil {
			return nil, errors.NewDatabaseError("scan analytics", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		samples = append(samples, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list analytics", err)
	}
	return samples, nil
}

// InsertChatMessage appends a chat message and fills in its ID.
func (d *Database) InsertChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	msg.Timestamp = storeTime(msg.Timestamp)
	id, err := retryable(ctx, d.retry, func() (int64, error) {
		res, err := d.db.ExecContext(ctx, InsertChatMessageQuery,
			msg.UserID, msg.Body, msg.IsFromUser(), msg.Timestamp)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	})
	if err != nil {
		return errors.NewDatabaseError("insert chat message", err)
	}
	msg.ID = id
	return nil
}

// ListChatMessages returns up to limit of the user's most recent messages,
// oldest first. Ties on timestamp are broken by id.
func (d *Database) ListChatMessages(ctx context.Context, userID string, limit int) ([]*models.ChatMessage, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := d.db.QueryContext(ctx, SelectChatMessagesQuery, userID, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("list chat messages", err)
	}
	defer rows.Close()

	messages := make([]*models.ChatMessage, 0)
	for rows.Next() {
		var (
			msg        models.ChatMessage
			isFromUser bool
		)
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Body, &isFromUser, &msg.Timestamp); err != nil {
			return nil, errors.NewDatabaseError("scan chat message", err)
		}
		msg.Direction = models.ChatFromSystem
		if isFromUser {
			msg.Direction = models.ChatFromUser
		}
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list chat messages", err)
	}
	slices.Reverse(messages)
	return messages, nil
}
