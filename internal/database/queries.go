package database

// Queue entry queries
const (
	InsertQueueEntryQuery = `
		INSERT INTO queue_entries (service_type, estimated_duration, completed, created_at)
		VALUES (?, ?, 0, ?)
	`

	SelectQueueEntryQuery = `
		SELECT id, service_type, estimated_duration, actual_duration, completed, created_at, completed_at
		FROM queue_entries
		WHERE id = ?
	`

	// The completed = 0 guard makes completion a compare-and-set: of two
	// concurrent completions exactly one sees RowsAffected == 1.
	CompleteQueueEntryQuery = `
		UPDATE queue_entries
		SET completed = 1, actual_duration = ?, completed_at = ?
		WHERE id = ? AND completed = 0
	`

	SelectQueueEntryCompletedQuery = `SELECT completed FROM queue_entries WHERE id = ?`

	CountWaitingQuery = `SELECT COUNT(*) FROM queue_entries WHERE completed = 0`

	SelectWaitingQuery = `
		SELECT id, service_type, estimated_duration, actual_duration, completed, created_at, completed_at
		FROM queue_entries
		WHERE completed = 0
		ORDER BY created_at ASC, id ASC
	`

	SelectOldestWaitingQuery = `
		SELECT id, service_type, estimated_duration, actual_duration, completed, created_at, completed_at
		FROM queue_entries
		WHERE completed = 0
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	AverageActualDurationQuery = `
		SELECT COALESCE(AVG(actual_duration), 0), COUNT(*)
		FROM queue_entries
		WHERE completed = 1 AND actual_duration IS NOT NULL
		  AND completed_at >= ? AND completed_at < ?
	`
)

// Analytics queries
const (
	UpsertQueueAnalyticsQuery = `
		INSERT INTO queue_analytics (day, hour, day_of_week, queue_length, average_wait_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(day, hour) DO UPDATE SET
			queue_length = excluded.queue_length,
			average_wait_time = excluded.average_wait_time,
			created_at = excluded.created_at
	`

	SelectQueueAnalyticsByDayQuery = `
		SELECT id, day, hour, day_of_week, queue_length, average_wait_time, created_at
		FROM queue_analytics
		WHERE day = ?
		ORDER BY hour ASC
	`
)

// Chat queries
const (
	InsertChatMessageQuery = `
		INSERT INTO chat_messages (user_id, message, is_from_user, timestamp)
		VALUES (?, ?, ?, ?)
	`

	// Newest first; callers reverse for display order.
	SelectChatMessagesQuery = `
		SELECT id, user_id, message, is_from_user, timestamp
		FROM chat_messages
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`
)
