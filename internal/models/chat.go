package models

import "time"

type ChatDirection string

const (
	ChatFromUser   ChatDirection = "from_user"
	ChatFromSystem ChatDirection = "from_system"
)

func (d ChatDirection) Valid() bool {
	return d == ChatFromUser || d == ChatFromSystem
}

// ChatMessage is append-only; history is ordered by Timestamp, then ID.
type ChatMessage struct {
	ID        int64         `json:"id" db:"id"`
	UserID    string        `json:"userId" db:"user_id"`
	Body      string        `json:"message" db:"message"`
	Direction ChatDirection `json:"direction"` // stored as is_from_user
	Timestamp time.Time     `json:"timestamp" db:"timestamp"`
}

// IsFromUser mirrors the wire flag used by ai_chat frames.
func (m *ChatMessage) IsFromUser() bool {
	return m.Direction == ChatFromUser
}
