package models

import "time"

// QueueEntry is one walk-in customer. Completed only ever moves false to
// true, and ActualDurationMinutes is written at most once, together with it.
type QueueEntry struct {
	ID                       int64      `json:"id" db:"id"`
	ServiceType              string     `json:"serviceType" db:"service_type"`
	EstimatedDurationMinutes int        `json:"estimatedDurationMinutes" db:"estimated_duration"`
	ActualDurationMinutes    *int       `json:"actualDurationMinutes,omitempty" db:"actual_duration"`
	Completed                bool       `json:"completed" db:"completed"`
	CreatedAt                time.Time  `json:"createdAt" db:"created_at"`
	CompletedAt              *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}

// BusinessStatus is the opening state reported alongside every snapshot.
type BusinessStatus struct {
	IsOpen       bool   `json:"isOpen"`
	Message      string `json:"message"`
	NextOpenTime string `json:"nextOpenTime,omitempty"`
}

// QueueSnapshot is derived from the stored entries on demand and never persisted.
type QueueSnapshot struct {
	Count          int            `json:"count"`
	EstimatedWait  string         `json:"estimatedWait"`
	BusinessStatus BusinessStatus `json:"businessStatus"`
	LastUpdate     time.Time      `json:"lastUpdate"`
}

// QueueAnalytics is an hourly sample of queue length and observed service time.
type QueueAnalytics struct {
	ID                 int64     `json:"id" db:"id"`
	Day                string    `json:"day" db:"day"`
	Hour               int       `json:"hour" db:"hour"`
	DayOfWeek          int       `json:"dayOfWeek" db:"day_of_week"`
	QueueLength        int       `json:"queueLength" db:"queue_length"`
	AverageWaitMinutes int       `json:"averageWaitTime" db:"average_wait_time"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
}
