package hours

import (
	"sync"
	"testing"
	"time"

	"queuesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSchedule(t *testing.T) Schedule {
	t.Helper()
	s, err := ParseSchedule(models.BusinessHoursConfig{
		Timezone:  "Europe/Amsterdam",
		OpenDays:  []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday"},
		OpenHour:  10,
		CloseHour: 19,
	})
	require.NoError(t, err)
	return s
}

func at(t *testing.T, s Schedule, value string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, s.Location)
	require.NoError(t, err)
	return ts
}

func TestStatus(t *testing.T) {
	s := defaultSchedule(t)

	// 2026-10-19 is a Monday.
	tests := []struct {
		name string
		now  string
		want models.BusinessStatus
	}{
		{
			name: "monday before opening",
			now:  "2026-10-19 09:59",
			want: models.BusinessStatus{Message: "Closed - Opens 10:00 AM", NextOpenTime: "10:00 AM"},
		},
		{
			name: "monday at opening",
			now:  "2026-10-19 10:00",
			want: models.BusinessStatus{IsOpen: true, Message: "Open until 7 PM"},
		},
		{
			name: "tuesday afternoon",
			now:  "2026-10-20 14:00",
			want: models.BusinessStatus{IsOpen: true, Message: "Open until 7 PM"},
		},
		{
			name: "tuesday at closing",
			now:  "2026-10-20 19:00",
			want: models.BusinessStatus{Message: "Closed - Opens Tomorrow 10:00 AM", NextOpenTime: "Tomorrow 10:00 AM"},
		},
		{
			name: "saturday at closing skips sunday",
			now:  "2026-10-24 19:00",
			want: models.BusinessStatus{Message: "Closed - Opens Monday 10:00 AM", NextOpenTime: "Monday 10:00 AM"},
		},
		{
			name: "sunday midday",
			now:  "2026-10-25 12:00",
			want: models.BusinessStatus{Message: "Closed - Opens Tomorrow 10:00 AM", NextOpenTime: "Tomorrow 10:00 AM"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Status(at(t, s, tt.now)))
		})
	}
}

func TestStatus_IndependentOfCallerZone(t *testing.T) {
	s := defaultSchedule(t)

	// 08:30 UTC on a Tuesday is 10:30 in Amsterdam (CEST).
	now := time.Date(2026, 10, 20, 8, 30, 0, 0, time.UTC)
	assert.True(t, s.Status(now).IsOpen)

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	assert.True(t, s.Status(now.In(tokyo)).IsOpen)
}

func TestStatus_NoOpenDays(t *testing.T) {
	s, err := ParseSchedule(models.BusinessHoursConfig{Timezone: "UTC", OpenDays: []string{}, OpenHour: 10, CloseHour: 19})
	require.NoError(t, err)

	status := s.Status(time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC))
	assert.False(t, status.IsOpen)
	assert.Empty(t, status.NextOpenTime)
	assert.Equal(t, "Closed", status.Message)
}

func TestStatus_SingleOpenDayAWeekAway(t *testing.T) {
	s, err := ParseSchedule(models.BusinessHoursConfig{Timezone: "UTC", OpenDays: []string{"tue"}, OpenHour: 9, CloseHour: 12})
	require.NoError(t, err)

	status := s.Status(time.Date(2026, 10, 20, 13, 0, 0, 0, time.UTC))
	assert.Equal(t, "Tuesday 9:00 AM", status.NextOpenTime)
}

func TestParseSchedule_Errors(t *testing.T) {
	_, err := ParseSchedule(models.BusinessHoursConfig{Timezone: "Mars/Olympus", OpenHour: 10, CloseHour: 19})
	assert.Error(t, err)

	_, err = ParseSchedule(models.BusinessHoursConfig{Timezone: "UTC", OpenHour: 19, CloseHour: 10})
	assert.Error(t, err)

	_, err = ParseSchedule(models.BusinessHoursConfig{Timezone: "UTC", OpenDays: []string{"blursday"}, OpenHour: 10, CloseHour: 19})
	assert.Error(t, err)
}

func TestOracle_SetScheduleConcurrent(t *testing.T) {
	s := defaultSchedule(t)
	o := NewOracle(s)
	now := at(t, s, "2026-10-20 14:00")

	late := s
	late.OpenHour, late.CloseHour = 20, 23

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			o.SetSchedule(late)
		}()
		go func() {
			defer wg.Done()
			_ = o.Status(now)
		}()
	}
	wg.Wait()

	assert.Equal(t, "Closed - Opens 8:00 PM", o.Status(now).Message)
}
