// Package hours evaluates the shop's weekly opening schedule in a fixed
// civil timezone, independent of the host's local zone.
package hours

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"queuesync/internal/config"
	"queuesync/internal/models"
)

// Schedule is a weekly schedule with the same opening hours on every
// open day.
type Schedule struct {
	Location  *time.Location
	OpenDays  map[time.Weekday]bool
	OpenHour  int
	CloseHour int
}

// ParseSchedule converts the configured schedule. An empty OpenDays list
// yields a schedule that is never open.
func ParseSchedule(cfg models.BusinessHoursConfig) (Schedule, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Schedule{}, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.OpenHour < 0 || cfg.CloseHour > 24 || cfg.OpenHour >= cfg.CloseHour {
		return Schedule{}, fmt.Errorf("invalid business hours %d-%d", cfg.OpenHour, cfg.CloseHour)
	}

	days := make(map[time.Weekday]bool, len(cfg.OpenDays))
	for _, name := range cfg.OpenDays {
		d, ok := config.ParseWeekday(name)
		if !ok {
			return Schedule{}, fmt.Errorf("unknown weekday %q", name)
		}
		days[d] = true
	}

	return Schedule{Location: loc, OpenDays: days, OpenHour: cfg.OpenHour, CloseHour: cfg.CloseHour}, nil
}

// Oracle answers open/closed questions against a schedule that can be
// swapped at runtime.
type Oracle struct {
	mu       sync.RWMutex
	schedule Schedule
}

func NewOracle(s Schedule) *Oracle {
	return &Oracle{schedule: s}
}

// SetSchedule replaces the schedule used by later Status calls.
func (o *Oracle) SetSchedule(s Schedule) {
	o.mu.Lock()
	o.schedule = s
	o.mu.Unlock()
}

func (o *Oracle) Schedule() Schedule {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.schedule
}

// Status reports whether the business is open at now.
func (o *Oracle) Status(now time.Time) models.BusinessStatus {
	return o.Schedule().Status(now)
}

// Status is a pure function of now and the schedule.
func (s Schedule) Status(now time.Time) models.BusinessStatus {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	if s.OpenDays[local.Weekday()] && local.Hour() >= s.OpenHour && local.Hour() < s.CloseHour {
		closeAt := time.Date(local.Year(), local.Month(), local.Day(), s.CloseHour, 0, 0, 0, loc)
		return models.BusinessStatus{
			IsOpen:  true,
			Message: "Open until " + closeAt.Format("3 PM"),
		}
	}

	next, ok := s.nextOpening(local)
	if !ok {
		return models.BusinessStatus{IsOpen: false, Message: "Closed"}
	}
	return models.BusinessStatus{
		IsOpen:       false,
		Message:      "Closed - Opens " + next,
		NextOpenTime: next,
	}
}

// nextOpening labels the first opening strictly after local: same day,
// "Tomorrow", or the weekday name.
func (s Schedule) nextOpening(local time.Time) (string, bool) {
	for i := 0; i <= 7; i++ {
		openAt := time.Date(local.Year(), local.Month(), local.Day()+i, s.OpenHour, 0, 0, 0, local.Location())
		if !s.OpenDays[openAt.Weekday()] || !openAt.After(local) {
			continue
		}
		clock := openAt.Format("3:04 PM")
		switch i {
		case 0:
			return clock, true
		case 1:
			return "Tomorrow " + clock, true
		default:
			return openAt.Weekday().String() + " " + clock, true
		}
	}
	return "", false
}
