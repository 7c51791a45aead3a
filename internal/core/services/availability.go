package services

import (
	"time"

	"github.com/planfab/planfab/internal/core/domain"
)

// IsAvailable reports whether the machine may run at the given instant:
// the machine is ACTIVE, the clock hour falls inside an active shift, and
// the date+hour carries no manual unavailable override. Pure function.
func IsAvailable(m *domain.Machine, at time.Time) bool {
	if m.Status != domain.MachineStatusActive {
		return false
	}
	at = at.UTC()
	hour := at.Hour()
	if !m.InShift(hour) {
		return false
	}
	return !m.HourBlocked(at.Format(domain.DateKey), hour)
}

// FirstUnavailable scans every hour the window touches and returns the first
// instant the machine may not run, or nil if the whole window is available.
func FirstUnavailable(m *domain.Machine, w domain.Window) *time.Time {
	for at := w.Start.UTC().Truncate(time.Hour); at.Before(w.End); at = at.Add(time.Hour) {
		probe := at
		if probe.Before(w.Start) {
			probe = w.Start
		}
		if !IsAvailable(m, probe) {
			return &probe
		}
	}
	return nil
}
