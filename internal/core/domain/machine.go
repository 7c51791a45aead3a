package domain

import (
	"time"

	"github.com/google/uuid"
)

// MachineStatus represents the operational state of a machine.
type MachineStatus string

const (
	MachineStatusActive      MachineStatus = "ACTIVE"
	MachineStatusInactive    MachineStatus = "INACTIVE"
	MachineStatusMaintenance MachineStatus = "MAINTENANCE"
)

// Shift is a recurring daily availability window. T3 wraps midnight.
type Shift string

const (
	ShiftT1 Shift = "T1" // 06:00-14:00
	ShiftT2 Shift = "T2" // 14:00-22:00
	ShiftT3 Shift = "T3" // 22:00-06:00
)

// AllShifts lists every defined shift in daily order.
var AllShifts = []Shift{ShiftT1, ShiftT2, ShiftT3}

// Contains reports whether the clock hour falls inside the shift window.
func (s Shift) Contains(hour int) bool {
	switch s {
	case ShiftT1:
		return hour >= 6 && hour < 14
	case ShiftT2:
		return hour >= 14 && hour < 22
	case ShiftT3:
		return hour >= 22 || hour < 6
	}
	return false
}

// Valid reports whether s is a defined shift.
func (s Shift) Valid() bool {
	return s == ShiftT1 || s == ShiftT2 || s == ShiftT3
}

// DateKey is the layout used to key manual unavailable hours by UTC date.
const DateKey = "2006-01-02"

// Machine represents a production machine with its availability calendar.
type Machine struct {
	ID         uuid.UUID     `json:"id"`
	Name       string        `json:"name"`
	Status     MachineStatus `json:"status"`
	Shifts     []Shift       `json:"shifts"`
	WorkCenter string        `json:"work_center"`
	Department string        `json:"department"`
	// Unavailable holds manual per-date hour overrides, keyed by DateKey.
	Unavailable map[string][]int `json:"unavailable,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewMachine creates an active machine with the given shift set.
func NewMachine(name, workCenter, department string, shifts []Shift) *Machine {
	now := time.Now().UTC()
	return &Machine{
		ID:          uuid.Must(uuid.NewV7()),
		Name:        name,
		Status:      MachineStatusActive,
		Shifts:      shifts,
		WorkCenter:  workCenter,
		Department:  department,
		Unavailable: make(map[string][]int),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// HasShift reports whether the shift is in the machine's active set.
func (m *Machine) HasShift(s Shift) bool {
	for _, active := range m.Shifts {
		if active == s {
			return true
		}
	}
	return false
}

// InShift reports whether the clock hour falls inside any active shift.
func (m *Machine) InShift(hour int) bool {
	for _, s := range m.Shifts {
		if s.Contains(hour) {
			return true
		}
	}
	return false
}

// HourBlocked reports whether the date+hour is manually marked unavailable.
func (m *Machine) HourBlocked(date string, hour int) bool {
	for _, h := range m.Unavailable[date] {
		if h == hour {
			return true
		}
	}
	return false
}

// BlockHours marks hours of a date as manually unavailable.
func (m *Machine) BlockHours(date string, hours ...int) {
	if m.Unavailable == nil {
		m.Unavailable = make(map[string][]int)
	}
	for _, h := range hours {
		if !m.HourBlocked(date, h) {
			m.Unavailable[date] = append(m.Unavailable[date], h)
		}
	}
	m.UpdatedAt = time.Now().UTC()
}

// UnblockDate clears all manual overrides for a date.
func (m *Machine) UnblockDate(date string) {
	delete(m.Unavailable, date)
	m.UpdatedAt = time.Now().UTC()
}
