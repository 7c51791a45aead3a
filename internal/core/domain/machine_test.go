package domain

import "testing"

func TestShiftContains(t *testing.T) {
	tests := []struct {
		shift Shift
		hour  int
		want  bool
	}{
		{ShiftT1, 6, true},
		{ShiftT1, 13, true},
		{ShiftT1, 14, false},
		{ShiftT1, 5, false},
		{ShiftT2, 14, true},
		{ShiftT2, 21, true},
		{ShiftT2, 22, false},
		// T3 wraps midnight.
		{ShiftT3, 22, true},
		{ShiftT3, 23, true},
		{ShiftT3, 0, true},
		{ShiftT3, 5, true},
		{ShiftT3, 6, false},
		{ShiftT3, 21, false},
	}

	for _, tt := range tests {
		if got := tt.shift.Contains(tt.hour); got != tt.want {
			t.Errorf("%s.Contains(%d) = %v, want %v", tt.shift, tt.hour, got, tt.want)
		}
	}
}

func TestMachineInShift(t *testing.T) {
	m := NewMachine("EXT-01", "EXT-A", "film", []Shift{ShiftT1, ShiftT3})

	if !m.InShift(8) {
		t.Error("Hour 8 should fall in T1")
	}
	if !m.InShift(2) {
		t.Error("Hour 2 should fall in T3")
	}
	if m.InShift(15) {
		t.Error("Hour 15 is T2 only, which is not active")
	}
}

func TestMachineBlockHours(t *testing.T) {
	m := NewMachine("EXT-02", "EXT-A", "film", []Shift{ShiftT1})

	m.BlockHours("2026-03-02", 9, 10)
	m.BlockHours("2026-03-02", 9) // duplicate is a no-op

	if !m.HourBlocked("2026-03-02", 9) || !m.HourBlocked("2026-03-02", 10) {
		t.Error("Blocked hours should be recorded")
	}
	if len(m.Unavailable["2026-03-02"]) != 2 {
		t.Errorf("Expected 2 blocked hours, got %d", len(m.Unavailable["2026-03-02"]))
	}
	if m.HourBlocked("2026-03-03", 9) {
		t.Error("Other dates should be unaffected")
	}

	m.UnblockDate("2026-03-02")
	if m.HourBlocked("2026-03-02", 9) {
		t.Error("Unblocked date should have no overrides")
	}
}
