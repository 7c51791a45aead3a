package domain

import (
	"testing"
	"time"
)

func TestWindowOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	w := func(startHour, endHour int) Window {
		return Window{
			Start: base.Add(time.Duration(startHour) * time.Hour),
			End:   base.Add(time.Duration(endHour) * time.Hour),
		}
	}

	tests := []struct {
		name string
		a, b Window
		want bool
	}{
		{"identical", w(0, 2), w(0, 2), true},
		{"partial", w(0, 2), w(1, 3), true},
		{"contained", w(0, 4), w(1, 2), true},
		{"disjoint", w(0, 2), w(3, 4), false},
		// Half-open: an end touching a start is not an overlap.
		{"adjacent", w(0, 2), w(2, 4), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps (reversed) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewWindow(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	w := NewWindow(start, 1.5)

	if w.Duration() != 90*time.Minute {
		t.Errorf("Expected 90m duration, got %v", w.Duration())
	}
}
