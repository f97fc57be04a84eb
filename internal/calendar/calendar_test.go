package calendar

import (
	"testing"
	"time"
)

func TestIsTradingDay(t *testing.T) {
	cal, err := New("Australia/Sydney", []string{"2025-12-25", "2025-12-26"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name string
		utc  string
		want bool
	}{
		{"weekday", "2025-10-16T02:00:00Z", true},
		{"saturday", "2025-10-18T02:00:00Z", false},
		{"sunday", "2025-10-19T02:00:00Z", false},
		{"christmas", "2025-12-25T02:00:00Z", false},
		// Friday 22:00 UTC is already Saturday morning in Sydney.
		{"friday utc is saturday local", "2025-10-17T22:00:00Z", false},
		// Sunday 14:00 UTC is Monday morning in Sydney.
		{"sunday utc is monday local", "2025-10-19T14:00:00Z", true},
	}
	for _, tt := range tests {
		ts, err := time.Parse(time.RFC3339, tt.utc)
		if err != nil {
			t.Fatalf("parse %s: %v", tt.utc, err)
		}
		if got := cal.IsTradingDay(ts); got != tt.want {
			t.Errorf("%s: IsTradingDay(%s) = %v, want %v", tt.name, tt.utc, got, tt.want)
		}
	}
}

func TestNew_InvalidInput(t *testing.T) {
	if _, err := New("Mars/Olympus", nil); err == nil {
		t.Error("expected error for unknown timezone")
	}
	if _, err := New("UTC", []string{"25/12/2025"}); err == nil {
		t.Error("expected error for malformed holiday")
	}
}
