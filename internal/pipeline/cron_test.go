package pipeline

import (
	"testing"
	"time"
)

func TestSchedule_Next(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 34, 56, 0, time.UTC) // Monday
	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2025, 3, 10, 12, 35, 0, 0, time.UTC)},
		{"15 3 * * *", time.Date(2025, 3, 11, 3, 15, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 3, 10, 12, 45, 0, 0, time.UTC)},
		{"0 8-18/2 * * *", time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"30 6 * * 0", time.Date(2025, 3, 16, 6, 30, 0, 0, time.UTC)},
		{"30 6 * * 7", time.Date(2025, 3, 16, 6, 30, 0, 0, time.UTC)},
		{"0,40 12 * * *", time.Date(2025, 3, 10, 12, 40, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := parseSchedule(tt.expr)
			if err != nil {
				t.Fatalf("parseSchedule: %v", err)
			}
			got, err := s.next(base)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSchedule_Rejects(t *testing.T) {
	for _, expr := range []string{
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
	} {
		if _, err := parseSchedule(expr); err == nil {
			t.Errorf("parseSchedule(%q) succeeded, want error", expr)
		}
	}
}
