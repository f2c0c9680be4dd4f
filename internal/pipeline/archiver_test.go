package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeBlobArchiver struct {
	days      []time.Time
	spreadErr error
}

func (f *fakeBlobArchiver) ArchivePrices(_ context.Context, day time.Time) (int64, error) {
	f.days = append(f.days, day)
	return 10, nil
}

func (f *fakeBlobArchiver) ArchiveSpreads(_ context.Context, day time.Time) (int64, error) {
	f.days = append(f.days, day)
	return 0, f.spreadErr
}

func (f *fakeBlobArchiver) ArchiveAlerts(_ context.Context, day time.Time) (int64, error) {
	f.days = append(f.days, day)
	return 1, nil
}

func TestArchiver_RunAttemptsEveryKind(t *testing.T) {
	blob := &fakeBlobArchiver{spreadErr: errors.New("s3 unavailable")}
	a := NewArchiver(blob, quiet)

	err := a.Run(context.Background(), time.Date(2025, 3, 9, 17, 30, 0, 0, time.UTC))
	if err == nil || !strings.Contains(err.Error(), "archive spreads") {
		t.Fatalf("err = %v, want spreads failure", err)
	}
	if len(blob.days) != 3 {
		t.Fatalf("kinds attempted = %d, want 3", len(blob.days))
	}
	want := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	for _, d := range blob.days {
		if !d.Equal(want) {
			t.Errorf("day = %v, want %v", d, want)
		}
	}
}

func TestArchiver_RunCronStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewArchiver(&fakeBlobArchiver{}, quiet).RunCron(ctx, "0 3 * * *"); err != nil {
		t.Errorf("RunCron = %v, want nil on cancel", err)
	}
	if err := NewArchiver(&fakeBlobArchiver{}, quiet).RunCron(context.Background(), "bad"); err == nil {
		t.Error("RunCron accepted a malformed expression")
	}
}
