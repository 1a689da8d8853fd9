package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNextRun(t *testing.T) {
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{"hour still ahead today", day.Add(1 * time.Hour), 3, day.Add(3 * time.Hour)},
		{"exactly at the hour rolls to tomorrow", day.Add(3 * time.Hour), 3, day.AddDate(0, 0, 1).Add(3 * time.Hour)},
		{"hour already past rolls to tomorrow", day.Add(15 * time.Hour), 3, day.AddDate(0, 0, 1).Add(3 * time.Hour)},
		{"midnight schedule", day.Add(10 * time.Minute), 0, day.AddDate(0, 0, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := nextRun(tc.now, tc.hour); !got.Equal(tc.want) {
				t.Fatalf("nextRun(%v, %d) = %v, want %v", tc.now, tc.hour, got, tc.want)
			}
		})
	}
}

func TestNewCleaner_Defaults(t *testing.T) {
	c := NewCleaner(newFakeStore(), -1, 0, 0)
	if c.HourUTC != 3 || c.ErrorRetentionDays != 7 || c.LedgerRetentionDays != 30 {
		t.Fatalf("defaults = %d/%d/%d, want 3/7/30", c.HourUTC, c.ErrorRetentionDays, c.LedgerRetentionDays)
	}

	c = NewCleaner(newFakeStore(), 5, 14, 60)
	if c.HourUTC != 5 || c.ErrorRetentionDays != 14 || c.LedgerRetentionDays != 60 {
		t.Fatalf("explicit values overridden: %d/%d/%d", c.HourUTC, c.ErrorRetentionDays, c.LedgerRetentionDays)
	}
}

func TestRunOnce_ReportsStats(t *testing.T) {
	store := newFakeStore()
	store.cleanupStats = CleanupStats{ErrorEvents: 4, LedgerRows: 11}
	c := NewCleaner(store, 3, 7, 30)

	c.runOnce(context.Background())

	if store.cleanupRuns != 1 {
		t.Fatalf("cleanupRuns = %d, want 1", store.cleanupRuns)
	}
	if len(store.events) != 1 || !strings.Contains(store.events[0], "deleted 4 error events, 11 ledger rows") {
		t.Fatalf("events = %v", store.events)
	}
	if len(store.errorEvents) != 0 {
		t.Fatalf("errorEvents = %v, want none", store.errorEvents)
	}
}

func TestRunOnce_FailureIsRecorded(t *testing.T) {
	store := newFakeStore()
	store.cleanupErr = errors.New("database is locked")
	c := NewCleaner(store, 3, 7, 30)

	c.runOnce(context.Background())

	if len(store.errorEvents) != 1 || !strings.Contains(store.errorEvents[0], "database is locked") {
		t.Fatalf("errorEvents = %v", store.errorEvents)
	}
	if len(store.events) != 0 {
		t.Fatalf("status event written despite failure: %v", store.events)
	}
}

func TestCleaner_StartStop(t *testing.T) {
	store := newFakeStore()
	c := NewCleaner(store, 3, 7, 30)

	ctx := context.Background()
	c.Start(ctx)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := c.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stop twice is a no-op.
	if err := c.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestCleaner_ConcurrentStop(t *testing.T) {
	store := newFakeStore()
	c := NewCleaner(store, 3, 7, 30)

	ctx := context.Background()
	c.Start(ctx)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Stop(stopCtx)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent Stop %d: %v", i, err)
		}
	}
}
