package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cleaner prunes old error events and forward claims once per day at a
// fixed UTC hour. A failed pass is logged and the next one is scheduled
// regardless.
type Cleaner struct {
	store Store

	// HourUTC is the wall-clock hour (0..23) the daily pass runs at.
	HourUTC int
	// ErrorRetentionDays / LedgerRetentionDays are the per-table windows.
	ErrorRetentionDays  int
	LedgerRetentionDays int

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCleaner builds a cleaner with the given schedule and retention
// windows. Out-of-range values fall back to defaults (03:00 UTC, 7 days for
// error events, 30 for ledger rows).
func NewCleaner(store Store, hourUTC, errorDays, ledgerDays int) *Cleaner {
	if hourUTC < 0 || hourUTC > 23 {
		hourUTC = 3
	}
	if errorDays <= 0 {
		errorDays = 7
	}
	if ledgerDays <= 0 {
		ledgerDays = 30
	}
	return &Cleaner{
		store:               store,
		HourUTC:             hourUTC,
		ErrorRetentionDays:  errorDays,
		LedgerRetentionDays: ledgerDays,
		stopCh:              make(chan struct{}),
		doneCh:              make(chan struct{}),
	}
}

// Start launches the schedule loop.
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// Stop signals the loop and waits for it to exit or for ctx to expire.
// Safe to call concurrently.
func (c *Cleaner) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	select {
	case <-c.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cleaner) run(ctx context.Context) {
	defer close(c.doneCh)
	for {
		wait := time.Until(nextRun(time.Now().UTC(), c.HourUTC))
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		c.runOnce(ctx)
	}
}

// runOnce executes one retention pass.
func (c *Cleaner) runOnce(ctx context.Context) {
	stats, err := c.store.Cleanup(ctx, c.ErrorRetentionDays, c.LedgerRetentionDays)
	if err != nil {
		log.Error().Err(err).Msg("retention cleanup failed")
		if addErr := c.store.AddErrorEvent(ctx, truncateEvent("retention cleanup failed: "+err.Error())); addErr != nil {
			log.Error().Err(addErr).Msg("append error event")
		}
		return
	}

	metricCleanupDeleted.WithLabelValues("error_events").Add(float64(stats.ErrorEvents))
	metricCleanupDeleted.WithLabelValues("forward_claims").Add(float64(stats.LedgerRows))

	msg := fmt.Sprintf("retention cleanup: deleted %d error events, %d ledger rows",
		stats.ErrorEvents, stats.LedgerRows)
	log.Info().Int64("error_events", stats.ErrorEvents).Int64("ledger_rows", stats.LedgerRows).
		Msg("retention cleanup done")
	if err := c.store.SetEvent(ctx, time.Now().UTC(), msg); err != nil {
		log.Error().Err(err).Msg("write status event")
	}
}

// nextRun returns the next occurrence of hour (UTC), today when it is still
// ahead of now, otherwise tomorrow.
func nextRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
