// Package repo implements the data persistence layer for the monitor,
// backed by GORM. This file covers the append-only error-event log and the
// retention cleanup over the log and the forwarding ledger.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dkhv/tg-monitor/internal/domain"
)

// ErrorEventAdd appends one error report. Empty messages are stored as
// "unknown error" so the log never contains blank rows.
func ErrorEventAdd(ctx context.Context, db *gorm.DB, message string) error {
	msg := truncateText(message)
	if msg == "" {
		msg = "unknown error"
	}
	ev := domain.ErrorEvent{
		ID:      uuid.NewString(),
		Message: msg,
	}
	return db.WithContext(ctx).Create(&ev).Error
}

// ErrorEventList returns the most recent error events, newest first.
// The limit is clamped to [1, 200].
func ErrorEventList(ctx context.Context, db *gorm.DB, limit int) ([]domain.ErrorEvent, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	var rows []domain.ErrorEvent
	err := db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// CleanupResult reports how many rows one retention pass removed.
type CleanupResult struct {
	ErrorEvents int64 `json:"error_events"`
	LedgerRows  int64 `json:"ledger_rows"`
}

// Cleanup deletes error events older than errorDays and ledger rows older
// than ledgerDays, both by creation timestamp. Day counts are clamped to at
// least 1 so a misconfigured zero never wipes current data.
func Cleanup(ctx context.Context, db *gorm.DB, errorDays, ledgerDays int) (CleanupResult, error) {
	if errorDays < 1 {
		errorDays = 1
	}
	if ledgerDays < 1 {
		ledgerDays = 1
	}
	now := time.Now().UTC()

	var out CleanupResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", now.AddDate(0, 0, -errorDays)).
			Delete(&domain.ErrorEvent{})
		if res.Error != nil {
			return res.Error
		}
		out.ErrorEvents = res.RowsAffected

		res = tx.Where("created_at < ?", now.AddDate(0, 0, -ledgerDays)).
			Delete(&domain.ForwardClaim{})
		if res.Error != nil {
			return res.Error
		}
		out.LedgerRows = res.RowsAffected
		return nil
	})
	return out, err
}
