// Package repo implements the data persistence layer for the monitor,
// backed by GORM. This file covers the two singleton rows: the control
// state the supervisor polls, and the connection status it reports into.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dkhv/tg-monitor/internal/domain"
)

// Both singletons live at a fixed primary key.
const singletonID = 1

// maxTextLen caps stored error and event strings.
const maxTextLen = 4000

// BotStateGet returns the control row, creating a default (disabled) row
// on first read so callers never see ErrRecordNotFound.
func BotStateGet(ctx context.Context, db *gorm.DB) (*domain.BotState, error) {
	var st domain.BotState
	err := db.WithContext(ctx).First(&st, singletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		st = domain.BotState{ID: singletonID, Enabled: false}
		if err := db.WithContext(ctx).Create(&st).Error; err != nil {
			return nil, err
		}
		return &st, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// BotStateSetEnabled flips the enabled flag.
func BotStateSetEnabled(ctx context.Context, db *gorm.DB, enabled bool) error {
	if _, err := BotStateGet(ctx, db); err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&domain.BotState{}).
		Where("id = ?", singletonID).
		Update("enabled", enabled).Error
}

// BotStateRequestRestart records a soft-restart request. The timestamp is
// strictly greater than any previously stored value, so the supervisor can
// tell consecutive requests apart even within one clock tick.
func BotStateRequestRestart(ctx context.Context, db *gorm.DB) error {
	st, err := BotStateGet(ctx, db)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if st.RestartRequestedAt != nil && !now.After(*st.RestartRequestedAt) {
		now = st.RestartRequestedAt.Add(time.Microsecond)
	}
	return db.WithContext(ctx).Model(&domain.BotState{}).
		Where("id = ?", singletonID).
		Update("restart_requested_at", now).Error
}

// AppStatusGet returns the status row, creating a default (disconnected)
// row on first read.
func AppStatusGet(ctx context.Context, db *gorm.DB) (*domain.AppStatus, error) {
	var st domain.AppStatus
	err := db.WithContext(ctx).First(&st, singletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		st = domain.AppStatus{ID: singletonID, Connected: false}
		if err := db.WithContext(ctx).Create(&st).Error; err != nil {
			return nil, err
		}
		return &st, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// AppStatusSetConnected updates the connected flag.
func AppStatusSetConnected(ctx context.Context, db *gorm.DB, connected bool) error {
	if _, err := AppStatusGet(ctx, db); err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&domain.AppStatus{}).
		Where("id = ?", singletonID).
		Update("connected", connected).Error
}

// AppStatusSetError stores the last error string (truncated), or clears it
// when err is empty.
func AppStatusSetError(ctx context.Context, db *gorm.DB, errText string) error {
	if _, err := AppStatusGet(ctx, db); err != nil {
		return err
	}
	var val *string
	if t := truncateText(errText); t != "" {
		val = &t
	}
	return db.WithContext(ctx).Model(&domain.AppStatus{}).
		Where("id = ?", singletonID).
		Update("last_error", val).Error
}

// AppStatusSetEvent stores the latest event marker (timestamp + message).
func AppStatusSetEvent(ctx context.Context, db *gorm.DB, when time.Time, message string) error {
	if _, err := AppStatusGet(ctx, db); err != nil {
		return err
	}
	msg := truncateText(message)
	return db.WithContext(ctx).Model(&domain.AppStatus{}).
		Where("id = ?", singletonID).
		Updates(map[string]any{
			"last_event_time":    when.UTC(),
			"last_event_message": msg,
		}).Error
}

// truncateText trims and clips a string to the stored text cap.
func truncateText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxTextLen {
		s = s[:maxTextLen]
	}
	return s
}
