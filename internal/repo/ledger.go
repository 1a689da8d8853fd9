// Package repo implements the data persistence layer for the monitor,
// backed by GORM. This file provides the forwarding ledger: a durable
// claim/commit protocol that guarantees a given source message is forwarded
// at most once, with bounded retry on transient failure.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dkhv/tg-monitor/internal/domain"
)

// ClaimForward attempts to take the processing claim for one source message.
// It returns true only when the caller is cleared to process (and must then
// call MarkSent or MarkFailed), false when the work is owned by an unexpired
// claim or already finished.
//
// The decision runs in a single transaction against the keyed row:
//   - no row            -> insert pending, claim granted
//   - status sent       -> denied, terminal
//   - pending/failed and the last claim is at least retryAfter old
//     -> re-claim with a fresh timestamp, claim granted
//   - otherwise         -> denied, an active claim is still running
func ClaimForward(ctx context.Context, db *gorm.DB, chatID, messageID int64, retryAfter time.Duration) (bool, error) {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	claimed := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		var row domain.ForwardClaim
		err := tx.Where("source_chat_id = ? AND source_message_id = ?", chatID, messageID).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = domain.ForwardClaim{
				SourceChatID:    chatID,
				SourceMessageID: messageID,
				Status:          domain.ClaimPending,
				ClaimedAt:       now,
			}
			if err := tx.Create(&row).Error; err != nil {
				if isUniqueViolation(err) {
					// Another claimer inserted first; the work is theirs.
					return nil
				}
				return err
			}
			claimed = true
			return nil
		}
		if err != nil {
			return err
		}

		if row.Status == domain.ClaimSent {
			return nil
		}

		if now.Sub(row.ClaimedAt) >= retryAfter {
			res := tx.Model(&domain.ForwardClaim{}).
				Where("source_chat_id = ? AND source_message_id = ?", chatID, messageID).
				Updates(map[string]any{
					"status":     domain.ClaimPending,
					"claimed_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			claimed = true
		}
		return nil
	})
	return claimed, err
}

// MarkSent commits a claim as forwarded. Sent is terminal: subsequent
// ClaimForward calls for the same message are denied forever.
func MarkSent(ctx context.Context, db *gorm.DB, chatID, messageID int64) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&domain.ForwardClaim{}).
		Where("source_chat_id = ? AND source_message_id = ?", chatID, messageID).
		Updates(map[string]any{
			"status":  domain.ClaimSent,
			"sent_at": now,
		}).Error
}

// MarkFailed records a failed forwarding attempt, bumping the failure count
// and storing a truncated error. The row becomes claimable again once the
// retry window elapses.
func MarkFailed(ctx context.Context, db *gorm.DB, chatID, messageID int64, errText string) error {
	msg := truncateText(errText)
	if msg == "" {
		msg = "unknown error"
	}
	return db.WithContext(ctx).Model(&domain.ForwardClaim{}).
		Where("source_chat_id = ? AND source_message_id = ?", chatID, messageID).
		Updates(map[string]any{
			"status":     domain.ClaimFailed,
			"fail_count": gorm.Expr("fail_count + 1"),
			"last_error": msg,
		}).Error
}

// isUniqueViolation reports whether err is a primary-key/unique-index
// conflict. glebarez/sqlite often returns plain-text errors for these.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "primary key constraint")
}
