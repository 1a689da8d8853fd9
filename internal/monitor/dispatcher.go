package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkhv/tg-monitor/internal/normalize"
)

// previewLen caps the message excerpt stored in the status event.
const previewLen = 120

// Preview returns at most limit runes of s, appending an ellipsis when the
// text was cut.
func Preview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}

// handleEvent processes one inbound message, live or backfilled. It may run
// concurrently with a supervisor tick and with other events, so every
// shared value is read through a locked snapshot and the forward decision
// goes through the durable claim, never an in-memory check. A failure here
// is isolated to this one event.
func (s *Supervisor) handleEvent(ctx context.Context, m Message) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("event handler panic (chat %d message %d): %v", m.ChatID, m.ID, r)
			log.Error().Int64("chat_id", m.ChatID).Int64("message_id", m.ID).
				Str("panic", fmt.Sprint(r)).Msg("event handler panicked")
			_ = s.store.AddErrorEvent(ctx, truncateEvent(msg))
		}
	}()

	if m.ChatID == 0 {
		return
	}
	if !m.Channel && !m.Group {
		return
	}

	s.mu.Lock()
	client := s.client
	targetID := s.targetID
	s.mu.Unlock()

	// Loop protection: the relay destination is never a source.
	if targetID != 0 && m.ChatID == targetID {
		return
	}

	preview := Preview(m.Text, previewLen)
	s.reportEvent(ctx, fmt.Sprintf("chat %d message %d: %s", m.ChatID, m.ID, preview))

	outcome, err := s.relay(ctx, client, targetID, m)
	if err != nil {
		log.Warn().Err(err).Int64("chat_id", m.ChatID).Int64("message_id", m.ID).Msg("relay failed")
		if addErr := s.store.AddErrorEvent(ctx, truncateEvent(err.Error())); addErr != nil {
			log.Error().Err(addErr).Msg("append error event")
		}
	}
	metricEvents.WithLabelValues(outcome).Inc()

	// The checkpoint advances for every processed message, relayed or not,
	// so backfill after downtime resumes from the right place.
	date := m.Date
	if err := s.store.UpsertCheckpoint(ctx, m.ChatID, m.ID, &date); err != nil {
		log.Error().Err(err).Int64("chat_id", m.ChatID).Msg("upsert checkpoint")
	}
}

// relay applies the keyword policy and, on a match, runs the claim protocol
// before forwarding. The returned outcome is one of the metric labels.
func (s *Supervisor) relay(ctx context.Context, client Client, targetID int64, m Message) (string, error) {
	if client == nil || targetID == 0 {
		return outcomeSkipped, nil
	}

	keywords, err := s.store.Keywords(ctx)
	if err != nil {
		return outcomeFailed, fmt.Errorf("load keywords: %w", err)
	}
	if !MatchesKeyword(m.Text, keywords) {
		return outcomeSkipped, nil
	}

	granted, err := s.store.Claim(ctx, m.ChatID, m.ID, s.cfg.ForwardRetryAfter)
	if err != nil {
		return outcomeFailed, fmt.Errorf("claim message: %w", err)
	}
	if !granted {
		// Someone else owns or already finished this message.
		return outcomeDuplicate, nil
	}

	if err := client.Forward(ctx, m.ChatID, m.ID, targetID); err != nil {
		if markErr := s.store.MarkFailed(ctx, m.ChatID, m.ID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Msg("mark claim failed")
		}
		return outcomeFailed, transportErr("forward message", err)
	}
	if err := s.store.MarkSent(ctx, m.ChatID, m.ID); err != nil {
		return outcomeFailed, fmt.Errorf("mark claim sent: %w", err)
	}
	return outcomeForwarded, nil
}

// MatchesKeyword reports whether text contains any of the normalized
// keywords as a substring, after normalizing the text the same way titles
// and keywords are normalized.
func MatchesKeyword(text string, normalizedKeywords []string) bool {
	if len(normalizedKeywords) == 0 {
		return false
	}
	folded := normalize.Fold(text)
	if folded == "" {
		return false
	}
	for _, kw := range normalizedKeywords {
		if kw != "" && strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// backfill closes gaps accumulated while disconnected: for each monitored
// chat with a recorded checkpoint it reads the messages newer than that
// checkpoint and feeds them through the regular event path. Chats without a
// checkpoint are skipped; history starts accumulating from their first live
// message.
func (s *Supervisor) backfill(ctx context.Context, client Client, dialogs []Dialog) error {
	var errs []error
	for _, d := range dialogs {
		if !d.Channel && !d.Group {
			continue
		}
		if !s.ShouldMonitorChat(d.ID) {
			continue
		}

		cp, err := s.store.Checkpoint(ctx, d.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("checkpoint for chat %d: %w", d.ID, err))
			continue
		}
		if cp == nil {
			continue
		}

		msgs, err := client.History(ctx, d.ID, cp.MessageID, s.cfg.BackfillLimit)
		if err != nil {
			errs = append(errs, fmt.Errorf("history for chat %d: %w", d.ID, err))
			continue
		}
		for _, m := range msgs {
			m.Channel = d.Channel
			m.Group = d.Group
			s.handleEvent(ctx, m)
		}
		if len(msgs) > 0 {
			log.Info().Int64("chat_id", d.ID).Int("count", len(msgs)).Msg("backfilled messages")
		}
	}
	return errors.Join(errs...)
}
