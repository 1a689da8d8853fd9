package monitor

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dkhv/tg-monitor/internal/repo"
)

// ControlState is the admin-owned control row the supervisor polls.
type ControlState struct {
	Enabled            bool
	RestartRequestedAt *time.Time
}

// Checkpoint is the last processed message marker for one chat.
type Checkpoint struct {
	MessageID int64
	Date      *time.Time
}

// CleanupStats reports how many rows one retention pass removed.
type CleanupStats struct {
	ErrorEvents int64
	LedgerRows  int64
}

// Store is the durable repository contract consumed by the monitor core.
// All monitor state (control flags, status, claims, checkpoints, error
// events) is reached through it; the core never touches the database
// directly.
type Store interface {
	ControlState(ctx context.Context) (ControlState, error)

	SetConnected(ctx context.Context, connected bool) error
	SetError(ctx context.Context, errText string) error
	SetEvent(ctx context.Context, when time.Time, message string) error

	Claim(ctx context.Context, chatID, messageID int64, retryAfter time.Duration) (bool, error)
	MarkSent(ctx context.Context, chatID, messageID int64) error
	MarkFailed(ctx context.Context, chatID, messageID int64, errText string) error

	Checkpoint(ctx context.Context, chatID int64) (*Checkpoint, error)
	UpsertCheckpoint(ctx context.Context, chatID, messageID int64, date *time.Time) error

	AddErrorEvent(ctx context.Context, message string) error
	Keywords(ctx context.Context) ([]string, error)

	Cleanup(ctx context.Context, errorDays, ledgerDays int) (CleanupStats, error)
}

// gormStore adapts the repo free functions to the Store interface, keeping
// the core decoupled from the concrete persistence package.
type gormStore struct {
	db *gorm.DB
}

// NewStore wraps a GORM handle in the Store contract.
func NewStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) ControlState(ctx context.Context) (ControlState, error) {
	st, err := repo.BotStateGet(ctx, s.db)
	if err != nil {
		return ControlState{}, err
	}
	return ControlState{Enabled: st.Enabled, RestartRequestedAt: st.RestartRequestedAt}, nil
}

func (s *gormStore) SetConnected(ctx context.Context, connected bool) error {
	return repo.AppStatusSetConnected(ctx, s.db, connected)
}

func (s *gormStore) SetError(ctx context.Context, errText string) error {
	return repo.AppStatusSetError(ctx, s.db, errText)
}

func (s *gormStore) SetEvent(ctx context.Context, when time.Time, message string) error {
	return repo.AppStatusSetEvent(ctx, s.db, when, message)
}

func (s *gormStore) Claim(ctx context.Context, chatID, messageID int64, retryAfter time.Duration) (bool, error) {
	return repo.ClaimForward(ctx, s.db, chatID, messageID, retryAfter)
}

func (s *gormStore) MarkSent(ctx context.Context, chatID, messageID int64) error {
	return repo.MarkSent(ctx, s.db, chatID, messageID)
}

func (s *gormStore) MarkFailed(ctx context.Context, chatID, messageID int64, errText string) error {
	return repo.MarkFailed(ctx, s.db, chatID, messageID, errText)
}

func (s *gormStore) Checkpoint(ctx context.Context, chatID int64) (*Checkpoint, error) {
	cp, err := repo.CheckpointGet(ctx, s.db, chatID)
	if err == repo.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Checkpoint{MessageID: cp.LastMessageID, Date: cp.LastMessageDate}, nil
}

func (s *gormStore) UpsertCheckpoint(ctx context.Context, chatID, messageID int64, date *time.Time) error {
	return repo.CheckpointUpsert(ctx, s.db, chatID, messageID, date)
}

func (s *gormStore) AddErrorEvent(ctx context.Context, message string) error {
	return repo.ErrorEventAdd(ctx, s.db, message)
}

func (s *gormStore) Keywords(ctx context.Context) ([]string, error) {
	return repo.KeywordsAllNormalized(ctx, s.db)
}

func (s *gormStore) Cleanup(ctx context.Context, errorDays, ledgerDays int) (CleanupStats, error) {
	res, err := repo.Cleanup(ctx, s.db, errorDays, ledgerDays)
	if err != nil {
		return CleanupStats{}, err
	}
	return CleanupStats{ErrorEvents: res.ErrorEvents, LedgerRows: res.LedgerRows}, nil
}
