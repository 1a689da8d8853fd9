// Package services – ControlService
//
// This file implements the ControlService, the admin-facing surface over the
// monitor's control and status rows. It flips the enabled flag, issues soft
// restart requests, and assembles the combined status view (control flags,
// connection status, latest event) the dashboard polls.
//
// The service never talks to the Telegram session directly: it only writes
// the control row the supervisor polls, so every action takes effect within
// one poll interval.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/dkhv/tg-monitor/internal/domain"
)

// ControlRepo defines the repository contract required by ControlService.
type ControlRepo interface {
	// BotStateGet returns the control row, creating it disabled on first read.
	BotStateGet(ctx context.Context, db *gorm.DB) (*domain.BotState, error)

	// BotStateSetEnabled flips the enabled flag.
	BotStateSetEnabled(ctx context.Context, db *gorm.DB, enabled bool) error

	// BotStateRequestRestart stamps a new, strictly increasing restart request.
	BotStateRequestRestart(ctx context.Context, db *gorm.DB) error

	// AppStatusGet returns the connection status row.
	AppStatusGet(ctx context.Context, db *gorm.DB) (*domain.AppStatus, error)

	// ErrorEventList returns the newest error events.
	ErrorEventList(ctx context.Context, db *gorm.DB, limit int) ([]domain.ErrorEvent, error)
}

// Status is the combined control and connection view returned to the admin
// layer.
type Status struct {
	Enabled    bool
	Connected  bool
	Control    domain.BotState
	Connection domain.AppStatus
}

// ControlService exposes enable/disable/restart and status reads.
type ControlService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the control repository used by this service.
	Repo ControlRepo
}

// NewControlService constructs a ControlService.
func NewControlService(db *gorm.DB, r ControlRepo) *ControlService {
	return &ControlService{DB: db, Repo: r}
}

// Enable turns monitoring on. The supervisor picks the flag up on its next
// poll.
func (s *ControlService) Enable(ctx context.Context) error {
	return s.Repo.BotStateSetEnabled(ctx, s.DB, true)
}

// Disable turns monitoring off and lets the supervisor drop the connection.
func (s *ControlService) Disable(ctx context.Context) error {
	return s.Repo.BotStateSetEnabled(ctx, s.DB, false)
}

// RequestRestart asks the supervisor to drop and re-establish its
// connection without restarting the process.
func (s *ControlService) RequestRestart(ctx context.Context) error {
	return s.Repo.BotStateRequestRestart(ctx, s.DB)
}

// Status returns the current control flags and connection status together.
func (s *ControlService) Status(ctx context.Context) (Status, error) {
	control, err := s.Repo.BotStateGet(ctx, s.DB)
	if err != nil {
		return Status{}, err
	}
	conn, err := s.Repo.AppStatusGet(ctx, s.DB)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Enabled:    control.Enabled,
		Connected:  conn.Connected,
		Control:    *control,
		Connection: *conn,
	}, nil
}

// Logs returns the newest error events, newest first.
func (s *ControlService) Logs(ctx context.Context, limit int) ([]domain.ErrorEvent, error) {
	return s.Repo.ErrorEventList(ctx, s.DB, limit)
}
