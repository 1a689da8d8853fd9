// Package domain defines the core persistence models for the monitor.
// These types are mapped with GORM and are shared across the repository
// layer, the supervisor, and the admin API.
package domain

import "time"

// Claim statuses for ForwardClaim. "sent" is terminal; "pending" and
// "failed" rows become claimable again once the retry window elapses.
const (
	ClaimPending = "pending"
	ClaimSent    = "sent"
	ClaimFailed  = "failed"
)

// BotState is the single control row the supervisor polls. Admin actions
// flip Enabled or bump RestartRequestedAt; the supervisor only reads it.
//
// RestartRequestedAt, once set, strictly increases with each new restart
// request, so the supervisor can detect a fresh request by comparing it
// with the last value it observed.
type BotState struct {
	ID                 int        `gorm:"primaryKey"`
	Enabled            bool       `gorm:"not null;default:false"`
	RestartRequestedAt *time.Time `gorm:""`
	UpdatedAt          time.Time
}

// TableName implements the GORM tabler interface.
func (BotState) TableName() string { return "bot_state" }

// AppStatus is the single status row describing the live connection.
// Only the supervisor and the event dispatcher write it.
type AppStatus struct {
	ID               int        `gorm:"primaryKey"`
	Connected        bool       `gorm:"not null;default:false"`
	LastError        *string    `gorm:"type:TEXT"`
	LastEventTime    *time.Time `gorm:""`
	LastEventMessage *string    `gorm:"type:TEXT"`
	UpdatedAt        time.Time
}

// TableName implements the GORM tabler interface.
func (AppStatus) TableName() string { return "app_status" }

// ForwardClaim records the processing state of one source message, keyed by
// (source chat, source message). It is the durable half of the at-most-once
// forwarding protocol: a caller may only act on a message while it holds an
// unexpired pending claim, and a sent row is never reprocessed.
type ForwardClaim struct {
	SourceChatID    int64      `gorm:"primaryKey;autoIncrement:false"`
	SourceMessageID int64      `gorm:"primaryKey;autoIncrement:false"`
	Status          string     `gorm:"type:TEXT NOT NULL;default:'pending';check:status IN ('pending','sent','failed')"`
	ClaimedAt       time.Time  `gorm:"not null"`
	SentAt          *time.Time `gorm:""`
	FailCount       int        `gorm:"not null;default:0"`
	LastError       *string    `gorm:"type:TEXT"`
	CreatedAt       time.Time  `gorm:"index"`
	UpdatedAt       time.Time
}

// TableName implements the GORM tabler interface.
func (ForwardClaim) TableName() string { return "forward_claims" }

// ChannelCheckpoint marks the last processed message per monitored chat,
// used to detect and close gaps after a disconnect or restart.
type ChannelCheckpoint struct {
	ChatID          int64      `gorm:"primaryKey;autoIncrement:false"`
	LastMessageID   int64      `gorm:"not null"`
	LastMessageDate *time.Time `gorm:""`
	UpdatedAt       time.Time
}

// TableName implements the GORM tabler interface.
func (ChannelCheckpoint) TableName() string { return "channel_checkpoints" }

// ErrorEvent is one append-only error report, surfaced by the admin log
// viewer and pruned by the retention cleaner.
type ErrorEvent struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Message   string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName implements the GORM tabler interface.
func (ErrorEvent) TableName() string { return "error_events" }

// Keyword is one monitored keyword. Keyword keeps the operator's original
// spelling; Normalized is the case-folded, ё-folded, whitespace-collapsed
// form used for matching and for duplicate detection ("еж" == "ёж").
type Keyword struct {
	ID         int64     `json:"id"         gorm:"primaryKey"`
	Keyword    string    `json:"keyword"    gorm:"type:TEXT NOT NULL"`
	Normalized string    `json:"normalized" gorm:"type:TEXT NOT NULL;uniqueIndex:ux_keywords_normalized"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

// TableName implements the GORM tabler interface.
func (Keyword) TableName() string { return "keywords" }
