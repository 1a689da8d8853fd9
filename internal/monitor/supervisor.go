// Package monitor implements the connection-state supervisor and the
// idempotent ingestion pipeline around one monitored Telegram account.
//
// The Supervisor owns the session client for the lifetime of one
// connection, polls the admin-owned control row for enable/disable and
// soft-restart signals, resolves the relay destination by title, and
// installs the live event dispatcher. Every forward action is gated by the
// durable claim ledger so a source message is relayed at most once even
// across crashes and reconnects.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the supervisor's current position in its connection lifecycle.
type State int

const (
	StateDisabled State = iota
	StateConnecting
	StateConnected
	StateBackingOff
	StateRestartPending
	StateStopped
)

// String returns a stable lowercase label, suitable for status payloads.
func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackingOff:
		return "backing_off"
	case StateRestartPending:
		return "restart_pending"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config carries the settings the supervisor validates at connect time.
// Validation happens on each tick, not at process start: a missing value is
// reported as a status error and retried, never a crash.
type Config struct {
	// APIID / APIHash are the Telegram application credentials.
	APIID   int
	APIHash string
	// SessionFile is the path of the stored MTProto session.
	SessionFile string
	// TargetChannel is the human-readable title of the relay destination.
	TargetChannel string

	// PollInterval is the control-state poll cadence.
	PollInterval time.Duration
	// ConnectBackoff is the sleep applied after a failed connect attempt.
	ConnectBackoff time.Duration
	// DisconnectTimeout bounds cooperative disconnects.
	DisconnectTimeout time.Duration
	// ForwardRetryAfter is how long a pending or failed claim stays
	// exclusive before another attempt may re-claim it.
	ForwardRetryAfter time.Duration
	// BackfillLimit caps how many messages per chat one backfill pass reads.
	BackfillLimit int
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = 3 * time.Second
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = 10 * time.Second
	}
	if c.ForwardRetryAfter <= 0 {
		c.ForwardRetryAfter = 60 * time.Second
	}
	if c.BackfillLimit <= 0 {
		c.BackfillLimit = 100
	}
}

// validate checks the values a connection attempt needs. It returns a
// Configuration error naming the first missing value.
func (c *Config) validate() error {
	switch {
	case c.SessionFile == "":
		return configErr("validate config", fmt.Errorf("session file path is not set"))
	case c.APIID == 0:
		return configErr("validate config", fmt.Errorf("telegram api id is not set"))
	case c.APIHash == "":
		return configErr("validate config", fmt.Errorf("telegram api hash is not set"))
	case c.TargetChannel == "":
		return configErr("validate config", fmt.Errorf("target channel title is not set"))
	}
	return nil
}

// ClientFactory builds a fresh session client. The supervisor calls it once
// per connection lifecycle and discards the result on every disconnect.
type ClientFactory func(cfg Config) (Client, error)

// Supervisor drives the account-session connection state machine. One
// instance per monitored account; all state transitions run sequentially on
// a single loop goroutine. Only the fields behind mu are shared with the
// dispatcher callback, which may fire concurrently with a tick.
type Supervisor struct {
	cfg       Config
	store     Store
	newClient ClientFactory

	mu          sync.Mutex
	state       State
	client      Client
	handlerSet  bool
	targetID    int64
	targetTitle string

	// tick-local bookkeeping, loop goroutine only
	lastRestartSeen *time.Time
	connectedOnce   bool

	// status write de-duplication, loop goroutine only
	wroteConnected *bool
	wroteError     *string

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewSupervisor wires a supervisor over the durable store and a client
// factory. Missing durations fall back to the documented defaults.
func NewSupervisor(cfg Config, store Store, newClient ClientFactory) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{
		cfg:       cfg,
		store:     store,
		newClient: newClient,
		state:     StateDisabled,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the supervision loop. Safe to call once; later calls are
// no-ops.
func (s *Supervisor) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
	})
}

// Stop signals the loop to shut down and waits for it to finish or for ctx
// to expire.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ResolvedTargetID returns the relay destination id once a target has been
// resolved for the current connection.
func (s *Supervisor) ResolvedTargetID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetID, s.targetID != 0
}

// IsTargetChat reports whether id is the resolved relay destination.
func (s *Supervisor) IsTargetChat(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetID != 0 && id == s.targetID
}

// ShouldMonitorChat centralizes the loop-protection rule: the relay
// destination is never a monitoring source.
func (s *Supervisor) ShouldMonitorChat(id int64) bool {
	return !s.IsTargetChat(id)
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// run is the supervision loop. A panic inside a tick is recorded as an
// error event and re-raised so the host process decides on restart policy.
func (s *Supervisor) run(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("supervisor panic: %v", r)
			log.Error().Str("panic", fmt.Sprint(r)).Msg("supervisor loop panicked")
			_ = s.store.AddErrorEvent(context.Background(), msg)
			_ = s.store.SetError(context.Background(), msg)
			panic(r)
		}
	}()

	log.Info().Msg("supervisor started")
	for {
		wait := s.tick(ctx)
		select {
		case <-s.stopCh:
			s.shutdown()
			return
		case <-ctx.Done():
			s.shutdown()
			return
		case <-time.After(wait):
		}
	}
}

// tick executes one pass of the state machine and returns how long to sleep
// before the next one.
func (s *Supervisor) tick(ctx context.Context) time.Duration {
	cs, err := s.store.ControlState(ctx)
	if err != nil {
		log.Error().Err(err).Msg("read control state")
		return s.cfg.PollInterval
	}

	// Soft restart: a changed restart timestamp drops the connection
	// without stopping the process. The new value is remembered so one
	// request triggers exactly one restart.
	if restartRequested(s.lastRestartSeen, cs.RestartRequestedAt) {
		s.lastRestartSeen = cs.RestartRequestedAt
		s.setState(StateRestartPending)
		log.Info().Msg("soft restart requested, dropping connection")
		s.disconnect(ctx)
		s.reportConnected(ctx, false)
		return s.cfg.PollInterval
	}
	s.lastRestartSeen = cs.RestartRequestedAt

	if !cs.Enabled {
		if s.hasClient() {
			log.Info().Msg("monitoring disabled, disconnecting")
			s.disconnect(ctx)
		}
		s.setState(StateDisabled)
		s.reportConnected(ctx, false)
		return s.cfg.PollInterval
	}

	if err := s.ensureConnected(ctx); err != nil {
		s.setState(StateBackingOff)
		s.reportFailure(ctx, err)
		if KindOf(err) == KindTransport {
			s.disconnect(ctx)
			s.reportConnected(ctx, false)
			return s.cfg.ConnectBackoff
		}
		// Configuration and resolution failures leave a live session
		// alone: an ambiguous title clears when the operator renames a
		// channel, and reconnecting every poll would not help.
		s.reportConnected(ctx, false)
		return s.cfg.PollInterval
	}

	s.setState(StateConnected)
	s.reportConnected(ctx, true)
	s.reportError(ctx, "")
	return s.cfg.PollInterval
}

// restartRequested reports whether next is a restart signal seen has not
// observed yet. Timestamps strictly increase per request, so any difference
// from the last observed value counts.
func restartRequested(seen, next *time.Time) bool {
	if next == nil {
		return false
	}
	return seen == nil || !next.Equal(*seen)
}

func (s *Supervisor) hasClient() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// ensureConnected brings the connection to a usable state: a live
// authorized client with the target resolved and the dispatcher installed.
// Idempotent per tick; once connected each pass only refreshes the target
// resolution cache.
func (s *Supervisor) ensureConnected(ctx context.Context) error {
	if err := s.cfg.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		s.setState(StateConnecting)
		if s.connectedOnce {
			metricReconnects.Inc()
		}
		c, err := s.newClient(s.cfg)
		if err != nil {
			return transportErr("build client", err)
		}
		if err := c.Connect(ctx); err != nil {
			return transportErr("connect", err)
		}

		ok, err := c.Authorized(ctx)
		if err != nil {
			disconnectQuietly(c, s.cfg.DisconnectTimeout)
			return transportErr("check authorization", err)
		}
		if !ok {
			disconnectQuietly(c, s.cfg.DisconnectTimeout)
			return transportErr("check authorization",
				fmt.Errorf("%w: session file holds no valid credentials", ErrNotAuthorized))
		}

		s.mu.Lock()
		s.client = c
		s.handlerSet = false
		s.mu.Unlock()
		s.connectedOnce = true
		client = c
		log.Info().Msg("session connected")
	}

	dialogs, err := client.Dialogs(ctx)
	if err != nil {
		return transportErr("list dialogs", err)
	}

	target, err := ResolveTarget(dialogs, s.cfg.TargetChannel)
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed := target.ID != s.targetID || target.Title != s.targetTitle
	s.targetID = target.ID
	s.targetTitle = target.Title
	installed := s.handlerSet
	if !installed {
		s.handlerSet = true
	}
	s.mu.Unlock()

	if changed {
		s.reportEvent(ctx, fmt.Sprintf("target channel resolved: %q (id %d)", target.Title, target.ID))
		log.Info().Int64("target_id", target.ID).Str("title", target.Title).Msg("target channel resolved")
	}

	if !installed {
		client.OnNewMessage(func(m Message) { s.handleEvent(ctx, m) })
		// Closing gaps since the last checkpoint is best effort; a failed
		// backfill never blocks going live.
		if err := s.backfill(ctx, client, dialogs); err != nil {
			log.Warn().Err(err).Msg("backfill failed")
			s.reportEvent(ctx, truncateEvent("backfill failed: "+err.Error()))
		}
	}

	return nil
}

// disconnect tears down the current client, bounded by the disconnect
// timeout. Errors are swallowed; correctness is re-established on the next
// connect attempt.
func (s *Supervisor) disconnect(ctx context.Context) {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.handlerSet = false
	s.targetID = 0
	s.targetTitle = ""
	s.mu.Unlock()

	if client == nil {
		return
	}
	disconnectQuietly(client, s.cfg.DisconnectTimeout)
	log.Info().Msg("session disconnected")
}

func disconnectQuietly(c Client, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("disconnect error ignored")
	}
}

// shutdown runs the stop path: disconnect, report, final state.
func (s *Supervisor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DisconnectTimeout)
	defer cancel()

	s.disconnect(ctx)
	s.reportConnected(ctx, false)
	s.reportEvent(ctx, "monitor stopped")
	s.setState(StateStopped)
	log.Info().Msg("supervisor stopped")
}

// reportConnected writes the connected flag only when it changed since the
// last write, keeping the 1s poll from hammering the store.
func (s *Supervisor) reportConnected(ctx context.Context, connected bool) {
	if s.wroteConnected != nil && *s.wroteConnected == connected {
		return
	}
	if err := s.store.SetConnected(ctx, connected); err != nil {
		log.Error().Err(err).Msg("write connected status")
		return
	}
	s.wroteConnected = &connected
	if connected {
		metricConnected.Set(1)
	} else {
		metricConnected.Set(0)
	}
}

// reportError mirrors reportConnected for the last-error field. An empty
// string clears it.
func (s *Supervisor) reportError(ctx context.Context, errText string) {
	if s.wroteError != nil && *s.wroteError == errText {
		return
	}
	if err := s.store.SetError(ctx, errText); err != nil {
		log.Error().Err(err).Msg("write error status")
		return
	}
	s.wroteError = &errText
}

// reportFailure records a tick failure in both the status row and the
// append-only error event log.
func (s *Supervisor) reportFailure(ctx context.Context, failure error) {
	msg := failure.Error()
	log.Warn().Str("kind", KindOf(failure).String()).Err(failure).Msg("connection attempt failed")
	s.reportError(ctx, msg)
	if err := s.store.AddErrorEvent(ctx, msg); err != nil {
		log.Error().Err(err).Msg("append error event")
	}
}

func (s *Supervisor) reportEvent(ctx context.Context, message string) {
	if err := s.store.SetEvent(ctx, time.Now().UTC(), message); err != nil {
		log.Error().Err(err).Msg("write status event")
	}
}

func truncateEvent(s string) string {
	const max = 4000
	if len(s) <= max {
		return s
	}
	return s[:max]
}
