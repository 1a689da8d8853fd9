package monitor

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory Store that records every write so tests can
// assert on what the supervisor and dispatcher persisted.
type fakeStore struct {
	mu sync.Mutex

	control    ControlState
	controlErr error

	connectedWrites []bool
	errorWrites     []string
	events          []string
	errorEvents     []string

	claimGrant bool
	claimErr   error
	claims     []claimCall
	sent       []ledgerKey
	failed     []failCall

	checkpoints map[int64]Checkpoint
	upserts     []upsertCall

	keywords    []string
	keywordsErr error

	cleanupStats CleanupStats
	cleanupErr   error
	cleanupRuns  int
}

type ledgerKey struct {
	chatID, messageID int64
}

type claimCall struct {
	ledgerKey
	retryAfter time.Duration
}

type failCall struct {
	ledgerKey
	errText string
}

type upsertCall struct {
	chatID, messageID int64
	date              *time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		claimGrant:  true,
		checkpoints: make(map[int64]Checkpoint),
	}
}

func (f *fakeStore) ControlState(ctx context.Context) (ControlState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.control, f.controlErr
}

func (f *fakeStore) SetConnected(ctx context.Context, connected bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectedWrites = append(f.connectedWrites, connected)
	return nil
}

func (f *fakeStore) SetError(ctx context.Context, errText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorWrites = append(f.errorWrites, errText)
	return nil
}

func (f *fakeStore) SetEvent(ctx context.Context, when time.Time, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, message)
	return nil
}

func (f *fakeStore) Claim(ctx context.Context, chatID, messageID int64, retryAfter time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, claimCall{ledgerKey{chatID, messageID}, retryAfter})
	return f.claimGrant, f.claimErr
}

func (f *fakeStore) MarkSent(ctx context.Context, chatID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, ledgerKey{chatID, messageID})
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, chatID, messageID int64, errText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, failCall{ledgerKey{chatID, messageID}, errText})
	return nil
}

func (f *fakeStore) Checkpoint(ctx context.Context, chatID int64) (*Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.checkpoints[chatID]
	if !ok {
		return nil, nil
	}
	out := cp
	return &out, nil
}

func (f *fakeStore) UpsertCheckpoint(ctx context.Context, chatID, messageID int64, date *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, upsertCall{chatID, messageID, date})
	f.checkpoints[chatID] = Checkpoint{MessageID: messageID, Date: date}
	return nil
}

func (f *fakeStore) AddErrorEvent(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorEvents = append(f.errorEvents, message)
	return nil
}

func (f *fakeStore) Keywords(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keywords...), f.keywordsErr
}

func (f *fakeStore) Cleanup(ctx context.Context, errorDays, ledgerDays int) (CleanupStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupRuns++
	return f.cleanupStats, f.cleanupErr
}

// fakeClient is a scriptable Client.
type fakeClient struct {
	mu sync.Mutex

	connectErr error
	authErr    error
	authorized bool

	dialogs    []Dialog
	dialogsErr error

	history    map[int64][]Message
	historyErr error

	forwardErr error
	forwards   []forwardCall

	handler     func(Message)
	handlerSets int
	disconnects int
}

type forwardCall struct {
	fromChatID, messageID, toChatID int64
}

func newFakeClient(dialogs ...Dialog) *fakeClient {
	return &fakeClient{
		authorized: true,
		dialogs:    dialogs,
		history:    make(map[int64][]Message),
	}
}

func (f *fakeClient) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeClient) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeClient) Authorized(ctx context.Context) (bool, error) {
	return f.authorized, f.authErr
}

func (f *fakeClient) Dialogs(ctx context.Context) ([]Dialog, error) {
	return f.dialogs, f.dialogsErr
}

func (f *fakeClient) History(ctx context.Context, chatID, minID int64, limit int) ([]Message, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	var out []Message
	for _, m := range f.history[chatID] {
		if m.ID > minID {
			out = append(out, m)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeClient) Forward(ctx context.Context, fromChatID, messageID, toChatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forwardErr != nil {
		return f.forwardErr
	}
	f.forwards = append(f.forwards, forwardCall{fromChatID, messageID, toChatID})
	return nil
}

func (f *fakeClient) OnNewMessage(fn func(Message)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = fn
	f.handlerSets++
}

// testConfig returns a valid connect-time configuration with short timings.
func testConfig() Config {
	return Config{
		APIID:             1,
		APIHash:           "hash",
		SessionFile:       "test.session",
		TargetChannel:     "Target Channel",
		PollInterval:      time.Millisecond,
		ConnectBackoff:    2 * time.Millisecond,
		DisconnectTimeout: 10 * time.Millisecond,
		ForwardRetryAfter: time.Minute,
		BackfillLimit:     50,
	}
}
