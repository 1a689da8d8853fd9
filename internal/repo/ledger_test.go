package repo

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/dkhv/tg-monitor/internal/domain"
)

// backdateClaim moves a claim's timestamp into the past so retry-window
// tests don't have to sleep.
func backdateClaim(t *testing.T, db *gorm.DB, chatID, messageID int64, age time.Duration) {
	t.Helper()
	past := time.Now().UTC().Add(-age)
	if err := db.Model(&domain.ForwardClaim{}).
		Where("source_chat_id = ? AND source_message_id = ?", chatID, messageID).
		Update("claimed_at", past).Error; err != nil {
		t.Fatalf("backdate claim: %v", err)
	}
}

func TestClaimForward_FirstClaimGranted_SecondDenied(t *testing.T) {
	db := newTestDB(t)

	got, err := ClaimForward(ctxb(), db, 10, 100, 60*time.Second)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !got {
		t.Fatalf("first claim should be granted")
	}

	got, err = ClaimForward(ctxb(), db, 10, 100, 60*time.Second)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if got {
		t.Fatalf("second claim inside the retry window should be denied")
	}
}

func TestClaimForward_SingleWinnerUnderContention(t *testing.T) {
	db := newTestDB(t)

	const racers = 8
	var wg sync.WaitGroup
	var grants int32
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := ClaimForward(ctxb(), db, 42, 7, 60*time.Second)
			if err != nil {
				t.Errorf("racing claim: %v", err)
				return
			}
			if got {
				atomic.AddInt32(&grants, 1)
			}
		}()
	}
	wg.Wait()

	if grants != 1 {
		t.Fatalf("expected exactly one granted claim, got %d", grants)
	}
	var rows int64
	if err := db.Model(&domain.ForwardClaim{}).
		Where("source_chat_id = 42 AND source_message_id = 7").Count(&rows).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one ledger row, got %d", rows)
	}
}

func TestClaimForward_SentIsTerminal(t *testing.T) {
	db := newTestDB(t)

	if got, _ := ClaimForward(ctxb(), db, 10, 100, 60*time.Second); !got {
		t.Fatalf("initial claim should be granted")
	}
	if err := MarkSent(ctxb(), db, 10, 100); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	// Even a thoroughly stale sent row must never be re-claimed.
	backdateClaim(t, db, 10, 100, 48*time.Hour)
	if got, _ := ClaimForward(ctxb(), db, 10, 100, time.Second); got {
		t.Fatalf("claim after sent must be denied forever")
	}

	var row domain.ForwardClaim
	if err := db.Where("source_chat_id = ? AND source_message_id = ?", int64(10), int64(100)).
		First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.Status != domain.ClaimSent || row.SentAt == nil {
		t.Fatalf("expected terminal sent row, got %+v", row)
	}
}

func TestClaimForward_FailedRetriesAfterWindow(t *testing.T) {
	db := newTestDB(t)

	if got, _ := ClaimForward(ctxb(), db, 10, 101, 5*time.Second); !got {
		t.Fatalf("initial claim should be granted")
	}
	if err := MarkFailed(ctxb(), db, 10, 101, "x"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	// Inside the window the failed claim is still owned.
	if got, _ := ClaimForward(ctxb(), db, 10, 101, 5*time.Second); got {
		t.Fatalf("claim inside the retry window should be denied")
	}

	// Past the window the claim becomes available again.
	backdateClaim(t, db, 10, 101, 6*time.Second)
	got, err := ClaimForward(ctxb(), db, 10, 101, 5*time.Second)
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if !got {
		t.Fatalf("claim after the retry window should be granted")
	}

	var row domain.ForwardClaim
	if err := db.Where("source_chat_id = ? AND source_message_id = ?", int64(10), int64(101)).
		First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.Status != domain.ClaimPending {
		t.Fatalf("re-claimed row should be pending, got %q", row.Status)
	}
	if row.FailCount != 1 {
		t.Fatalf("fail count should survive re-claim, got %d", row.FailCount)
	}
}

func TestClaimForward_StalePendingIsReclaimable(t *testing.T) {
	db := newTestDB(t)

	if got, _ := ClaimForward(ctxb(), db, 7, 1, 60*time.Second); !got {
		t.Fatalf("initial claim should be granted")
	}
	// Simulate the claiming process crashing mid-work: the row stays
	// pending and only time releases it.
	backdateClaim(t, db, 7, 1, 2*time.Minute)
	if got, _ := ClaimForward(ctxb(), db, 7, 1, 60*time.Second); !got {
		t.Fatalf("stale pending claim should be re-claimable")
	}
}

func TestClaimForward_DistinctMessagesIndependent(t *testing.T) {
	db := newTestDB(t)

	if got, _ := ClaimForward(ctxb(), db, 10, 1, 60*time.Second); !got {
		t.Fatalf("claim (10,1) should be granted")
	}
	if got, _ := ClaimForward(ctxb(), db, 10, 2, 60*time.Second); !got {
		t.Fatalf("claim (10,2) should be granted")
	}
	if got, _ := ClaimForward(ctxb(), db, 11, 1, 60*time.Second); !got {
		t.Fatalf("claim (11,1) should be granted")
	}
}

func TestMarkFailed_TruncatesAndDefaultsError(t *testing.T) {
	db := newTestDB(t)

	if got, _ := ClaimForward(ctxb(), db, 1, 1, 60*time.Second); !got {
		t.Fatalf("claim should be granted")
	}
	long := strings.Repeat("e", 5000)
	if err := MarkFailed(ctxb(), db, 1, 1, long); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	var row domain.ForwardClaim
	if err := db.Where("source_chat_id = 1 AND source_message_id = 1").First(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.LastError == nil {
		t.Fatalf("expected last error to be set")
	}
	if len(*row.LastError) != 4000 {
		t.Fatalf("expected error truncated to 4000 chars, got %d", len(*row.LastError))
	}

	if err := MarkFailed(ctxb(), db, 1, 1, "   "); err != nil {
		t.Fatalf("mark failed blank: %v", err)
	}
	if err := db.Where("source_chat_id = 1 AND source_message_id = 1").First(&row).Error; err != nil {
		t.Fatalf("reload row: %v", err)
	}
	if row.LastError == nil || *row.LastError != "unknown error" {
		t.Fatalf("blank error should default, got %v", row.LastError)
	}
	if row.FailCount != 2 {
		t.Fatalf("fail count should increment per failure, got %d", row.FailCount)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"UNIQUE constraint failed: forward_claims.source_chat_id", true},
		{"constraint failed: UNIQUE constraint failed: x (1555)", true},
		{"PRIMARY KEY constraint violated", true},
		{"database is locked", false},
	}
	for _, tc := range cases {
		if got := isUniqueViolation(errString(tc.msg)); got != tc.want {
			t.Fatalf("isUniqueViolation(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
