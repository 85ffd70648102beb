package quota

import (
	"errors"
	"testing"
	"time"

	"github.com/chirpwire/chirpd/pkg/social"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DailyPostBudget != 17 {
		t.Errorf("Expected daily post budget 17, got %d", cfg.DailyPostBudget)
	}
	if cfg.PostRatio != 0.2 {
		t.Errorf("Expected post ratio 0.2, got %v", cfg.PostRatio)
	}
	if cfg.ReplyRatio != 0.8 {
		t.Errorf("Expected reply ratio 0.8, got %v", cfg.ReplyRatio)
	}
	if cfg.MonthlyReadBudget != 100 {
		t.Errorf("Expected monthly read budget 100, got %d", cfg.MonthlyReadBudget)
	}
}

func TestNewTrackerValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *Config)
		wantErr bool
	}{
		{name: "valid_defaults", modify: func(cfg *Config) {}, wantErr: false},
		{name: "zero_daily_budget", modify: func(cfg *Config) { cfg.DailyPostBudget = 0 }, wantErr: true},
		{name: "negative_post_ratio", modify: func(cfg *Config) { cfg.PostRatio = -0.1 }, wantErr: true},
		{name: "post_ratio_above_one", modify: func(cfg *Config) { cfg.PostRatio = 1.2 }, wantErr: true},
		{name: "negative_reply_ratio", modify: func(cfg *Config) { cfg.ReplyRatio = -0.5 }, wantErr: true},
		{name: "zero_read_budget", modify: func(cfg *Config) { cfg.MonthlyReadBudget = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			_, err := NewTracker(cfg)
			if tt.wantErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestCaps(t *testing.T) {
	tests := []struct {
		budget       int
		wantPostCap  int
		wantReplyCap int
	}{
		{budget: 17, wantPostCap: 3, wantReplyCap: 13},
		{budget: 10, wantPostCap: 2, wantReplyCap: 8},
		{budget: 5, wantPostCap: 1, wantReplyCap: 4},
		{budget: 1, wantPostCap: 0, wantReplyCap: 0},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.DailyPostBudget = tt.budget

		tracker, err := NewTracker(cfg)
		if err != nil {
			t.Fatalf("NewTracker failed: %v", err)
		}

		if got := tracker.PostCap(); got != tt.wantPostCap {
			t.Errorf("Budget %d: PostCap() = %d, want %d", tt.budget, got, tt.wantPostCap)
		}
		if got := tracker.ReplyCap(); got != tt.wantReplyCap {
			t.Errorf("Budget %d: ReplyCap() = %d, want %d", tt.budget, got, tt.wantReplyCap)
		}
	}
}

func TestTryReservePostCap(t *testing.T) {
	tracker, err := NewTracker(DefaultConfig())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	// Default budget 17 gives a post cap of 3.
	for i := 0; i < 3; i++ {
		if err := tracker.TryReserve(KindPost); err != nil {
			t.Fatalf("Reservation %d should succeed, got %v", i+1, err)
		}
		tracker.RecordUsed(KindPost)
	}

	err = tracker.TryReserve(KindPost)
	if err == nil {
		t.Fatal("Expected rejection at post cap, got nil")
	}

	var quotaErr *social.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("Expected *social.QuotaExceededError, got %T", err)
	}
	if quotaErr.Kind != "post" || quotaErr.Window != "daily" {
		t.Errorf("Unexpected rejection payload: kind=%s window=%s", quotaErr.Kind, quotaErr.Window)
	}

	// Post cap rejection must not touch the reply sub-cap.
	if err := tracker.TryReserve(KindReply); err != nil {
		t.Errorf("Reply reservation should still succeed, got %v", err)
	}
}

func TestTryReserveReplyCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyPostBudget = 5 // reply cap 4

	tracker, err := NewTracker(cfg)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := tracker.TryReserve(KindReply); err != nil {
			t.Fatalf("Reply reservation %d should succeed, got %v", i+1, err)
		}
		tracker.RecordUsed(KindReply)
	}

	if err := tracker.TryReserve(KindReply); err == nil {
		t.Error("Expected rejection at reply cap, got nil")
	}
}

func TestAbsoluteDailyBudgetSharedAcrossKinds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyPostBudget = 4
	cfg.PostRatio = 1.0
	cfg.ReplyRatio = 1.0

	tracker, err := NewTracker(cfg)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	// With both ratios at 1.0 only the absolute budget gates. Posts and
	// replies share it.
	tracker.RecordUsed(KindPost)
	tracker.RecordUsed(KindReply)
	tracker.RecordUsed(KindReply)
	tracker.RecordUsed(KindPost)

	if err := tracker.TryReserve(KindPost); err == nil {
		t.Error("Expected post rejection when absolute budget is spent")
	}
	if err := tracker.TryReserve(KindReply); err == nil {
		t.Error("Expected reply rejection when absolute budget is spent")
	}
}

func TestTryReserveMonthlyReads(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonthlyReadBudget = 2

	tracker, err := NewTracker(cfg)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := tracker.TryReserve(KindRead); err != nil {
			t.Fatalf("Read reservation %d should succeed, got %v", i+1, err)
		}
		tracker.RecordUsed(KindRead)
	}

	err = tracker.TryReserve(KindRead)
	if err == nil {
		t.Fatal("Expected rejection at monthly read budget, got nil")
	}

	var quotaErr *social.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("Expected *social.QuotaExceededError, got %T", err)
	}
	if quotaErr.Window != "monthly" {
		t.Errorf("Expected monthly window, got %s", quotaErr.Window)
	}
}

func TestTryReserveHasNoSideEffects(t *testing.T) {
	tracker, err := NewTracker(DefaultConfig())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	// Reservations without RecordUsed never consume budget.
	for i := 0; i < 50; i++ {
		if err := tracker.TryReserve(KindPost); err != nil {
			t.Fatalf("Reservation %d should succeed, got %v", i+1, err)
		}
	}

	usage := tracker.Usage()
	if usage.DailyPosts != 0 {
		t.Errorf("Expected 0 posts used, got %d", usage.DailyPosts)
	}
}

func TestTryReserveUnknownKind(t *testing.T) {
	tracker, err := NewTracker(DefaultConfig())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	if err := tracker.TryReserve(Kind("bogus")); err == nil {
		t.Error("Expected error for unknown kind")
	}
}

func TestDailyWindowReset(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.DailyPostBudget = 5 // post cap 1
	cfg.Now = func() time.Time { return now }

	tracker, err := NewTracker(cfg)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	tracker.RecordUsed(KindPost)
	if err := tracker.TryReserve(KindPost); err == nil {
		t.Fatal("Expected rejection before boundary")
	}

	// Cross midnight UTC; the window resets lazily on next access.
	now = time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)

	if err := tracker.TryReserve(KindPost); err != nil {
		t.Errorf("Expected reservation to succeed after daily reset, got %v", err)
	}

	usage := tracker.Usage()
	if usage.DailyPosts != 0 || usage.DailyReplies != 0 {
		t.Errorf("Expected daily counters reset, got posts=%d replies=%d",
			usage.DailyPosts, usage.DailyReplies)
	}
}

func TestDailyResetPreservesMonthlyReads(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return now }

	tracker, err := NewTracker(cfg)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	tracker.RecordUsed(KindRead)
	tracker.RecordUsed(KindRead)
	tracker.RecordUsed(KindPost)

	// Next day, same month.
	now = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	usage := tracker.Usage()
	if usage.DailyPosts != 0 {
		t.Errorf("Expected daily posts reset, got %d", usage.DailyPosts)
	}
	if usage.MonthlyReads != 2 {
		t.Errorf("Expected monthly reads preserved at 2, got %d", usage.MonthlyReads)
	}
}

func TestMonthlyWindowReset(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.MonthlyReadBudget = 1
	cfg.Now = func() time.Time { return now }

	tracker, err := NewTracker(cfg)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	tracker.RecordUsed(KindRead)
	if err := tracker.TryReserve(KindRead); err == nil {
		t.Fatal("Expected rejection before month boundary")
	}

	now = time.Date(2026, 4, 1, 0, 1, 0, 0, time.UTC)

	if err := tracker.TryReserve(KindRead); err != nil {
		t.Errorf("Expected reservation to succeed after monthly reset, got %v", err)
	}
}

func TestUsageSnapshot(t *testing.T) {
	tracker, err := NewTracker(DefaultConfig())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	tracker.RecordUsed(KindPost)
	tracker.RecordUsed(KindReply)
	tracker.RecordUsed(KindReply)
	tracker.RecordUsed(KindRead)

	usage := tracker.Usage()
	if usage.DailyPosts != 1 {
		t.Errorf("Expected 1 daily post, got %d", usage.DailyPosts)
	}
	if usage.DailyReplies != 2 {
		t.Errorf("Expected 2 daily replies, got %d", usage.DailyReplies)
	}
	if usage.MonthlyReads != 1 {
		t.Errorf("Expected 1 monthly read, got %d", usage.MonthlyReads)
	}
	if usage.PostCap != 3 || usage.ReplyCap != 13 {
		t.Errorf("Unexpected caps: post=%d reply=%d", usage.PostCap, usage.ReplyCap)
	}
	if usage.DailyBudget != 17 || usage.ReadBudget != 100 {
		t.Errorf("Unexpected budgets: daily=%d read=%d", usage.DailyBudget, usage.ReadBudget)
	}
}
