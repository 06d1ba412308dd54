package budget

import (
	"math"
	"testing"

	"cadence/internal/domain"
	"cadence/internal/logging"
	"cadence/internal/workspace"
)

func newTestTracker(t *testing.T, total float64) (*Tracker, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), logging.Nop())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	tracker, err := New(ws, Config{TotalBudget: total, ThrottleModelTier: "small"}, logging.Nop())
	if err != nil {
		t.Fatalf("budget.New: %v", err)
	}
	return tracker, ws
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestRecordTokensChargesByTier(t *testing.T) {
	tracker, _ := newTestTracker(t, 100)
	if err := tracker.RecordTokens("t1", "copywriting", "standard", 1_000_000, 1_000_000); err != nil {
		t.Fatalf("RecordTokens: %v", err)
	}
	// 1M in at $3 + 1M out at $15.
	if got := tracker.Spent(); !approx(got, 18) {
		t.Errorf("spent = %v, want 18", got)
	}

	if err := tracker.RecordTokens("t2", "seo", "small", 500_000, 0); err != nil {
		t.Fatalf("RecordTokens: %v", err)
	}
	if got := tracker.Spent(); !approx(got, 18.4) {
		t.Errorf("spent = %v, want 18.4", got)
	}

	// Unknown tiers charge the standard rate.
	if err := tracker.RecordTokens("t3", "seo", "mystery", 1_000_000, 0); err != nil {
		t.Fatalf("RecordTokens: %v", err)
	}
	if got := tracker.Spent(); !approx(got, 21.4) {
		t.Errorf("spent = %v, want 21.4", got)
	}
}

func TestLedgerSurvivesRestart(t *testing.T) {
	tracker, ws := newTestTracker(t, 100)
	if err := tracker.Record(CostEntry{TaskID: "t1", CostUSD: 12.5}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tracker.Record(CostEntry{TaskID: "t2", CostUSD: 7.5}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	restored, err := New(ws, Config{TotalBudget: 100}, logging.Nop())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := restored.Spent(); got != 20 {
		t.Errorf("restored spent = %v, want 20", got)
	}
	if entries := restored.Entries(); len(entries) != 2 || entries[0].TaskID != "t1" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestCorruptLedgerFailsLoad(t *testing.T) {
	_, ws := newTestTracker(t, 100)
	if err := ws.WriteFile("budget/ledger.json", "not json"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := New(ws, Config{TotalBudget: 100}, logging.Nop()); err == nil {
		t.Fatal("expected load error for corrupt ledger")
	}
}

func TestStateThresholds(t *testing.T) {
	cases := []struct {
		name      string
		spent     float64
		level     domain.BudgetLevel
		allowP2   bool
		allowP1   bool
		allowP0   bool
		override  string
	}{
		{"normal", 10, domain.BudgetNormal, true, true, true, ""},
		{"warning", 60, domain.BudgetWarning, true, true, true, ""},
		{"throttle", 80, domain.BudgetThrottle, false, true, true, "small"},
		{"critical", 95, domain.BudgetCritical, false, false, true, ""},
		{"exhausted", 100, domain.BudgetExhausted, false, false, false, ""},
		{"over", 130, domain.BudgetExhausted, false, false, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tracker, _ := newTestTracker(t, 100)
			if err := tracker.Record(CostEntry{CostUSD: tc.spent}); err != nil {
				t.Fatalf("Record: %v", err)
			}
			state := tracker.State()
			if state.Level != tc.level {
				t.Errorf("level = %s, want %s", state.Level, tc.level)
			}
			if state.Allows(domain.PriorityP2) != tc.allowP2 {
				t.Errorf("P2 allowed = %v", !tc.allowP2)
			}
			if state.Allows(domain.PriorityP1) != tc.allowP1 {
				t.Errorf("P1 allowed = %v", !tc.allowP1)
			}
			if state.Allows(domain.PriorityP0) != tc.allowP0 {
				t.Errorf("P0 allowed = %v", !tc.allowP0)
			}
			if state.ModelOverride != tc.override {
				t.Errorf("override = %q, want %q", state.ModelOverride, tc.override)
			}
		})
	}
}

func TestUnlimitedBudgetAlwaysNormal(t *testing.T) {
	tracker, _ := newTestTracker(t, 0)
	if err := tracker.Record(CostEntry{CostUSD: 10_000}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	state := tracker.State()
	if state.Level != domain.BudgetNormal || !state.Allows(domain.PriorityP3) {
		t.Errorf("state = %+v", state)
	}
}
