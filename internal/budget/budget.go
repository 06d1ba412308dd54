// Package budget tracks model spend against a fixed allowance and converts
// spend pressure into the priority gates the scheduler and executor honor.
package budget

import (
	"encoding/json"
	"sync"
	"time"

	"cadence/internal/domain"
	"cadence/internal/faults"
	"cadence/internal/logging"
	"cadence/internal/workspace"
)

// ledgerPath is the durable cost ledger, relative to the workspace root.
const ledgerPath = "budget/ledger.json"

// CostEntry is one charge against the budget.
type CostEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	TaskID       string    `json:"task_id,omitempty"`
	Skill        string    `json:"skill,omitempty"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
}

// modelRate is USD per million tokens.
type modelRate struct {
	Input  float64
	Output float64
}

// rates by model tier. Unknown tiers charge the standard rate.
var rates = map[string]modelRate{
	"small":    {Input: 0.80, Output: 4.00},
	"standard": {Input: 3.00, Output: 15.00},
	"large":    {Input: 15.00, Output: 75.00},
}

// Config holds the budget knobs.
type Config struct {
	// TotalBudget in USD. Zero or negative means unlimited.
	TotalBudget float64
	// ThrottleModelTier is forced onto executions while the budget is at
	// the throttle level. Empty disables the override.
	ThrottleModelTier string
}

// Tracker is the budget provider. The ledger file is the durable record;
// the in-memory aggregate is rebuilt from it on construction.
type Tracker struct {
	ws     *workspace.Workspace
	config Config
	logger *logging.Logger
	clock  func() time.Time

	mu      sync.Mutex
	entries []CostEntry
	spent   float64
}

// New builds a Tracker, restoring any existing ledger.
func New(ws *workspace.Workspace, config Config, logger *logging.Logger) (*Tracker, error) {
	t := &Tracker{
		ws:     ws,
		config: config,
		logger: logging.OrNop(logger).WithModule("budget"),
		clock:  time.Now,
	}
	exists, err := ws.FileExists(ledgerPath)
	if err != nil {
		return nil, err
	}
	if exists {
		raw, err := ws.ReadFile(ledgerPath)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &t.entries); err != nil {
			return nil, faults.Wrap(faults.CodeParseError, "budget ledger is corrupt", err)
		}
		for _, entry := range t.entries {
			t.spent += entry.CostUSD
		}
	}
	return t, nil
}

// SetClock overrides the tracker clock. Tests only.
func (t *Tracker) SetClock(clock func() time.Time) { t.clock = clock }

// RecordTokens charges token usage at the model tier's rate and persists
// the ledger.
func (t *Tracker) RecordTokens(taskID, skill, model string, inputTokens, outputTokens int) error {
	rate, ok := rates[model]
	if !ok {
		rate = rates["standard"]
	}
	cost := float64(inputTokens)*rate.Input/1e6 + float64(outputTokens)*rate.Output/1e6
	return t.Record(CostEntry{
		Timestamp:    t.clock().UTC(),
		TaskID:       taskID,
		Skill:        skill,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
	})
}

// Record appends one entry and persists the ledger.
func (t *Tracker) Record(entry CostEntry) error {
	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.spent += entry.CostUSD
	raw, err := json.MarshalIndent(t.entries, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return faults.Wrap(faults.CodeWriteFailed, "could not encode budget ledger", err)
	}
	if err := t.ws.WriteFile(ledgerPath, string(raw)); err != nil {
		return err
	}
	t.logger.Debug("cost recorded", "task_id", entry.TaskID, "cost_usd", entry.CostUSD, "spent", t.Spent())
	return nil
}

// Spent reports the aggregate spend in USD.
func (t *Tracker) Spent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// Entries returns a copy of the ledger.
func (t *Tracker) Entries() []CostEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]CostEntry(nil), t.entries...)
}

// State snapshots current spend pressure. Percent-used thresholds decide the
// level, and the level decides which priorities may run:
// normal below 50, warning below 75, throttle below 90, critical below 100,
// exhausted at or past the full budget.
func (t *Tracker) State() domain.BudgetState {
	t.mu.Lock()
	spent := t.spent
	t.mu.Unlock()

	state := domain.BudgetState{
		TotalBudget: t.config.TotalBudget,
		Spent:       spent,
	}
	if t.config.TotalBudget <= 0 {
		state.Level = domain.BudgetNormal
		state.AllowedPriorities = allPriorities()
		return state
	}

	state.PercentUsed = spent / t.config.TotalBudget * 100
	switch {
	case state.PercentUsed < 50:
		state.Level = domain.BudgetNormal
		state.AllowedPriorities = allPriorities()
	case state.PercentUsed < 75:
		state.Level = domain.BudgetWarning
		state.AllowedPriorities = []domain.Priority{domain.PriorityP0, domain.PriorityP1, domain.PriorityP2}
	case state.PercentUsed < 90:
		state.Level = domain.BudgetThrottle
		state.AllowedPriorities = []domain.Priority{domain.PriorityP0, domain.PriorityP1}
		state.ModelOverride = t.config.ThrottleModelTier
	case state.PercentUsed < 100:
		state.Level = domain.BudgetCritical
		state.AllowedPriorities = []domain.Priority{domain.PriorityP0}
	default:
		state.Level = domain.BudgetExhausted
	}
	return state
}

func allPriorities() []domain.Priority {
	return []domain.Priority{domain.PriorityP0, domain.PriorityP1, domain.PriorityP2, domain.PriorityP3}
}
