package domain

// BudgetLevel is a coarse cost-pressure indicator that gates which
// priorities may run.
type BudgetLevel string

const (
	BudgetNormal    BudgetLevel = "normal"
	BudgetWarning   BudgetLevel = "warning"
	BudgetThrottle  BudgetLevel = "throttle"
	BudgetCritical  BudgetLevel = "critical"
	BudgetExhausted BudgetLevel = "exhausted"
)

// BudgetState is a snapshot of spend pressure from the budget provider.
type BudgetState struct {
	TotalBudget       float64
	Spent             float64
	PercentUsed       float64
	Level             BudgetLevel
	AllowedPriorities []Priority
	ModelOverride     string
}

// Allows reports whether work at priority p may run under this budget.
func (b BudgetState) Allows(p Priority) bool {
	for _, allowed := range b.AllowedPriorities {
		if allowed == p {
			return true
		}
	}
	return false
}
