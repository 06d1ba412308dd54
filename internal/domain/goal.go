package domain

import (
	"fmt"
	"time"
)

// GoalStatus represents the lifecycle state of a goal.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusPlanned   GoalStatus = "planned"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusAbandoned GoalStatus = "abandoned"
)

var validGoalStatuses = map[GoalStatus]bool{
	GoalStatusActive:    true,
	GoalStatusPlanned:   true,
	GoalStatusCompleted: true,
	GoalStatusAbandoned: true,
}

// IsValid returns true if the status is one of the recognized values.
func (s GoalStatus) IsValid() bool {
	return validGoalStatuses[s]
}

// Goal is a user objective handed to the Director for decomposition.
type Goal struct {
	ID          string
	Description string
	Category    string
	Priority    Priority
	Status      GoalStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the minimum required fields and enum values.
func (g *Goal) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("goal: id is required")
	}
	if g.Description == "" {
		return fmt.Errorf("goal: description is required")
	}
	if !g.Status.IsValid() {
		return fmt.Errorf("goal: invalid status %q", g.Status)
	}
	if !g.Priority.IsValid() {
		return fmt.Errorf("goal: invalid priority %q", g.Priority)
	}
	return nil
}

// GoalPhase is one stage of a goal plan. Skills in a parallel phase run
// concurrently; DependsOn, when non-nil, is the index of a prerequisite
// phase.
type GoalPhase struct {
	Name      string
	Skills    []string
	Parallel  bool
	DependsOn *int
}

// GoalPlan is the Director's phase breakdown of a goal.
type GoalPlan struct {
	GoalID    string
	Phases    []GoalPhase
	CreatedAt time.Time
}

// Validate checks phase shape and dependency indices.
func (p *GoalPlan) Validate() error {
	if p.GoalID == "" {
		return fmt.Errorf("plan: goal id is required")
	}
	for i, phase := range p.Phases {
		if len(phase.Skills) == 0 {
			return fmt.Errorf("plan: phase %d has no skills", i)
		}
		if phase.DependsOn != nil && (*phase.DependsOn < 0 || *phase.DependsOn >= i) {
			return fmt.Errorf("plan: phase %d depends on invalid phase %d", i, *phase.DependsOn)
		}
	}
	return nil
}
