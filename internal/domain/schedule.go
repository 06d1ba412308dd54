package domain

import (
	"fmt"
	"strings"
	"time"
)

// GoalPipelinePrefix marks a ScheduleEntry.PipelineID that triggers goal
// creation instead of a pipeline template; the suffix is the goal type.
const GoalPipelinePrefix = "goal:"

// ScheduleEntry is a cron-driven pipeline or goal activation.
type ScheduleEntry struct {
	ID           string
	Name         string
	Cron         string
	PipelineID   string
	Enabled      bool
	Priority     Priority
	GoalCategory string
	Description  string
}

// IsGoalTrigger reports whether the entry creates a goal rather than
// starting a pipeline template.
func (e ScheduleEntry) IsGoalTrigger() bool {
	return strings.HasPrefix(e.PipelineID, GoalPipelinePrefix)
}

// GoalType returns the goal type suffix for goal-trigger entries.
func (e ScheduleEntry) GoalType() string {
	return strings.TrimPrefix(e.PipelineID, GoalPipelinePrefix)
}

// Validate checks the minimum required fields.
func (e ScheduleEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("schedule: id is required")
	}
	if e.Cron == "" {
		return fmt.Errorf("schedule: cron is required")
	}
	if e.PipelineID == "" {
		return fmt.Errorf("schedule: pipeline id is required")
	}
	if !e.Priority.IsValid() {
		return fmt.Errorf("schedule: invalid priority %q", e.Priority)
	}
	return nil
}

// ScheduleState is the durable firing record for one schedule, persisted as
// schedules/{id}.json and rebuilt into memory on restart.
type ScheduleState struct {
	ScheduleID     string     `json:"schedule_id"`
	LastFiredAt    *time.Time `json:"last_fired_at,omitempty"`
	LastSkipReason string     `json:"last_skip_reason,omitempty"`
	FireCount      int        `json:"fire_count"`
}
