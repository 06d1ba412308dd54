package domain

import (
	"fmt"
	"time"
)

// StepType discriminates pipeline step variants.
type StepType string

const (
	StepSequential StepType = "sequential"
	StepParallel   StepType = "parallel"
	StepReview     StepType = "review"
)

// PipelineStep is a tagged step variant. Skill is set for sequential steps,
// Skills for parallel steps, Reviewer for review steps.
type PipelineStep struct {
	Type     StepType
	Skill    string
	Skills   []string
	Reviewer string
}

// Sequential builds a single-skill step.
func Sequential(skill string) PipelineStep {
	return PipelineStep{Type: StepSequential, Skill: skill}
}

// Parallel builds a fan-out step over several skills.
func Parallel(skills ...string) PipelineStep {
	return PipelineStep{Type: StepParallel, Skills: skills}
}

// ReviewStep builds a pause-for-review step.
func ReviewStep(reviewer string) PipelineStep {
	return PipelineStep{Type: StepReview, Reviewer: reviewer}
}

// Validate checks the variant payload matches its tag.
func (s PipelineStep) Validate() error {
	switch s.Type {
	case StepSequential:
		if s.Skill == "" {
			return fmt.Errorf("step: sequential variant requires a skill")
		}
	case StepParallel:
		if len(s.Skills) == 0 {
			return fmt.Errorf("step: parallel variant requires at least one skill")
		}
	case StepReview:
		if s.Reviewer == "" {
			return fmt.Errorf("step: review variant requires a reviewer")
		}
	default:
		return fmt.Errorf("step: unknown type %q", s.Type)
	}
	return nil
}

// TriggerType discriminates how a pipeline template is activated.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
	TriggerEvent    TriggerType = "event"
)

// PipelineTrigger is the tagged activation source of a template. Cron is set
// for schedule triggers, EventType for event triggers.
type PipelineTrigger struct {
	Type      TriggerType
	Cron      string
	EventType EventType
}

// PipelineDefinition is a reusable pipeline template.
type PipelineDefinition struct {
	ID              string
	Name            string
	Description     string
	Steps           []PipelineStep
	DefaultPriority Priority
	Trigger         PipelineTrigger
}

// Validate checks the template is runnable.
func (d *PipelineDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("pipeline: id is required")
	}
	if d.Name == "" {
		return fmt.Errorf("pipeline: name is required")
	}
	for i, step := range d.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("pipeline %s step %d: %w", d.ID, i, err)
		}
	}
	return nil
}

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

var validRunStatuses = map[RunStatus]bool{
	RunStatusPending:   true,
	RunStatusRunning:   true,
	RunStatusPaused:    true,
	RunStatusCompleted: true,
	RunStatusFailed:    true,
	RunStatusCancelled: true,
}

// IsValid returns true if the status is one of the recognized values.
func (s RunStatus) IsValid() bool {
	return validRunStatuses[s]
}

// IsTerminal reports whether the run has reached a final state. Terminal
// runs, and only terminal runs, carry a non-nil CompletedAt.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// PipelineRun is a runtime instance of a PipelineDefinition.
//
// CurrentStepIndex is the index of the step executing or about to execute;
// on pause it points at the review step that caused the pause. TaskIDs is
// append-only and lists every task created on behalf of this run, in
// creation order, populated before each step executes.
type PipelineRun struct {
	ID               string
	PipelineID       string
	GoalID           string
	StartedAt        time.Time
	CompletedAt      *time.Time
	Status           RunStatus
	CurrentStepIndex int
	TaskIDs          []string
}
