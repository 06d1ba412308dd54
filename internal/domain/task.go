package domain

import (
	"fmt"
	"time"
)

// Priority orders work under budget pressure. P0 is most urgent.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

var validPriorities = map[Priority]bool{
	PriorityP0: true,
	PriorityP1: true,
	PriorityP2: true,
	PriorityP3: true,
}

// IsValid returns true if the priority is one of the recognized values.
func (p Priority) IsValid() bool {
	return validPriorities[p]
}

// Rank returns the numeric rank of the priority, 0 for P0 through 3 for P3.
// Unknown priorities rank last.
func (p Priority) Rank() int {
	switch p {
	case PriorityP0:
		return 0
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	default:
		return 4
	}
}

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusInReview   TaskStatus = "in_review"
	TaskStatusRevision   TaskStatus = "revision"
	TaskStatusApproved   TaskStatus = "approved"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusDeferred   TaskStatus = "deferred"
)

var validTaskStatuses = map[TaskStatus]bool{
	TaskStatusPending:    true,
	TaskStatusAssigned:   true,
	TaskStatusInProgress: true,
	TaskStatusCompleted:  true,
	TaskStatusInReview:   true,
	TaskStatusRevision:   true,
	TaskStatusApproved:   true,
	TaskStatusFailed:     true,
	TaskStatusBlocked:    true,
	TaskStatusCancelled:  true,
	TaskStatusDeferred:   true,
}

// IsValid returns true if the status is one of the recognized values.
func (s TaskStatus) IsValid() bool {
	return validTaskStatuses[s]
}

// taskTransitions is the allowed-next table of the task state machine.
// approved and cancelled are terminal.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusAssigned, TaskStatusInProgress, TaskStatusCancelled, TaskStatusDeferred},
	TaskStatusAssigned:   {TaskStatusInProgress, TaskStatusCancelled, TaskStatusFailed},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusFailed, TaskStatusBlocked, TaskStatusCancelled},
	TaskStatusCompleted:  {TaskStatusInReview, TaskStatusApproved},
	TaskStatusInReview:   {TaskStatusApproved, TaskStatusRevision, TaskStatusFailed},
	TaskStatusRevision:   {TaskStatusInProgress, TaskStatusCancelled},
	TaskStatusApproved:   {},
	TaskStatusFailed:     {TaskStatusPending, TaskStatusCancelled},
	TaskStatusBlocked:    {TaskStatusPending, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusDeferred:   {TaskStatusPending, TaskStatusCancelled},
	TaskStatusCancelled:  {},
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// executableStatuses gate executor input: only tasks in one of these states
// may be dispatched to an agent.
var executableStatuses = map[TaskStatus]bool{
	TaskStatusPending:  true,
	TaskStatusAssigned: true,
	TaskStatusRevision: true,
}

// IsExecutable reports whether a task in this status may be executed.
func (s TaskStatus) IsExecutable() bool {
	return executableStatuses[s]
}

// NextType discriminates what happens after a task completes.
type NextType string

const (
	NextDirectorReview   NextType = "director_review"
	NextAgent            NextType = "agent"
	NextPipelineContinue NextType = "pipeline_continue"
	NextComplete         NextType = "complete"
)

// TaskNext is the tagged routing decision attached to a task. Skill is set
// only for NextAgent; PipelineID only for NextPipelineContinue.
type TaskNext struct {
	Type       NextType
	Skill      string
	PipelineID string
}

// Validate checks the variant payload matches its tag.
func (n TaskNext) Validate() error {
	switch n.Type {
	case NextDirectorReview, NextComplete:
		return nil
	case NextAgent:
		if n.Skill == "" {
			return fmt.Errorf("next: agent variant requires a skill")
		}
		return nil
	case NextPipelineContinue:
		if n.PipelineID == "" {
			return fmt.Errorf("next: pipeline_continue variant requires a pipeline id")
		}
		return nil
	default:
		return fmt.Errorf("next: unknown type %q", n.Type)
	}
}

// Format renders the routing decision for the human-readable task body.
func (n TaskNext) Format() string {
	switch n.Type {
	case NextAgent:
		return fmt.Sprintf("agent %s", n.Skill)
	case NextPipelineContinue:
		return fmt.Sprintf("continue pipeline %s", n.PipelineID)
	case NextDirectorReview:
		return "director review"
	default:
		return "complete"
	}
}

// TaskInput references an upstream artifact consumed by a task.
type TaskInput struct {
	Path        string
	Description string
}

// TaskOutput describes where and in what format the task artifact lands.
type TaskOutput struct {
	Path   string
	Format string
}

// Task is the unit of agent work. Its file at tasks/{id}.md is the single
// source of truth; in-memory copies are never held across suspension points.
type Task struct {
	ID            string
	From          string
	To            string
	Priority      Priority
	Deadline      *time.Time
	Status        TaskStatus
	RevisionCount int
	GoalID        string
	PipelineID    string
	Goal          string
	Inputs        []TaskInput
	Requirements  string
	Output        TaskOutput
	Next          TaskNext
	Tags          []string
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the minimum required fields and enum values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task: id is required")
	}
	if t.To == "" {
		return fmt.Errorf("task: to is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("task: invalid status %q", t.Status)
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("task: invalid priority %q", t.Priority)
	}
	if t.RevisionCount < 0 {
		return fmt.Errorf("task: revision count must be non-negative")
	}
	return t.Next.Validate()
}
