package domain

import (
	"fmt"
	"time"
)

// Verdict is the outcome of an agent-to-agent review.
type Verdict string

const (
	VerdictApprove Verdict = "APPROVE"
	VerdictRevise  Verdict = "REVISE"
	VerdictReject  Verdict = "REJECT"
)

var validVerdicts = map[Verdict]bool{
	VerdictApprove: true,
	VerdictRevise:  true,
	VerdictReject:  true,
}

// IsValid returns true if the verdict is one of the recognized values.
func (v Verdict) IsValid() bool {
	return validVerdicts[v]
}

// Severity grades a review finding.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityMajor      Severity = "major"
	SeverityMinor      Severity = "minor"
	SeveritySuggestion Severity = "suggestion"
)

var validSeverities = map[Severity]bool{
	SeverityCritical:   true,
	SeverityMajor:      true,
	SeverityMinor:      true,
	SeveritySuggestion: true,
}

// IsValid returns true if the severity is one of the recognized values.
func (s Severity) IsValid() bool {
	return validSeverities[s]
}

// RequestPriority grades a revision request.
type RequestPriority string

const (
	RequestRequired    RequestPriority = "required"
	RequestRecommended RequestPriority = "recommended"
	RequestOptional    RequestPriority = "optional"
)

var validRequestPriorities = map[RequestPriority]bool{
	RequestRequired:    true,
	RequestRecommended: true,
	RequestOptional:    true,
}

// IsValid returns true if the request priority is one of the recognized values.
func (p RequestPriority) IsValid() bool {
	return validRequestPriorities[p]
}

// Finding is one observation in a review.
type Finding struct {
	Severity    Severity
	Section     string
	Description string
}

// RevisionRequest is one change the reviewer asks for.
type RevisionRequest struct {
	Priority    RequestPriority
	Description string
}

// Review is a persisted agent-to-agent review of a completed task.
type Review struct {
	ID               string
	TaskID           string
	CreatedAt        time.Time
	Reviewer         string
	Author           string
	Verdict          Verdict
	Summary          string
	Findings         []Finding
	RevisionRequests []RevisionRequest
}

// Validate checks the minimum required fields and enum values.
func (r *Review) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("review: id is required")
	}
	if r.TaskID == "" {
		return fmt.Errorf("review: task id is required")
	}
	if !r.Verdict.IsValid() {
		return fmt.Errorf("review: invalid verdict %q", r.Verdict)
	}
	for i, f := range r.Findings {
		if !f.Severity.IsValid() {
			return fmt.Errorf("review: finding %d has invalid severity %q", i, f.Severity)
		}
	}
	for i, rr := range r.RevisionRequests {
		if !rr.Priority.IsValid() {
			return fmt.Errorf("review: revision request %d has invalid priority %q", i, rr.Priority)
		}
	}
	return nil
}

// Urgency grades a human-review escalation.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyNormal   Urgency = "normal"
)

var validUrgencies = map[Urgency]bool{
	UrgencyCritical: true,
	UrgencyHigh:     true,
	UrgencyNormal:   true,
}

// IsValid returns true if the urgency is one of the recognized values.
func (u Urgency) IsValid() bool {
	return validUrgencies[u]
}

// HumanReviewStatus represents the lifecycle state of a human review item.
type HumanReviewStatus string

const (
	HumanReviewPending  HumanReviewStatus = "pending"
	HumanReviewInReview HumanReviewStatus = "in_review"
	HumanReviewResolved HumanReviewStatus = "resolved"
	HumanReviewExpired  HumanReviewStatus = "expired"
)

var validHumanReviewStatuses = map[HumanReviewStatus]bool{
	HumanReviewPending:  true,
	HumanReviewInReview: true,
	HumanReviewResolved: true,
	HumanReviewExpired:  true,
}

// IsValid returns true if the status is one of the recognized values.
func (s HumanReviewStatus) IsValid() bool {
	return validHumanReviewStatuses[s]
}

// HumanFeedback captures the decision a human attached to an escalation.
type HumanFeedback struct {
	Decision             string
	Reviewer             string
	Notes                string
	RevisionInstructions string
}

// HumanReviewItem is a persisted escalation awaiting a human decision.
type HumanReviewItem struct {
	ID               string
	TaskID           string
	Skill            string
	CreatedAt        time.Time
	Urgency          Urgency
	Status           HumanReviewStatus
	EscalationReason string
	GoalID           string
	PipelineID       string
	Context          map[string]any
	Feedback         *HumanFeedback
	ResolvedAt       *time.Time
	Metadata         map[string]string
}

// Validate checks the minimum required fields and enum values.
func (h *HumanReviewItem) Validate() error {
	if h.ID == "" {
		return fmt.Errorf("human review: id is required")
	}
	if h.TaskID == "" {
		return fmt.Errorf("human review: task id is required")
	}
	if !h.Urgency.IsValid() {
		return fmt.Errorf("human review: invalid urgency %q", h.Urgency)
	}
	if !h.Status.IsValid() {
		return fmt.Errorf("human review: invalid status %q", h.Status)
	}
	if h.EscalationReason == "" {
		return fmt.Errorf("human review: escalation reason is required")
	}
	return nil
}

// LearningEntry is one appended lesson in memory/learnings.md.
type LearningEntry struct {
	Date   time.Time
	Skill  string
	Lesson string
}

// CostEntry records model spend for one task execution.
type CostEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	TaskID       string    `json:"task_id"`
	Skill        string    `json:"skill"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
}
