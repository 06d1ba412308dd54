package workspace

import (
	"encoding/json"
	"fmt"
	"strings"

	"cadence/internal/domain"
	"cadence/internal/faults"
)

// SerializeHumanReview renders a human-review escalation to markdown.
func SerializeHumanReview(h *domain.HumanReviewItem) string {
	pairs := []fmPair{
		{"id", h.ID},
		{"task_id", h.TaskID},
		{"skill", h.Skill},
		{"created_at", formatTime(h.CreatedAt)},
		{"urgency", string(h.Urgency)},
		{"status", string(h.Status)},
		{"escalation_reason", h.EscalationReason},
		{"goal_id", h.GoalID},
		{"pipeline_id", h.PipelineID},
		{"metadata", encodeMetadata(h.Metadata)},
	}
	if h.Feedback != nil {
		pairs = append(pairs,
			fmPair{"feedback_decision", h.Feedback.Decision},
			fmPair{"feedback_reviewer", h.Feedback.Reviewer},
		)
	}
	if h.ResolvedAt != nil {
		pairs = append(pairs, fmPair{"resolved_at", formatTime(*h.ResolvedAt)})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Human Review: %s\n\n", h.ID)
	b.WriteString("## Escalation Details\n")
	fmt.Fprintf(&b, "Task `%s` (skill %s) was escalated for human review.\n", h.TaskID, h.Skill)

	if len(h.Context) > 0 {
		if data, err := json.MarshalIndent(h.Context, "", "  "); err == nil {
			b.WriteString("\n## Escalation Context\n")
			b.WriteString("```json\n")
			b.Write(data)
			b.WriteString("\n```\n")
		}
	}

	if h.Feedback != nil {
		b.WriteString("\n## Human Feedback\n")
		b.WriteString("### Notes\n")
		b.WriteString(h.Feedback.Notes)
		b.WriteString("\n")
		if h.Feedback.RevisionInstructions != "" {
			b.WriteString("\n### Revision Instructions\n")
			b.WriteString(h.Feedback.RevisionInstructions)
			b.WriteString("\n")
		}
	}

	return encodeDocument(pairs, b.String())
}

// DeserializeHumanReview parses the on-disk escalation form.
func DeserializeHumanReview(content string) (*domain.HumanReviewItem, error) {
	fields, body, err := decodeDocument(content)
	if err != nil {
		return nil, err
	}

	h := &domain.HumanReviewItem{
		ID:               fields["id"],
		TaskID:           fields["task_id"],
		Skill:            fields["skill"],
		Urgency:          domain.Urgency(fields["urgency"]),
		Status:           domain.HumanReviewStatus(fields["status"]),
		EscalationReason: fields["escalation_reason"],
		GoalID:           fields["goal_id"],
		PipelineID:       fields["pipeline_id"],
	}
	for _, key := range []string{"id", "task_id", "skill", "created_at", "urgency", "status", "escalation_reason"} {
		if fields[key] == "" {
			return nil, faults.Newf(faults.CodeParseError, "human review: missing required field %q", key)
		}
	}
	if h.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "human review: created_at", err)
	}
	if raw := fields["resolved_at"]; raw != "" {
		resolved, err := parseTime(raw)
		if err != nil {
			return nil, faults.Wrap(faults.CodeParseError, "human review: resolved_at", err)
		}
		h.ResolvedAt = &resolved
	}
	if raw := fields["metadata"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &h.Metadata); err != nil {
			return nil, faults.Wrap(faults.CodeParseError, "human review: metadata", err)
		}
	}

	if contextSection := bodySection(body, "Escalation Context"); contextSection != "" {
		jsonBlock := strings.TrimPrefix(contextSection, "```json")
		jsonBlock = strings.TrimSuffix(strings.TrimSpace(jsonBlock), "```")
		if err := json.Unmarshal([]byte(jsonBlock), &h.Context); err != nil {
			return nil, faults.Wrap(faults.CodeParseError, "human review: context block", err)
		}
	}

	if fields["feedback_decision"] != "" || fields["feedback_reviewer"] != "" {
		feedbackSection := bodySection(body, "Human Feedback")
		h.Feedback = &domain.HumanFeedback{
			Decision:             fields["feedback_decision"],
			Reviewer:             fields["feedback_reviewer"],
			Notes:                subSection(feedbackSection, "Notes"),
			RevisionInstructions: subSection(feedbackSection, "Revision Instructions"),
		}
	}

	if err := h.Validate(); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "human review", err)
	}
	return h, nil
}

// WriteHumanReview persists an escalation to reviews/human/{id}.md.
func (w *Workspace) WriteHumanReview(h *domain.HumanReviewItem) error {
	if err := h.Validate(); err != nil {
		return faults.Wrap(faults.CodeValidationError, "write human review", err)
	}
	return w.WriteFile(HumanReviewPath(h.ID), SerializeHumanReview(h))
}

// ReadHumanReview loads an escalation by id.
func (w *Workspace) ReadHumanReview(id string) (*domain.HumanReviewItem, error) {
	content, err := w.ReadFile(HumanReviewPath(id))
	if err != nil {
		return nil, err
	}
	return DeserializeHumanReview(content)
}

// UpdateHumanReview applies fn to an escalation in an atomic
// read-validate-write under the file lock.
func (w *Workspace) UpdateHumanReview(id string, fn func(*domain.HumanReviewItem) error) (*domain.HumanReviewItem, error) {
	var updated *domain.HumanReviewItem
	err := w.mutateFile(HumanReviewPath(id), func(current string, exists bool) (string, error) {
		if !exists {
			return "", faults.Newf(faults.CodeNotFound, "human review %s", id)
		}
		item, err := DeserializeHumanReview(current)
		if err != nil {
			return "", err
		}
		if err := fn(item); err != nil {
			return "", err
		}
		if err := item.Validate(); err != nil {
			return "", faults.Wrap(faults.CodeValidationError, "update human review", err)
		}
		updated = item
		return SerializeHumanReview(item), nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
