package workspace

import (
	"fmt"
	"strings"

	"cadence/internal/domain"
	"cadence/internal/faults"
)

// SerializeReview renders an agent-to-agent review to markdown.
func SerializeReview(r *domain.Review) string {
	pairs := []fmPair{
		{"id", r.ID},
		{"task_id", r.TaskID},
		{"created_at", formatTime(r.CreatedAt)},
		{"reviewer", r.Reviewer},
		{"author", r.Author},
		{"verdict", string(r.Verdict)},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Review: %s\n\n", r.TaskID)
	b.WriteString("## Summary\n")
	b.WriteString(r.Summary)
	b.WriteString("\n")

	if len(r.Findings) > 0 {
		b.WriteString("\n## Findings\n")
		for _, f := range r.Findings {
			fmt.Fprintf(&b, "- **[%s]** %s: %s\n", f.Severity, f.Section, f.Description)
		}
	}
	if len(r.RevisionRequests) > 0 {
		b.WriteString("\n## Revision Requests\n")
		for _, rr := range r.RevisionRequests {
			fmt.Fprintf(&b, "- **[%s]** %s\n", rr.Priority, rr.Description)
		}
	}

	return encodeDocument(pairs, b.String())
}

// DeserializeReview parses the on-disk review form.
func DeserializeReview(content string) (*domain.Review, error) {
	fields, body, err := decodeDocument(content)
	if err != nil {
		return nil, err
	}

	r := &domain.Review{
		ID:       fields["id"],
		TaskID:   fields["task_id"],
		Reviewer: fields["reviewer"],
		Author:   fields["author"],
		Verdict:  domain.Verdict(fields["verdict"]),
	}
	for _, key := range []string{"id", "task_id", "created_at", "reviewer", "author", "verdict"} {
		if fields[key] == "" {
			return nil, faults.Newf(faults.CodeParseError, "review: missing required field %q", key)
		}
	}
	if r.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "review: created_at", err)
	}

	r.Summary = bodySection(body, "Summary")

	for _, line := range strings.Split(bodySection(body, "Findings"), "\n") {
		severity, rest, ok := parseBracketLine(line)
		if !ok {
			continue
		}
		section, desc, found := strings.Cut(rest, ": ")
		if !found {
			return nil, faults.Newf(faults.CodeParseError, "review: malformed finding %q", line)
		}
		r.Findings = append(r.Findings, domain.Finding{
			Severity:    domain.Severity(severity),
			Section:     section,
			Description: desc,
		})
	}

	for _, line := range strings.Split(bodySection(body, "Revision Requests"), "\n") {
		priority, rest, ok := parseBracketLine(line)
		if !ok {
			continue
		}
		r.RevisionRequests = append(r.RevisionRequests, domain.RevisionRequest{
			Priority:    domain.RequestPriority(priority),
			Description: rest,
		})
	}

	if err := r.Validate(); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "review", err)
	}
	return r, nil
}

// parseBracketLine parses "- **[{tag}]** {rest}" bullet lines.
func parseBracketLine(line string) (tag, rest string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "- **[") {
		return "", "", false
	}
	trimmed = strings.TrimPrefix(trimmed, "- **[")
	tag, rest, found := strings.Cut(trimmed, "]**")
	if !found {
		return "", "", false
	}
	return tag, strings.TrimSpace(rest), true
}

// WriteReview persists a review under reviews/. Attempt numbers above zero
// get a numeric suffix so revision rounds never overwrite earlier verdicts.
func (w *Workspace) WriteReview(r *domain.Review, attempt int) error {
	if err := r.Validate(); err != nil {
		return faults.Wrap(faults.CodeValidationError, "write review", err)
	}
	return w.WriteFile(ReviewPath(r.TaskID, attempt), SerializeReview(r))
}

// ReadReview loads the review for a task at the given attempt.
func (w *Workspace) ReadReview(taskID string, attempt int) (*domain.Review, error) {
	content, err := w.ReadFile(ReviewPath(taskID, attempt))
	if err != nil {
		return nil, err
	}
	return DeserializeReview(content)
}

// ListReviews loads every review recorded for a task, oldest attempt first.
func (w *Workspace) ListReviews(taskID string) ([]*domain.Review, error) {
	names, err := w.ListFiles(reviewsDir)
	if err != nil {
		return nil, err
	}
	prefix := taskID + "-review"
	var reviews []*domain.Review
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		content, err := w.ReadFile(reviewsDir + "/" + name)
		if err != nil {
			return nil, err
		}
		review, err := DeserializeReview(content)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}
