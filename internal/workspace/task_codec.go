package workspace

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cadence/internal/domain"
	"cadence/internal/faults"
)

// SerializeTask renders a task to its on-disk markdown form.
func SerializeTask(t *domain.Task) string {
	pairs := []fmPair{
		{"id", t.ID},
		{"status", string(t.Status)},
		{"priority", string(t.Priority)},
		{"from", t.From},
		{"to", t.To},
		{"created_at", formatTime(t.CreatedAt)},
		{"updated_at", formatTime(t.UpdatedAt)},
		{"revision_count", strconv.Itoa(t.RevisionCount)},
		{"output_path", t.Output.Path},
		{"output_format", t.Output.Format},
		{"next_type", string(t.Next.Type)},
		{"next_skill", t.Next.Skill},
		{"next_pipeline", t.Next.PipelineID},
		{"goal_id", t.GoalID},
		{"pipeline_id", t.PipelineID},
		{"tags", strings.Join(t.Tags, ", ")},
		{"metadata", encodeMetadata(t.Metadata)},
	}
	if t.Deadline != nil {
		pairs = append(pairs, fmPair{"deadline", formatTime(*t.Deadline)})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Task: %s\n\n", t.ID)

	b.WriteString("## Assignment\n")
	fmt.Fprintf(&b, "- **From:** %s\n", t.From)
	fmt.Fprintf(&b, "- **To:** %s\n", t.To)
	fmt.Fprintf(&b, "- **Priority:** %s\n\n", t.Priority)

	b.WriteString("## Context\n")
	fmt.Fprintf(&b, "- **Goal:** %s\n", t.Goal)
	if len(t.Inputs) > 0 {
		b.WriteString("\nInput files:\n")
		for _, input := range t.Inputs {
			fmt.Fprintf(&b, "- `%s` — %s\n", input.Path, input.Description)
		}
	}
	b.WriteString("\n")

	b.WriteString("## Requirements\n")
	b.WriteString(t.Requirements)
	b.WriteString("\n\n")

	b.WriteString("## Output\n")
	fmt.Fprintf(&b, "- Write to: `%s`\n", t.Output.Path)
	fmt.Fprintf(&b, "- Format: %s\n", t.Output.Format)
	fmt.Fprintf(&b, "- Then: %s\n", t.Next.Format())

	return encodeDocument(pairs, b.String())
}

// DeserializeTask parses the on-disk markdown form back into a task.
// Unknown enum values and missing required fields fail with PARSE_ERROR.
func DeserializeTask(content string) (*domain.Task, error) {
	fields, body, err := decodeDocument(content)
	if err != nil {
		return nil, err
	}

	t := &domain.Task{
		ID:         fields["id"],
		From:       fields["from"],
		To:         fields["to"],
		Status:     domain.TaskStatus(fields["status"]),
		Priority:   domain.Priority(fields["priority"]),
		GoalID:     fields["goal_id"],
		PipelineID: fields["pipeline_id"],
		Output: domain.TaskOutput{
			Path:   fields["output_path"],
			Format: fields["output_format"],
		},
		Next: domain.TaskNext{
			Type:       domain.NextType(fields["next_type"]),
			Skill:      fields["next_skill"],
			PipelineID: fields["next_pipeline"],
		},
	}

	for _, key := range []string{"id", "status", "priority", "from", "to", "created_at", "updated_at", "revision_count", "output_path", "output_format", "next_type"} {
		if fields[key] == "" {
			return nil, faults.Newf(faults.CodeParseError, "task: missing required field %q", key)
		}
	}

	if t.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "task: created_at", err)
	}
	if t.UpdatedAt, err = parseTime(fields["updated_at"]); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "task: updated_at", err)
	}
	if raw := fields["deadline"]; raw != "" {
		deadline, err := parseTime(raw)
		if err != nil {
			return nil, faults.Wrap(faults.CodeParseError, "task: deadline", err)
		}
		t.Deadline = &deadline
	}
	if t.RevisionCount, err = strconv.Atoi(fields["revision_count"]); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "task: revision_count", err)
	}
	if raw := fields["tags"]; raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				t.Tags = append(t.Tags, trimmed)
			}
		}
	}
	if raw := fields["metadata"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &t.Metadata); err != nil {
			return nil, faults.Wrap(faults.CodeParseError, "task: metadata", err)
		}
	}

	contextSection := bodySection(body, "Context")
	for _, line := range strings.Split(contextSection, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "- **Goal:**"):
			t.Goal = strings.TrimSpace(strings.TrimPrefix(trimmed, "- **Goal:**"))
		case strings.HasPrefix(trimmed, "- `"):
			input, ok := parseInputLine(trimmed)
			if !ok {
				return nil, faults.Newf(faults.CodeParseError, "task: malformed input line %q", trimmed)
			}
			t.Inputs = append(t.Inputs, input)
		}
	}
	t.Requirements = bodySection(body, "Requirements")

	if err := t.Validate(); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "task", err)
	}
	return t, nil
}

// parseInputLine parses "- `{path}` — {description}".
func parseInputLine(line string) (domain.TaskInput, bool) {
	rest := strings.TrimPrefix(line, "- `")
	end := strings.Index(rest, "`")
	if end < 0 {
		return domain.TaskInput{}, false
	}
	input := domain.TaskInput{Path: rest[:end]}
	desc := strings.TrimSpace(rest[end+1:])
	desc = strings.TrimSpace(strings.TrimPrefix(desc, "—"))
	input.Description = desc
	return input, true
}

func encodeMetadata(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(data)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, raw)
}

// TaskFilter narrows ListTasks results. Zero values match everything.
type TaskFilter struct {
	Status     domain.TaskStatus
	Skill      string
	PipelineID string
	GoalID     string
}

func (f TaskFilter) matches(t *domain.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Skill != "" && t.To != f.Skill {
		return false
	}
	if f.PipelineID != "" && t.PipelineID != f.PipelineID {
		return false
	}
	if f.GoalID != "" && t.GoalID != f.GoalID {
		return false
	}
	return true
}

// WriteTask persists a task to tasks/{id}.md.
func (w *Workspace) WriteTask(t *domain.Task) error {
	if err := t.Validate(); err != nil {
		return faults.Wrap(faults.CodeValidationError, "write task", err)
	}
	return w.WriteFile(TaskPath(t.ID), SerializeTask(t))
}

// ReadTask loads a task by id.
func (w *Workspace) ReadTask(taskID string) (*domain.Task, error) {
	content, err := w.ReadFile(TaskPath(taskID))
	if err != nil {
		return nil, err
	}
	return DeserializeTask(content)
}

// ListTasks loads every task matching the filter, in lexicographic filename
// order.
func (w *Workspace) ListTasks(filter TaskFilter) ([]*domain.Task, error) {
	names, err := w.ListFiles(tasksDir)
	if err != nil {
		return nil, err
	}
	var tasks []*domain.Task
	for _, name := range names {
		content, err := w.ReadFile(tasksDir + "/" + name)
		if err != nil {
			return nil, err
		}
		task, err := DeserializeTask(content)
		if err != nil {
			w.logger.Warn("skipping unparseable task file", "file", name, "error", err)
			continue
		}
		if filter.matches(task) {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// UpdateTaskStatus transitions a task to next within a single lock
// acquisition: read, validate against the state machine, mutate, write.
// Invalid transitions fail with VALIDATION_ERROR.
func (w *Workspace) UpdateTaskStatus(taskID string, next domain.TaskStatus) (*domain.Task, error) {
	if !next.IsValid() {
		return nil, faults.Newf(faults.CodeValidationError, "unknown status %q", next)
	}
	var updated *domain.Task
	err := w.mutateFile(TaskPath(taskID), func(current string, exists bool) (string, error) {
		if !exists {
			return "", faults.Newf(faults.CodeNotFound, "task %s", taskID)
		}
		task, err := DeserializeTask(current)
		if err != nil {
			return "", err
		}
		if !task.Status.CanTransition(next) {
			return "", faults.Newf(faults.CodeValidationError,
				"task %s: illegal transition %s -> %s", taskID, task.Status, next)
		}
		task.Status = next
		task.UpdatedAt = time.Now().UTC().Truncate(time.Second)
		updated = task
		return SerializeTask(task), nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
