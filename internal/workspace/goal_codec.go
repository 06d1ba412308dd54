package workspace

import (
	"fmt"
	"strconv"
	"strings"

	"cadence/internal/domain"
	"cadence/internal/faults"
)

// SerializeGoal renders a goal to markdown.
func SerializeGoal(g *domain.Goal) string {
	pairs := []fmPair{
		{"id", g.ID},
		{"category", g.Category},
		{"priority", string(g.Priority)},
		{"status", string(g.Status)},
		{"created_at", formatTime(g.CreatedAt)},
		{"updated_at", formatTime(g.UpdatedAt)},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Goal: %s\n\n", g.ID)
	b.WriteString("## Description\n")
	b.WriteString(g.Description)
	b.WriteString("\n")

	return encodeDocument(pairs, b.String())
}

// DeserializeGoal parses the on-disk goal form.
func DeserializeGoal(content string) (*domain.Goal, error) {
	fields, body, err := decodeDocument(content)
	if err != nil {
		return nil, err
	}
	g := &domain.Goal{
		ID:       fields["id"],
		Category: fields["category"],
		Priority: domain.Priority(fields["priority"]),
		Status:   domain.GoalStatus(fields["status"]),
	}
	for _, key := range []string{"id", "priority", "status", "created_at", "updated_at"} {
		if fields[key] == "" {
			return nil, faults.Newf(faults.CodeParseError, "goal: missing required field %q", key)
		}
	}
	if g.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "goal: created_at", err)
	}
	if g.UpdatedAt, err = parseTime(fields["updated_at"]); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "goal: updated_at", err)
	}
	g.Description = bodySection(body, "Description")

	if err := g.Validate(); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "goal", err)
	}
	return g, nil
}

// SerializeGoalPlan renders a phase plan to markdown.
func SerializeGoalPlan(p *domain.GoalPlan) string {
	pairs := []fmPair{
		{"goal_id", p.GoalID},
		{"created_at", formatTime(p.CreatedAt)},
		{"phase_count", strconv.Itoa(len(p.Phases))},
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Plan: %s\n", p.GoalID)
	for i, phase := range p.Phases {
		fmt.Fprintf(&b, "\n## Phase %d: %s\n", i+1, phase.Name)
		fmt.Fprintf(&b, "- **Skills:** %s\n", strings.Join(phase.Skills, ", "))
		fmt.Fprintf(&b, "- **Parallel:** %t\n", phase.Parallel)
		if phase.DependsOn != nil {
			fmt.Fprintf(&b, "- **Depends on:** %d\n", *phase.DependsOn+1)
		}
	}

	return encodeDocument(pairs, b.String())
}

// DeserializeGoalPlan parses the on-disk plan form.
func DeserializeGoalPlan(content string) (*domain.GoalPlan, error) {
	fields, body, err := decodeDocument(content)
	if err != nil {
		return nil, err
	}
	p := &domain.GoalPlan{GoalID: fields["goal_id"]}
	if p.GoalID == "" {
		return nil, faults.New(faults.CodeParseError, "plan: missing required field \"goal_id\"")
	}
	if fields["created_at"] == "" {
		return nil, faults.New(faults.CodeParseError, "plan: missing required field \"created_at\"")
	}
	if p.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "plan: created_at", err)
	}

	var current *domain.GoalPhase
	flush := func() {
		if current != nil {
			p.Phases = append(p.Phases, *current)
			current = nil
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "## Phase "):
			flush()
			_, name, found := strings.Cut(strings.TrimPrefix(trimmed, "## Phase "), ": ")
			if !found {
				return nil, faults.Newf(faults.CodeParseError, "plan: malformed phase heading %q", trimmed)
			}
			current = &domain.GoalPhase{Name: name}
		case current != nil && strings.HasPrefix(trimmed, "- **Skills:**"):
			for _, skill := range strings.Split(strings.TrimPrefix(trimmed, "- **Skills:**"), ",") {
				if s := strings.TrimSpace(skill); s != "" {
					current.Skills = append(current.Skills, s)
				}
			}
		case current != nil && strings.HasPrefix(trimmed, "- **Parallel:**"):
			current.Parallel = strings.TrimSpace(strings.TrimPrefix(trimmed, "- **Parallel:**")) == "true"
		case current != nil && strings.HasPrefix(trimmed, "- **Depends on:**"):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(trimmed, "- **Depends on:**")))
			if err != nil {
				return nil, faults.Wrap(faults.CodeParseError, "plan: depends on", err)
			}
			idx := n - 1
			current.DependsOn = &idx
		}
	}
	flush()

	if declared := fields["phase_count"]; declared != "" {
		n, err := strconv.Atoi(declared)
		if err != nil || n != len(p.Phases) {
			return nil, faults.Newf(faults.CodeParseError,
				"plan: phase_count %s does not match %d parsed phases", declared, len(p.Phases))
		}
	}
	if err := p.Validate(); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "plan", err)
	}
	return p, nil
}

// WriteGoal persists a goal to goals/{id}.md.
func (w *Workspace) WriteGoal(g *domain.Goal) error {
	if err := g.Validate(); err != nil {
		return faults.Wrap(faults.CodeValidationError, "write goal", err)
	}
	return w.WriteFile(GoalPath(g.ID), SerializeGoal(g))
}

// ReadGoal loads a goal by id.
func (w *Workspace) ReadGoal(goalID string) (*domain.Goal, error) {
	content, err := w.ReadFile(GoalPath(goalID))
	if err != nil {
		return nil, err
	}
	return DeserializeGoal(content)
}

// WriteGoalPlan persists a phase plan to goals/{goalId}-plan.md.
func (w *Workspace) WriteGoalPlan(p *domain.GoalPlan) error {
	if err := p.Validate(); err != nil {
		return faults.Wrap(faults.CodeValidationError, "write goal plan", err)
	}
	return w.WriteFile(GoalPlanPath(p.GoalID), SerializeGoalPlan(p))
}

// ReadGoalPlan loads the plan for a goal.
func (w *Workspace) ReadGoalPlan(goalID string) (*domain.GoalPlan, error) {
	content, err := w.ReadFile(GoalPlanPath(goalID))
	if err != nil {
		return nil, err
	}
	return DeserializeGoalPlan(content)
}
