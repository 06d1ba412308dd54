package executor

import (
	"fmt"
	"strings"

	"cadence/internal/domain"
	"cadence/internal/skills"
)

// buildSystemPrompt is the skill body followed by its reference documents.
// A skill with no body and no references yields an empty system prompt.
func buildSystemPrompt(skill skills.Definition) string {
	var parts []string
	if skill.Body != "" {
		parts = append(parts, skill.Body)
	}
	for _, ref := range skill.References {
		parts = append(parts, fmt.Sprintf("## Reference: %s\n\n%s", ref.Name, ref.Content))
	}
	return strings.Join(parts, "\n\n")
}

// buildUserMessage assembles the user turn. Section order is fixed so agents
// see a stable document shape across skills.
func buildUserMessage(task *domain.Task, productContext string, inputs []loadedInput) string {
	var b strings.Builder

	b.WriteString("## Product Context\n\n")
	if strings.TrimSpace(productContext) != "" {
		b.WriteString(strings.TrimSpace(productContext))
	} else {
		b.WriteString("No product context is available.")
	}

	b.WriteString("\n\n## Task Assignment\n\n")
	fmt.Fprintf(&b, "- ID: %s\n", task.ID)
	fmt.Fprintf(&b, "- From: %s\n", task.From)
	fmt.Fprintf(&b, "- Priority: %s\n", task.Priority)
	fmt.Fprintf(&b, "- Goal: %s", task.Goal)

	b.WriteString("\n\n## Upstream Inputs\n")
	if len(inputs) == 0 {
		b.WriteString("\nNo upstream inputs.")
	} else {
		for _, in := range inputs {
			fmt.Fprintf(&b, "\n### %s\n\n%s\n", in.Path, strings.TrimSpace(in.Content))
		}
	}

	b.WriteString("\n\n## Requirements\n\n")
	b.WriteString(task.Requirements)

	if task.RevisionCount > 0 {
		b.WriteString("\n\n## Revision Context\n\n")
		fmt.Fprintf(&b, "This is revision %d of this task. Address the outstanding review feedback before anything else.", task.RevisionCount)
	}

	b.WriteString("\n\n## Output Instructions\n\n")
	format := task.Output.Format
	if format == "" {
		format = "markdown"
	}
	fmt.Fprintf(&b, "Produce the complete deliverable in %s format. Do not include commentary outside the deliverable itself.", format)

	return b.String()
}
