package workspace

import (
	"fmt"
	"strings"
	"time"

	"cadence/internal/domain"
)

const learningsHeader = "# Learnings"

// AppendLearning appends a lesson to memory/learnings.md in a single atomic
// read-modify-write. The first append prepends the file header.
func (w *Workspace) AppendLearning(entry domain.LearningEntry) error {
	return w.mutateFile(LearningsPath, func(current string, exists bool) (string, error) {
		var b strings.Builder
		if !exists || strings.TrimSpace(current) == "" {
			b.WriteString(learningsHeader)
			b.WriteString("\n")
		} else {
			b.WriteString(strings.TrimRight(current, "\n"))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "\n## %s [%s]\n%s\n", entry.Date.UTC().Format("2006-01-02"), entry.Skill, entry.Lesson)
		return b.String(), nil
	})
}

// ReadLearnings parses every recorded lesson, oldest first. A missing file
// reads as empty.
func (w *Workspace) ReadLearnings() ([]domain.LearningEntry, error) {
	exists, err := w.FileExists(LearningsPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	content, err := w.ReadFile(LearningsPath)
	if err != nil {
		return nil, err
	}

	var entries []domain.LearningEntry
	var current *domain.LearningEntry
	var lesson []string
	flush := func() {
		if current != nil {
			current.Lesson = strings.Trim(strings.Join(lesson, "\n"), "\n")
			entries = append(entries, *current)
			current = nil
		}
		lesson = nil
	}
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			heading := strings.TrimPrefix(line, "## ")
			datePart, skillPart, found := strings.Cut(heading, " [")
			entry := domain.LearningEntry{}
			if date, err := time.Parse("2006-01-02", strings.TrimSpace(datePart)); err == nil {
				entry.Date = date
			}
			if found {
				entry.Skill = strings.TrimSuffix(strings.TrimSpace(skillPart), "]")
			}
			current = &entry
			continue
		}
		if current != nil {
			lesson = append(lesson, line)
		}
	}
	flush()
	return entries, nil
}
