package workspace

import (
	"fmt"
	"path/filepath"
	"strings"

	"cadence/internal/faults"
)

// Well-known workspace locations, relative to the root.
const (
	ContextPath   = "context/product-marketing-context.md"
	LearningsPath = "memory/learnings.md"
	tasksDir      = "tasks"
	outputsDir    = "outputs"
	reviewsDir    = "reviews"
	humanDir      = "reviews/human"
	goalsDir      = "goals"
	schedulesDir  = "schedules"
	metricsDir    = "metrics"
)

// TaskPath returns the relative path of a task file.
func TaskPath(taskID string) string {
	return fmt.Sprintf("%s/%s.md", tasksDir, taskID)
}

// OutputPath returns the relative artifact path for a skill execution.
func OutputPath(squad, skill, taskID string) string {
	return fmt.Sprintf("%s/%s/%s/%s.md", outputsDir, squad, skill, taskID)
}

// ReviewPath returns the relative path of a review file. Attempt 0 drops the
// numeric suffix.
func ReviewPath(taskID string, attempt int) string {
	if attempt <= 0 {
		return fmt.Sprintf("%s/%s-review.md", reviewsDir, taskID)
	}
	return fmt.Sprintf("%s/%s-review-%d.md", reviewsDir, taskID, attempt)
}

// HumanReviewPath returns the relative path of a human-review escalation.
func HumanReviewPath(id string) string {
	return fmt.Sprintf("%s/%s.md", humanDir, id)
}

// GoalPath returns the relative path of a goal file.
func GoalPath(goalID string) string {
	return fmt.Sprintf("%s/%s.md", goalsDir, goalID)
}

// GoalPlanPath returns the relative path of a goal plan file.
func GoalPlanPath(goalID string) string {
	return fmt.Sprintf("%s/%s-plan.md", goalsDir, goalID)
}

// SchedulePath returns the relative path of a schedule-state JSON file.
func SchedulePath(scheduleID string) string {
	return fmt.Sprintf("%s/%s.json", schedulesDir, scheduleID)
}

// MetricsReportPath returns the relative path of a daily metrics report.
func MetricsReportPath(day string) string {
	return fmt.Sprintf("%s/%s-report.md", metricsDir, day)
}

// resolve maps a workspace-relative path to an absolute path under root,
// rejecting anything that escapes the root.
func (w *Workspace) resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", faults.New(faults.CodeInvalidPath, "empty path")
	}
	abs := filepath.Join(w.root, filepath.FromSlash(rel))
	back, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", faults.Wrap(faults.CodeInvalidPath, rel, err)
	}
	if back == "." || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", faults.Newf(faults.CodeInvalidPath, "path %q escapes workspace root", rel)
	}
	return abs, nil
}
