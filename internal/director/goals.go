package director

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cadence/internal/domain"
	"cadence/internal/faults"
	"cadence/internal/workspace"
)

func phaseDep(i int) *int { return &i }

// playbooks map a goal category to its phase breakdown. Categories the map
// does not know fall back to the content playbook.
var playbooks = map[string][]domain.GoalPhase{
	"growth": {
		{Name: "Research", Skills: []string{"market-research"}},
		{Name: "Produce", Skills: []string{"seo", "content-strategy"}, Parallel: true, DependsOn: phaseDep(0)},
		{Name: "Distribute", Skills: []string{"social-content"}, DependsOn: phaseDep(1)},
	},
	"content": {
		{Name: "Strategy", Skills: []string{"content-strategy"}},
		{Name: "Draft", Skills: []string{"copywriting", "email-sequence"}, Parallel: true, DependsOn: phaseDep(0)},
		{Name: "Edit", Skills: []string{"copy-editing"}, DependsOn: phaseDep(1)},
	},
	"conversion": {
		{Name: "Audit", Skills: []string{"analytics-review"}},
		{Name: "Optimize", Skills: []string{"page-cro", "paid-ads"}, Parallel: true, DependsOn: phaseDep(0)},
	},
}

const fallbackCategory = "content"

// CreateGoal persists a new active goal.
func (d *Director) CreateGoal(description, category string, priority domain.Priority) (*domain.Goal, error) {
	if priority == "" {
		priority = domain.PriorityP2
	}
	now := d.clock().UTC()
	goal := &domain.Goal{
		ID:          domain.NewGoalID(),
		Description: description,
		Category:    strings.ToLower(category),
		Priority:    priority,
		Status:      domain.GoalStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := goal.Validate(); err != nil {
		return nil, faults.Wrap(faults.CodeValidationError, "invalid goal", err)
	}
	if err := d.ws.WriteGoal(goal); err != nil {
		return nil, err
	}
	d.logger.Info("goal created", "goal_id", goal.ID, "category", goal.Category, "priority", goal.Priority)
	return goal, nil
}

// DecomposeGoal breaks a goal into phases using the category playbook and
// persists the plan.
func (d *Director) DecomposeGoal(goal *domain.Goal) (*domain.GoalPlan, error) {
	phases, ok := playbooks[goal.Category]
	if !ok {
		d.logger.Debug("no playbook for category, using fallback", "goal_id", goal.ID, "category", goal.Category)
		phases = playbooks[fallbackCategory]
	}
	plan := &domain.GoalPlan{
		GoalID:    goal.ID,
		Phases:    phases,
		CreatedAt: d.clock().UTC(),
	}
	if err := plan.Validate(); err != nil {
		return nil, faults.Wrap(faults.CodeValidationError, "invalid goal plan", err)
	}
	if err := d.ws.WriteGoalPlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// PlanGoalTasks materialises the plan as tasks, one per skill per phase.
// Tasks in a phase with a prerequisite start blocked and are promoted by
// AdvanceGoal once the prerequisite phase completes.
func (d *Director) PlanGoalTasks(plan *domain.GoalPlan, goal *domain.Goal) ([]*domain.Task, error) {
	now := d.clock().UTC()
	var tasks []*domain.Task
	for i, phase := range plan.Phases {
		status := domain.TaskStatusPending
		if phase.DependsOn != nil {
			status = domain.TaskStatusBlocked
		}
		for _, skill := range phase.Skills {
			task := &domain.Task{
				ID:           domain.NewTaskID(skill),
				From:         "director",
				To:           skill,
				Priority:     goal.Priority,
				Status:       status,
				GoalID:       goal.ID,
				Goal:         goal.Description,
				Requirements: fmt.Sprintf("Produce the %s deliverable for the %q phase of this goal.", skill, phase.Name),
				Output:       domain.TaskOutput{Format: "markdown"},
				Next:         domain.TaskNext{Type: domain.NextDirectorReview},
				Metadata:     map[string]string{"phase": strconv.Itoa(i)},
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if phase.DependsOn != nil {
				task.Metadata["depends_on_phase"] = strconv.Itoa(*phase.DependsOn)
			}
			if err := d.ws.WriteTask(task); err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	d.logger.Info("goal tasks planned", "goal_id", goal.ID, "phases", len(plan.Phases), "tasks", len(tasks))
	return tasks, nil
}

// CreateGoalFromSchedule is the scheduler-facing goal trigger: create,
// decompose, plan, and enqueue the first phase. Returns the goal id.
func (d *Director) CreateGoalFromSchedule(_ context.Context, goalType, category, description string, priority domain.Priority) (string, error) {
	if description == "" {
		description = "Scheduled goal: " + goalType
	}
	goal, err := d.CreateGoal(description, category, priority)
	if err != nil {
		return "", err
	}
	plan, err := d.DecomposeGoal(goal)
	if err != nil {
		return "", err
	}
	tasks, err := d.PlanGoalTasks(plan, goal)
	if err != nil {
		return "", err
	}
	if d.queue != nil {
		var ready []*domain.Task
		for _, t := range tasks {
			if t.Status == domain.TaskStatusPending {
				ready = append(ready, t)
			}
		}
		if len(ready) > 0 {
			if err := d.queue.EnqueueBatch(ready); err != nil {
				d.logger.Error("could not enqueue goal tasks", "goal_id", goal.ID, "error", err)
			}
		}
	}
	return goal.ID, nil
}

// AdvanceGoal promotes blocked tasks whose prerequisite phase has finished.
// A phase is finished when every one of its tasks is completed or approved.
// Promoted tasks are enqueued when a queue is attached. Returns the number
// of tasks promoted.
func (d *Director) AdvanceGoal(goalID string) (int, error) {
	tasks, err := d.ws.ListTasks(workspace.TaskFilter{GoalID: goalID})
	if err != nil {
		return 0, err
	}

	phaseDone := make(map[int]bool)
	phaseSeen := make(map[int]bool)
	for _, t := range tasks {
		phase, err := strconv.Atoi(t.Metadata["phase"])
		if err != nil {
			continue
		}
		if !phaseSeen[phase] {
			phaseSeen[phase] = true
			phaseDone[phase] = true
		}
		if t.Status != domain.TaskStatusCompleted && t.Status != domain.TaskStatusApproved {
			phaseDone[phase] = false
		}
	}

	var promoted []*domain.Task
	for _, t := range tasks {
		if t.Status != domain.TaskStatusBlocked {
			continue
		}
		dep, err := strconv.Atoi(t.Metadata["depends_on_phase"])
		if err != nil || !phaseDone[dep] {
			continue
		}
		updated, err := d.ws.UpdateTaskStatus(t.ID, domain.TaskStatusPending)
		if err != nil {
			d.logger.Error("could not promote goal task", "task_id", t.ID, "error", err)
			continue
		}
		promoted = append(promoted, updated)
	}

	if len(promoted) > 0 {
		d.logger.Info("goal phase advanced", "goal_id", goalID, "promoted", len(promoted))
		if d.queue != nil {
			if err := d.queue.EnqueueBatch(promoted); err != nil {
				d.logger.Error("could not enqueue promoted tasks", "goal_id", goalID, "error", err)
			}
		}
	}
	return len(promoted), nil
}
