package domain

import "testing"

func TestTaskStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to TaskStatus }{
		{TaskStatusPending, TaskStatusAssigned},
		{TaskStatusPending, TaskStatusInProgress},
		{TaskStatusAssigned, TaskStatusInProgress},
		{TaskStatusInProgress, TaskStatusCompleted},
		{TaskStatusInProgress, TaskStatusFailed},
		{TaskStatusCompleted, TaskStatusInReview},
		{TaskStatusInReview, TaskStatusRevision},
		{TaskStatusRevision, TaskStatusInProgress},
		{TaskStatusFailed, TaskStatusPending},
		{TaskStatusBlocked, TaskStatusPending},
		{TaskStatusDeferred, TaskStatusPending},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransition(tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to TaskStatus }{
		{TaskStatusPending, TaskStatusCompleted},
		{TaskStatusCompleted, TaskStatusInProgress},
		{TaskStatusApproved, TaskStatusPending},
		{TaskStatusCancelled, TaskStatusPending},
		{TaskStatusInReview, TaskStatusCompleted},
	}
	for _, tc := range denied {
		if tc.from.CanTransition(tc.to) {
			t.Errorf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestExecutableStatuses(t *testing.T) {
	executable := []TaskStatus{TaskStatusPending, TaskStatusAssigned, TaskStatusRevision}
	for _, s := range executable {
		if !s.IsExecutable() {
			t.Errorf("%s should be executable", s)
		}
	}
	for s := range validTaskStatuses {
		switch s {
		case TaskStatusPending, TaskStatusAssigned, TaskStatusRevision:
			continue
		}
		if s.IsExecutable() {
			t.Errorf("%s should not be executable", s)
		}
	}
}

func TestTaskNextValidateAndFormat(t *testing.T) {
	if err := (TaskNext{Type: NextAgent}).Validate(); err == nil {
		t.Error("agent next without skill should fail")
	}
	if err := (TaskNext{Type: NextPipelineContinue}).Validate(); err == nil {
		t.Error("pipeline_continue next without run id should fail")
	}
	if err := (TaskNext{Type: "weird"}).Validate(); err == nil {
		t.Error("unknown next type should fail")
	}
	if got := (TaskNext{Type: NextAgent, Skill: "seo"}).Format(); got != "agent seo" {
		t.Errorf("Format = %q", got)
	}
	if got := (TaskNext{Type: NextPipelineContinue, PipelineID: "run-1"}).Format(); got != "continue pipeline run-1" {
		t.Errorf("Format = %q", got)
	}
}

func TestTaskValidate(t *testing.T) {
	task := Task{
		ID:       "seo-20260216-abc123",
		To:       "seo",
		Priority: PriorityP1,
		Status:   TaskStatusPending,
		Next:     TaskNext{Type: NextComplete},
	}
	if err := task.Validate(); err != nil {
		t.Errorf("valid task rejected: %v", err)
	}

	bad := task
	bad.To = ""
	if err := bad.Validate(); err == nil {
		t.Error("task without recipient should fail")
	}
	bad = task
	bad.Status = "resting"
	if err := bad.Validate(); err == nil {
		t.Error("unknown status should fail")
	}
	bad = task
	bad.RevisionCount = -1
	if err := bad.Validate(); err == nil {
		t.Error("negative revision count should fail")
	}
}

func TestPriorityRank(t *testing.T) {
	if PriorityP0.Rank() >= PriorityP3.Rank() {
		t.Error("P0 must outrank P3")
	}
	if Priority("P9").Rank() <= PriorityP3.Rank() {
		t.Error("unknown priorities rank last")
	}
}

func TestBudgetStateAllows(t *testing.T) {
	state := BudgetState{AllowedPriorities: []Priority{PriorityP0, PriorityP1}}
	if !state.Allows(PriorityP0) || !state.Allows(PriorityP1) {
		t.Error("P0/P1 should be allowed")
	}
	if state.Allows(PriorityP2) {
		t.Error("P2 should be denied")
	}
	if (BudgetState{}).Allows(PriorityP0) {
		t.Error("empty allow-list denies everything")
	}
}

func TestPipelineStepValidate(t *testing.T) {
	if err := Sequential("seo").Validate(); err != nil {
		t.Errorf("sequential: %v", err)
	}
	if err := Parallel().Validate(); err == nil {
		t.Error("empty parallel step should fail")
	}
	if err := ReviewStep("").Validate(); err == nil {
		t.Error("review step without reviewer should fail")
	}
	if err := (PipelineStep{Type: "zigzag"}).Validate(); err == nil {
		t.Error("unknown step type should fail")
	}
}

func TestGoalPlanValidate(t *testing.T) {
	dep := 0
	plan := GoalPlan{GoalID: "goal-1", Phases: []GoalPhase{
		{Name: "A", Skills: []string{"seo"}},
		{Name: "B", Skills: []string{"copywriting"}, DependsOn: &dep},
	}}
	if err := plan.Validate(); err != nil {
		t.Errorf("valid plan rejected: %v", err)
	}

	forward := 1
	bad := GoalPlan{GoalID: "goal-1", Phases: []GoalPhase{
		{Name: "A", Skills: []string{"seo"}, DependsOn: &forward},
	}}
	if err := bad.Validate(); err == nil {
		t.Error("forward dependency should fail")
	}
}

func TestScheduleEntryGoalTrigger(t *testing.T) {
	entry := ScheduleEntry{ID: "weekly", Cron: "0 9 * * 1", PipelineID: "goal:weekly-planning", Priority: PriorityP1}
	if err := entry.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if !entry.IsGoalTrigger() || entry.GoalType() != "weekly-planning" {
		t.Errorf("goal trigger parsing: %v %q", entry.IsGoalTrigger(), entry.GoalType())
	}
	plain := ScheduleEntry{PipelineID: "seo-cycle"}
	if plain.IsGoalTrigger() {
		t.Error("plain pipeline id is not a goal trigger")
	}
}
