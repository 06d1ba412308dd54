package director

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cadence/internal/domain"
	"cadence/internal/executor"
	"cadence/internal/faults"
	"cadence/internal/llm"
	"cadence/internal/logging"
	"cadence/internal/pipeline"
	"cadence/internal/skills"
	"cadence/internal/workspace"
)

var testSkills = []string{
	"content-strategy", "copywriting", "copy-editing",
	"email-sequence", "social-content", "seo",
}

func newTestFixture(t *testing.T, mock *llm.MockClient) (*workspace.Workspace, skills.Registry, *executor.Executor) {
	t.Helper()
	skillsDir := t.TempDir()
	for _, name := range testSkills {
		content := "---\nname: " + name + "\ndescription: " + name + " skill\n---\nDo " + name + " work.\n"
		if err := os.WriteFile(filepath.Join(skillsDir, name+".md"), []byte(content), 0o644); err != nil {
			t.Fatalf("write skill: %v", err)
		}
	}
	registry, err := skills.Load(skillsDir)
	if err != nil {
		t.Fatalf("skills.Load: %v", err)
	}
	ws, err := workspace.New(t.TempDir(), logging.Nop())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	exec := executor.New(ws, registry, mock, executor.Config{
		ModelMap:         map[string]string{"standard": "model-standard", "small": "model-small"},
		DefaultModelTier: "standard",
		RetryDelay:       time.Millisecond,
	}, logging.Nop())
	return ws, registry, exec
}

func newTestDirector(t *testing.T, mock *llm.MockClient, queue TaskQueue) (*Director, *workspace.Workspace) {
	t.Helper()
	ws, registry, exec := newTestFixture(t, mock)
	engine := pipeline.New(ws, exec, registry, logging.Nop())
	return New(ws, engine, registry, queue, logging.Nop()), ws
}

func okMock() *llm.MockClient {
	return llm.NewMockClient(llm.MockResult{Response: &llm.Response{
		Content: "artifact", InputTokens: 100, OutputTokens: 200, StopReason: llm.StopEndTurn,
	}})
}

type recordingQueue struct {
	batches [][]*domain.Task
}

func (r *recordingQueue) EnqueueBatch(tasks []*domain.Task) error {
	r.batches = append(r.batches, tasks)
	return nil
}

func TestRegisterTemplate(t *testing.T) {
	d, _ := newTestDirector(t, okMock(), nil)
	def := &domain.PipelineDefinition{
		ID:    "content-pipeline",
		Name:  "Content Pipeline",
		Steps: []domain.PipelineStep{domain.Sequential("copywriting")},
	}
	if err := d.RegisterTemplate(def); err != nil {
		t.Fatalf("RegisterTemplate: %v", err)
	}
	if err := d.RegisterTemplate(def); !faults.HasCode(err, faults.CodeAlreadyExists) {
		t.Errorf("duplicate registration error = %v", err)
	}
	if err := d.RegisterTemplate(&domain.PipelineDefinition{ID: "broken"}); !faults.HasCode(err, faults.CodeValidationError) {
		t.Errorf("invalid template error = %v", err)
	}
	if got := len(d.Templates()); got != 1 {
		t.Errorf("templates = %d, want 1", got)
	}
}

func TestDefaultTemplatesAreValid(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range DefaultTemplates() {
		if err := def.Validate(); err != nil {
			t.Errorf("template %s: %v", def.ID, err)
		}
		if seen[def.ID] {
			t.Errorf("duplicate template id %s", def.ID)
		}
		seen[def.ID] = true
	}
}

func TestStartPipeline_UnknownTemplate(t *testing.T) {
	d, _ := newTestDirector(t, okMock(), nil)
	if _, err := d.StartPipeline(context.Background(), "nope", "x", domain.PriorityP1); !faults.HasCode(err, faults.CodeNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestRunPipeline_Synchronous(t *testing.T) {
	mock := okMock()
	d, ws := newTestDirector(t, mock, nil)
	for _, def := range DefaultTemplates() {
		if err := d.RegisterTemplate(def); err != nil {
			t.Fatalf("RegisterTemplate: %v", err)
		}
	}

	result, err := d.RunPipeline(context.Background(), "content-pipeline", "Spring batch", "")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if result.Status != pipeline.StatusCompleted {
		t.Fatalf("status = %s, err = %v", result.Status, result.Err)
	}
	// content-pipeline: strategy, two parallel drafts, edit.
	if mock.CallCount() != 4 {
		t.Errorf("agent calls = %d, want 4", mock.CallCount())
	}
	tasks, err := ws.ListTasks(workspace.TaskFilter{Status: domain.TaskStatusCompleted})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 4 {
		t.Errorf("completed tasks = %d, want 4", len(tasks))
	}
}

func TestRunPipeline_HonorsMaxConcurrency(t *testing.T) {
	mock := okMock()
	mock.SetDelay(30 * time.Millisecond)
	d, _ := newTestDirector(t, mock, nil)
	d.SetMaxConcurrency(1)
	for _, def := range DefaultTemplates() {
		if err := d.RegisterTemplate(def); err != nil {
			t.Fatalf("RegisterTemplate: %v", err)
		}
	}

	// content-pipeline has a two-skill parallel step; a cap of one must
	// serialise it.
	result, err := d.RunPipeline(context.Background(), "content-pipeline", "Serial batch", "")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if result.Status != pipeline.StatusCompleted {
		t.Fatalf("status = %s, err = %v", result.Status, result.Err)
	}
	if peak := mock.PeakInFlight(); peak != 1 {
		t.Errorf("peak in-flight calls = %d, want 1", peak)
	}
}

func TestStartPipeline_AsyncCompletion(t *testing.T) {
	d, _ := newTestDirector(t, okMock(), nil)
	if err := d.RegisterTemplate(&domain.PipelineDefinition{
		ID:              "seo-cycle",
		Name:            "SEO Cycle",
		Steps:           []domain.PipelineStep{domain.Sequential("seo")},
		DefaultPriority: domain.PriorityP2,
	}); err != nil {
		t.Fatalf("RegisterTemplate: %v", err)
	}

	done := make(chan pipeline.Result, 1)
	var completedRunID string
	d.OnRunComplete(func(runID string, result pipeline.Result) {
		completedRunID = runID
		done <- result
	})

	activation, err := d.StartPipeline(context.Background(), "seo-cycle", "daily seo", "")
	if err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	if activation.Run.ID == "" || activation.Definition.ID != "seo-cycle" {
		t.Fatalf("activation = %+v", activation)
	}

	select {
	case result := <-done:
		if result.Status != pipeline.StatusCompleted {
			t.Errorf("result = %s, err = %v", result.Status, result.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not complete")
	}
	d.Wait()
	if completedRunID != activation.Run.ID {
		t.Errorf("completed run = %s, want %s", completedRunID, activation.Run.ID)
	}
}

func TestGoalDecompositionAndPlanning(t *testing.T) {
	d, ws := newTestDirector(t, okMock(), nil)

	goal, err := d.CreateGoal("Grow newsletter signups", "content", domain.PriorityP1)
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	if goal.Status != domain.GoalStatusActive {
		t.Errorf("goal status = %s", goal.Status)
	}

	plan, err := d.DecomposeGoal(goal)
	if err != nil {
		t.Fatalf("DecomposeGoal: %v", err)
	}
	if len(plan.Phases) != 3 {
		t.Fatalf("phases = %d, want 3", len(plan.Phases))
	}

	tasks, err := d.PlanGoalTasks(plan, goal)
	if err != nil {
		t.Fatalf("PlanGoalTasks: %v", err)
	}
	// Strategy 1 + Draft 2 + Edit 1.
	if len(tasks) != 4 {
		t.Fatalf("tasks = %d, want 4", len(tasks))
	}
	if tasks[0].Status != domain.TaskStatusPending {
		t.Errorf("phase 0 task status = %s", tasks[0].Status)
	}
	for _, task := range tasks[1:] {
		if task.Status != domain.TaskStatusBlocked {
			t.Errorf("dependent task %s status = %s, want blocked", task.ID, task.Status)
		}
	}

	// Plan and tasks are durable.
	if _, err := ws.ReadGoalPlan(goal.ID); err != nil {
		t.Errorf("ReadGoalPlan: %v", err)
	}
	persisted, err := ws.ReadTask(tasks[0].ID)
	if err != nil {
		t.Fatalf("ReadTask: %v", err)
	}
	if persisted.GoalID != goal.ID || persisted.Metadata["phase"] != "0" {
		t.Errorf("persisted task = %+v", persisted)
	}
}

func TestDecomposeGoal_UnknownCategoryFallsBack(t *testing.T) {
	d, _ := newTestDirector(t, okMock(), nil)
	goal, err := d.CreateGoal("Something odd", "mystery", domain.PriorityP2)
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	plan, err := d.DecomposeGoal(goal)
	if err != nil {
		t.Fatalf("DecomposeGoal: %v", err)
	}
	if len(plan.Phases) == 0 || plan.Phases[0].Name != "Strategy" {
		t.Errorf("fallback plan = %+v", plan.Phases)
	}
}

func TestCreateGoalFromSchedule_EnqueuesFirstPhase(t *testing.T) {
	queue := &recordingQueue{}
	d, _ := newTestDirector(t, okMock(), queue)

	goalID, err := d.CreateGoalFromSchedule(context.Background(), "weekly-planning", "content", "", domain.PriorityP1)
	if err != nil {
		t.Fatalf("CreateGoalFromSchedule: %v", err)
	}
	if goalID == "" {
		t.Fatal("empty goal id")
	}
	if len(queue.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(queue.batches))
	}
	// Only the unblocked first phase is enqueued.
	if len(queue.batches[0]) != 1 || queue.batches[0][0].To != "content-strategy" {
		t.Errorf("enqueued = %+v", queue.batches[0])
	}
	if queue.batches[0][0].Goal != "Scheduled goal: weekly-planning" {
		t.Errorf("goal description = %q", queue.batches[0][0].Goal)
	}
}

func TestAdvanceGoal(t *testing.T) {
	queue := &recordingQueue{}
	d, ws := newTestDirector(t, okMock(), queue)

	goal, err := d.CreateGoal("Grow newsletter signups", "content", domain.PriorityP1)
	if err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	plan, err := d.DecomposeGoal(goal)
	if err != nil {
		t.Fatalf("DecomposeGoal: %v", err)
	}
	tasks, err := d.PlanGoalTasks(plan, goal)
	if err != nil {
		t.Fatalf("PlanGoalTasks: %v", err)
	}

	// Nothing finished yet, nothing to promote.
	promoted, err := d.AdvanceGoal(goal.ID)
	if err != nil || promoted != 0 {
		t.Fatalf("AdvanceGoal = %d, %v", promoted, err)
	}

	complete := func(id string) {
		t.Helper()
		if _, err := ws.UpdateTaskStatus(id, domain.TaskStatusInProgress); err != nil {
			t.Fatalf("to in_progress: %v", err)
		}
		if _, err := ws.UpdateTaskStatus(id, domain.TaskStatusCompleted); err != nil {
			t.Fatalf("to completed: %v", err)
		}
	}

	complete(tasks[0].ID)
	promoted, err = d.AdvanceGoal(goal.ID)
	if err != nil {
		t.Fatalf("AdvanceGoal: %v", err)
	}
	if promoted != 2 {
		t.Fatalf("promoted = %d, want 2 draft tasks", promoted)
	}
	if len(queue.batches) != 1 || len(queue.batches[0]) != 2 {
		t.Errorf("enqueued batches = %+v", queue.batches)
	}

	// The edit phase stays blocked until drafting finishes.
	edits, err := ws.ListTasks(workspace.TaskFilter{GoalID: goal.ID, Status: domain.TaskStatusBlocked})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(edits) != 1 || edits[0].To != "copy-editing" {
		t.Errorf("blocked tasks = %+v", edits)
	}

	for _, task := range queue.batches[0] {
		complete(task.ID)
	}
	promoted, err = d.AdvanceGoal(goal.ID)
	if err != nil || promoted != 1 {
		t.Fatalf("final AdvanceGoal = %d, %v", promoted, err)
	}
}
