package workspace

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cadence/internal/domain"
	"cadence/internal/faults"
	"cadence/internal/logging"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	w, err := New(t.TempDir(), logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func TestWriteReadFile(t *testing.T) {
	w := newTestWorkspace(t)
	if err := w.WriteFile("tasks/sample.md", "hello"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	content, err := w.ReadFile("tasks/sample.md")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if content != "hello" {
		t.Errorf("content = %q, want hello", content)
	}
}

func TestReadFile_NotFound(t *testing.T) {
	w := newTestWorkspace(t)
	_, err := w.ReadFile("tasks/missing.md")
	if codeOf(t, err) != faults.CodeNotFound {
		t.Errorf("code = %s, want NOT_FOUND", codeOf(t, err))
	}
}

func TestPathSafety(t *testing.T) {
	w := newTestWorkspace(t)
	for _, path := range []string{"../escape.md", "tasks/../../escape.md", "", "   ", ".."} {
		if _, err := w.ReadFile(path); codeOf(t, err) != faults.CodeInvalidPath {
			t.Errorf("path %q: code = %s, want INVALID_PATH", path, codeOf(t, err))
		}
	}
}

func TestPathSafety_AbsoluteStaysInside(t *testing.T) {
	w := newTestWorkspace(t)
	// Join collapses the leading separator under root; the resolved path must
	// never leave the workspace.
	if err := w.WriteFile("tasks/deep/nested/file.md", "x"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	abs, err := w.Abs("tasks/deep/nested/file.md")
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	rel, err := filepath.Rel(w.Root(), abs)
	if err != nil || rel == ".." || rel[:1] == "/" {
		t.Errorf("resolved path %q escapes root", abs)
	}
}

func TestListFiles_OnlyMarkdownSorted(t *testing.T) {
	w := newTestWorkspace(t)
	for _, name := range []string{"b.md", "a.md", "notes.txt", "c.md"} {
		if err := w.WriteFile("tasks/"+name, "x"); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	names, err := w.ListFiles("tasks")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	want := []string{"a.md", "b.md", "c.md"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestListFiles_MissingDirIsEmpty(t *testing.T) {
	w := newTestWorkspace(t)
	names, err := w.ListFiles("outputs")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names = %v, want empty", names)
	}
}

func TestUpdateTaskStatus_ValidTransition(t *testing.T) {
	w := newTestWorkspace(t)
	task := sampleTask()
	if err := w.WriteTask(task); err != nil {
		t.Fatalf("WriteTask: %v", err)
	}
	updated, err := w.UpdateTaskStatus(task.ID, domain.TaskStatusInProgress)
	if err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	if updated.Status != domain.TaskStatusInProgress {
		t.Errorf("status = %s, want in_progress", updated.Status)
	}
	reread, err := w.ReadTask(task.ID)
	if err != nil {
		t.Fatalf("ReadTask: %v", err)
	}
	if reread.Status != domain.TaskStatusInProgress {
		t.Errorf("persisted status = %s, want in_progress", reread.Status)
	}
}

func TestUpdateTaskStatus_InvalidTransition(t *testing.T) {
	w := newTestWorkspace(t)
	task := sampleTask()
	if err := w.WriteTask(task); err != nil {
		t.Fatalf("WriteTask: %v", err)
	}
	_, err := w.UpdateTaskStatus(task.ID, domain.TaskStatusApproved)
	if codeOf(t, err) != faults.CodeValidationError {
		t.Errorf("code = %s, want VALIDATION_ERROR", codeOf(t, err))
	}
}

func TestUpdateTaskStatus_Atomic(t *testing.T) {
	w := newTestWorkspace(t)
	task := sampleTask()
	if err := w.WriteTask(task); err != nil {
		t.Fatalf("WriteTask: %v", err)
	}

	// Both goroutines race pending -> in_progress. Exactly one may observe
	// the pending pre-state and succeed; the other must see in_progress and
	// fail validation.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.UpdateTaskStatus(task.ID, domain.TaskStatusInProgress)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1", succeeded)
	}
}

func TestAppendLearning_HeaderAndOrder(t *testing.T) {
	w := newTestWorkspace(t)
	first := domain.LearningEntry{Date: ts("2026-02-16T00:00:00Z"), Skill: "copywriting", Lesson: "Short CTAs convert better."}
	second := domain.LearningEntry{Date: ts("2026-02-17T00:00:00Z"), Skill: "seo", Lesson: "Refresh stale posts\nbefore writing new ones."}

	if err := w.AppendLearning(first); err != nil {
		t.Fatalf("AppendLearning: %v", err)
	}
	if err := w.AppendLearning(second); err != nil {
		t.Fatalf("AppendLearning: %v", err)
	}

	content, err := w.ReadFile(LearningsPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if content[:len(learningsHeader)] != learningsHeader {
		t.Errorf("learnings file missing header: %q", content[:20])
	}

	entries, err := w.ReadLearnings()
	if err != nil {
		t.Fatalf("ReadLearnings: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Skill != "copywriting" || entries[1].Skill != "seo" {
		t.Errorf("entry order wrong: %+v", entries)
	}
	if entries[1].Lesson != second.Lesson {
		t.Errorf("lesson = %q, want %q", entries[1].Lesson, second.Lesson)
	}
}

func TestScheduleStateRoundTrip(t *testing.T) {
	w := newTestWorkspace(t)
	fired := ts("2026-02-16T06:00:00Z")
	state := domain.ScheduleState{
		ScheduleID:  "daily-seo",
		LastFiredAt: &fired,
		FireCount:   4,
	}
	if err := w.WriteScheduleState(state); err != nil {
		t.Fatalf("WriteScheduleState: %v", err)
	}
	states, err := w.ListScheduleStates()
	if err != nil {
		t.Fatalf("ListScheduleStates: %v", err)
	}
	got, ok := states["daily-seo"]
	if !ok {
		t.Fatalf("state not listed: %v", states)
	}
	if got.FireCount != 4 || !got.LastFiredAt.Equal(fired) {
		t.Errorf("state = %+v", got)
	}
}

func TestStaleLockReclaimed(t *testing.T) {
	w := newTestWorkspace(t)
	abs, err := w.Abs("tasks/locked.md")
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	lockDir := abs + lockSuffix
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	stale := time.Now().Add(-2 * lockStaleAfter)
	if err := os.Chtimes(lockDir, stale, stale); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	// The stale lock must be reclaimed well inside the acquisition timeout.
	done := make(chan error, 1)
	go func() { done <- w.WriteFile("tasks/locked.md", "x") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stale lock was not reclaimed")
	}
}
