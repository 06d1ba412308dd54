package workspace

import (
	"encoding/json"
	"strings"

	"cadence/internal/domain"
	"cadence/internal/faults"
)

// WriteScheduleState persists the firing record of one schedule as JSON.
func (w *Workspace) WriteScheduleState(state domain.ScheduleState) error {
	if state.ScheduleID == "" {
		return faults.New(faults.CodeValidationError, "schedule state: schedule id is required")
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return faults.Wrap(faults.CodeWriteFailed, "marshal schedule state", err)
	}
	return w.WriteFile(SchedulePath(state.ScheduleID), string(data)+"\n")
}

// ReadScheduleState loads the firing record for one schedule.
func (w *Workspace) ReadScheduleState(scheduleID string) (*domain.ScheduleState, error) {
	content, err := w.ReadFile(SchedulePath(scheduleID))
	if err != nil {
		return nil, err
	}
	var state domain.ScheduleState
	if err := json.Unmarshal([]byte(content), &state); err != nil {
		return nil, faults.Wrap(faults.CodeParseError, "schedule state "+scheduleID, err)
	}
	return &state, nil
}

// ListScheduleStates loads every persisted schedule state, keyed by id. The
// scheduler rebuilds its in-memory cache from this on restart.
func (w *Workspace) ListScheduleStates() (map[string]domain.ScheduleState, error) {
	names, err := w.listByExt(schedulesDir, ".json")
	if err != nil {
		return nil, err
	}
	states := make(map[string]domain.ScheduleState, len(names))
	for _, name := range names {
		id := strings.TrimSuffix(name, ".json")
		state, err := w.ReadScheduleState(id)
		if err != nil {
			w.logger.Warn("skipping unparseable schedule state", "file", name, "error", err)
			continue
		}
		states[state.ScheduleID] = *state
	}
	return states, nil
}

// WriteOutput persists an agent artifact under outputs/{squad}/{skill}/ and
// returns its workspace-relative path.
func (w *Workspace) WriteOutput(squad, skill, taskID, content string) (string, error) {
	rel := OutputPath(squad, skill, taskID)
	if err := w.WriteFile(rel, content); err != nil {
		return "", err
	}
	return rel, nil
}

// ReadOutput loads an artifact by its workspace-relative path.
func (w *Workspace) ReadOutput(rel string) (string, error) {
	return w.ReadFile(rel)
}
