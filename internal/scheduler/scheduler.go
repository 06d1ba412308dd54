// Package scheduler fires scheduled pipeline activations at their cron
// times, exactly once per matched minute, subject to budget and overlap
// gates, and survives restarts through durable per-schedule state.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"cadence/internal/async"
	"cadence/internal/cron"
	"cadence/internal/domain"
	"cadence/internal/logging"
	"cadence/internal/workspace"
)

const (
	defaultTickInterval = time.Minute
	stopWaitLimit       = 5 * time.Second
)

// PipelineStarter is the slice of the Director the scheduler consumes.
// Both methods return the id of the started pipeline run or created goal.
type PipelineStarter interface {
	StartPipeline(ctx context.Context, template, description string, priority domain.Priority) (string, error)
	CreateGoalFromSchedule(ctx context.Context, goalType, category, description string, priority domain.Priority) (string, error)
}

// BudgetProvider snapshots current spend pressure.
type BudgetProvider func() domain.BudgetState

// Recorder counts firing outcomes. Satisfied by observability.Metrics.
type Recorder interface {
	RecordFire()
	RecordSkip(reason string)
}

// Config holds the scheduler knobs.
type Config struct {
	TickInterval        time.Duration
	CatchUpEnabled      bool
	CatchUpLookbackDays int
}

type scheduleSlot struct {
	entry domain.ScheduleEntry
	cron  *cron.Schedule
}

type runningPipeline struct {
	StartedAt  time.Time
	PipelineID string
}

// Scheduler drives cron-triggered activations.
type Scheduler struct {
	ws       *workspace.Workspace
	director PipelineStarter
	budget   BudgetProvider
	config   Config
	logger   *logging.Logger
	clock    func() time.Time
	metrics  Recorder

	mu              sync.Mutex
	slots           []scheduleSlot
	states          map[string]domain.ScheduleState
	running         map[string]runningPipeline
	firedThisMinute map[string]bool
	lastMinuteKey   string

	tickInProgress atomic.Bool
	cancel         context.CancelFunc
	done           chan struct{}
}

// New builds a Scheduler.
func New(ws *workspace.Workspace, director PipelineStarter, budget BudgetProvider, config Config, logger *logging.Logger) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = defaultTickInterval
	}
	return &Scheduler{
		ws:              ws,
		director:        director,
		budget:          budget,
		config:          config,
		logger:          logging.OrNop(logger).WithModule("scheduler"),
		clock:           time.Now,
		states:          make(map[string]domain.ScheduleState),
		running:         make(map[string]runningPipeline),
		firedThisMinute: make(map[string]bool),
	}
}

// SetClock overrides the scheduler clock. Tests only.
func (s *Scheduler) SetClock(clock func() time.Time) { s.clock = clock }

// SetMetrics attaches a firing-outcome recorder. Nil leaves metrics off.
func (s *Scheduler) SetMetrics(metrics Recorder) { s.metrics = metrics }

func (s *Scheduler) countFire() {
	if s.metrics != nil {
		s.metrics.RecordFire()
	}
}

func (s *Scheduler) countSkip(reason string) {
	if s.metrics != nil {
		s.metrics.RecordSkip(reason)
	}
}

// Load parses entries and restores durable state. Entries with an invalid
// cron expression are logged and dropped.
func (s *Scheduler) Load(entries []domain.ScheduleEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		parsed, err := cron.Parse(entry.Cron)
		if err != nil {
			s.logger.Error("dropping schedule with invalid cron", "schedule_id", entry.ID, "cron", entry.Cron, "error", err)
			continue
		}
		s.slots = append(s.slots, scheduleSlot{entry: entry, cron: parsed})
	}

	states, err := s.ws.ListScheduleStates()
	if err != nil {
		s.logger.Warn("could not restore schedule states", "error", err)
		return
	}
	for id, state := range states {
		s.states[id] = state
	}
}

// Start loads entries, runs catch-up when enabled, and begins ticking
// aligned to the next minute boundary.
func (s *Scheduler) Start(ctx context.Context, entries []domain.ScheduleEntry) error {
	s.Load(entries)

	if s.config.CatchUpEnabled {
		s.catchUp(ctx)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	async.Go(s.logger, "scheduler-loop", func() { s.loop(loopCtx) })
	s.logger.Info("scheduler started", "schedules", len(s.slots), "tick_interval", s.config.TickInterval)
	return nil
}

// Stop cancels the tick loop and waits, bounded, for an in-flight tick.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		select {
		case <-s.done:
		case <-time.After(stopWaitLimit):
			s.logger.Warn("scheduler stop timed out waiting for tick")
		}
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	boundary := time.Until(s.clock().Truncate(time.Minute).Add(time.Minute))
	timer := time.NewTimer(boundary)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	s.Tick(ctx)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every schedule once. Ticks never overlap; if one is still
// running when the next interval fires, the new tick is skipped.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.tickInProgress.CompareAndSwap(false, true) {
		s.logger.Warn("tick skipped", "reason", "tick_overlap_skipped")
		s.countSkip("tick_overlap_skipped")
		return
	}
	defer s.tickInProgress.Store(false)

	now := s.clock()
	key := minuteKey(now)

	s.mu.Lock()
	if key != s.lastMinuteKey {
		s.firedThisMinute = make(map[string]bool)
		s.lastMinuteKey = key
	}
	slots := append([]scheduleSlot(nil), s.slots...)
	s.mu.Unlock()

	for _, slot := range slots {
		s.evaluate(ctx, slot, now)
	}
}

func (s *Scheduler) evaluate(ctx context.Context, slot scheduleSlot, now time.Time) {
	id := slot.entry.ID
	if !slot.entry.Enabled {
		s.logger.Debug("schedule skipped", "schedule_id", id, "reason", "disabled")
		return
	}
	if !slot.cron.Matches(now) {
		return
	}

	s.mu.Lock()
	alreadyFired := s.firedThisMinute[id]
	_, stillRunning := s.running[id]
	s.mu.Unlock()

	if alreadyFired {
		s.logger.Debug("schedule skipped", "schedule_id", id, "reason", "already_fired_this_minute")
		return
	}
	if stillRunning {
		s.logger.Info("schedule skipped", "schedule_id", id, "reason", "pipeline_still_running")
		s.countSkip("pipeline_still_running")
		return
	}

	budget := s.budget()
	if !budget.Allows(slot.entry.Priority) {
		reason := "budget_" + string(budget.Level)
		s.logger.Info("schedule skipped", "schedule_id", id, "reason", reason, "priority", slot.entry.Priority)
		s.recordSkip(id, reason)
		s.countSkip(reason)
		return
	}

	if err := s.fire(ctx, slot.entry, now); err != nil {
		s.logger.Error("schedule fire failed", "schedule_id", id, "error", err)
		s.recordSkip(id, "fire_error: "+err.Error())
		s.countSkip("fire_error")
		return
	}

	s.mu.Lock()
	s.firedThisMinute[id] = true
	s.mu.Unlock()
}

// fire triggers the entry's pipeline or goal and records the firing both in
// memory and durably. fireTime is the matched cron instant, which differs
// from wall-clock now during catch-up.
func (s *Scheduler) fire(ctx context.Context, entry domain.ScheduleEntry, fireTime time.Time) error {
	var pipelineID string
	var err error
	if entry.IsGoalTrigger() {
		pipelineID, err = s.director.CreateGoalFromSchedule(ctx, entry.GoalType(), entry.GoalCategory, entry.Description, entry.Priority)
	} else {
		pipelineID, err = s.director.StartPipeline(ctx, entry.PipelineID, entry.Description, entry.Priority)
	}
	if err != nil {
		return err
	}

	fired := fireTime
	s.mu.Lock()
	s.running[entry.ID] = runningPipeline{StartedAt: s.clock(), PipelineID: pipelineID}
	state := domain.ScheduleState{
		ScheduleID:  entry.ID,
		LastFiredAt: &fired,
		FireCount:   s.states[entry.ID].FireCount + 1,
	}
	s.states[entry.ID] = state
	s.mu.Unlock()

	if err := s.ws.WriteScheduleState(state); err != nil {
		s.logger.Warn("could not persist schedule state", "schedule_id", entry.ID, "error", err)
	}
	s.logger.Info("schedule fired", "schedule_id", entry.ID, "pipeline_id", pipelineID, "fire_count", state.FireCount)
	s.countFire()
	return nil
}

// recordSkip updates the durable skip reason for a schedule, best-effort.
func (s *Scheduler) recordSkip(id, reason string) {
	s.mu.Lock()
	state := s.states[id]
	state.ScheduleID = id
	state.LastSkipReason = reason
	s.states[id] = state
	s.mu.Unlock()

	if err := s.ws.WriteScheduleState(state); err != nil {
		s.logger.Warn("could not persist skip reason", "schedule_id", id, "error", err)
	}
}

// catchUp backfills schedules whose most recent cron match happened while
// the process was down. Entries fire with the matched instant as their
// logical fire time, ordered by priority, subject to the budget gate.
func (s *Scheduler) catchUp(ctx context.Context) {
	now := s.clock()
	type pendingCatchUp struct {
		entry domain.ScheduleEntry
		prev  time.Time
	}
	var queue []pendingCatchUp
	for _, slot := range s.slots {
		if !slot.entry.Enabled {
			continue
		}
		prev, ok := slot.cron.Previous(now, s.config.CatchUpLookbackDays)
		if !ok {
			continue
		}
		state := s.states[slot.entry.ID]
		if state.LastFiredAt == nil || state.LastFiredAt.Before(prev) {
			queue = append(queue, pendingCatchUp{entry: slot.entry, prev: prev})
		}
	}

	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].entry.Priority.Rank() < queue[j].entry.Priority.Rank()
	})

	for _, pending := range queue {
		budget := s.budget()
		if !budget.Allows(pending.entry.Priority) {
			s.logger.Info("catch-up skipped", "schedule_id", pending.entry.ID, "reason", "budget_"+string(budget.Level))
			s.countSkip("budget_" + string(budget.Level))
			continue
		}
		if err := s.fire(ctx, pending.entry, pending.prev); err != nil {
			s.logger.Warn("catch-up fire failed", "schedule_id", pending.entry.ID, "error", err)
		}
	}
}

// MarkCompleted clears the overlap gate for a schedule once its pipeline
// finishes. Safe to call concurrently with ticks.
func (s *Scheduler) MarkCompleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

// MarkRunCompleted clears the overlap gate for whichever schedule started
// the given pipeline run. Used by callers that only learn the run id.
func (s *Scheduler) MarkRunCompleted(pipelineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rp := range s.running {
		if rp.PipelineID == pipelineID {
			delete(s.running, id)
		}
	}
}

// NextFiring projects the next cron match for a schedule, up to 366 days
// ahead.
func (s *Scheduler) NextFiring(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.slots {
		if slot.entry.ID == id {
			return slot.cron.Next(s.clock())
		}
	}
	return time.Time{}, false
}

// State returns the in-memory firing record for a schedule.
func (s *Scheduler) State(id string) (domain.ScheduleState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	return state, ok
}

// RunningCount reports how many triggered pipelines are still in flight.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func minuteKey(t time.Time) string {
	return t.Format("2006-01-02T15:04")
}
