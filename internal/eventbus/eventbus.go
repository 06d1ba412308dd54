// Package eventbus routes incoming system events to pipeline activations,
// at-least-once with idempotent per-event-id dedup and per-type cooldown
// windows.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"cadence/internal/domain"
	"cadence/internal/logging"
)

// Skip reasons reported in EmitResult.
const (
	SkipDuplicateEvent  = "Duplicate event ID"
	SkipCooldownActive  = "Cooldown active"
	SkipConditionNotMet = "Condition not met"
)

// processedCapacity bounds the dedup set. Events older than the window are
// evicted in LRU order.
const processedCapacity = 4096

// PipelineStarter is the slice of the Director the bus consumes. It returns
// the started run id plus the tasks created for it.
type PipelineStarter interface {
	StartPipeline(ctx context.Context, template, description string, priority domain.Priority) (string, []*domain.Task, error)
}

// TaskQueue dispatches tasks to workers.
type TaskQueue interface {
	EnqueueBatch(tasks []*domain.Task) error
}

// EmitResult summarises one emit call.
type EmitResult struct {
	EventID            string
	EventType          domain.EventType
	PipelinesTriggered int
	PipelineIDs        []string
	SkippedReasons     []string
}

// Bus maps events to pipeline activations.
type Bus struct {
	director PipelineStarter
	queue    TaskQueue
	logger   *logging.Logger
	clock    func() time.Time

	mu            sync.Mutex
	mappings      []domain.EventMapping
	cooldownUntil map[domain.EventType]time.Time
	processed     *lru.Cache[string, struct{}]
}

// New builds a Bus.
func New(director PipelineStarter, queue TaskQueue, logger *logging.Logger) *Bus {
	processed, _ := lru.New[string, struct{}](processedCapacity)
	return &Bus{
		director:      director,
		queue:         queue,
		logger:        logging.OrNop(logger).WithModule("eventbus"),
		clock:         time.Now,
		cooldownUntil: make(map[domain.EventType]time.Time),
		processed:     processed,
	}
}

// SetClock overrides the bus clock. Tests only.
func (b *Bus) SetClock(clock func() time.Time) { b.clock = clock }

// AddMapping registers a routing rule. Mappings fire in registration order.
func (b *Bus) AddMapping(mapping domain.EventMapping) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mappings = append(b.mappings, mapping)
}

// RemoveMappingByEvent removes every mapping registered for the event type.
func (b *Bus) RemoveMappingByEvent(eventType domain.EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.mappings[:0]
	for _, m := range b.mappings {
		if m.EventType != eventType {
			kept = append(kept, m)
		}
	}
	b.mappings = kept
}

// Mappings returns a defensive copy of the registered mappings.
func (b *Bus) Mappings() []domain.EventMapping {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.EventMapping(nil), b.mappings...)
}

// ClearCooldowns resets both the cooldown windows and the processed-id set.
func (b *Bus) ClearCooldowns() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cooldownUntil = make(map[domain.EventType]time.Time)
	b.processed.Purge()
}

// Emit processes one event: dedup by id, gate on cooldown, then fire every
// matching mapping in declaration order. The event id is marked processed
// regardless of outcome, so a given id never fires twice.
func (b *Bus) Emit(ctx context.Context, event domain.SystemEvent) EmitResult {
	result := EmitResult{EventID: event.ID, EventType: event.Type}
	logger := b.logger.With("event_id", event.ID, "event_type", event.Type)
	now := b.clock()

	b.mu.Lock()
	if _, seen := b.processed.Get(event.ID); seen {
		b.mu.Unlock()
		result.SkippedReasons = append(result.SkippedReasons, SkipDuplicateEvent)
		logger.Debug("event skipped", "reason", SkipDuplicateEvent)
		return result
	}

	var matching []domain.EventMapping
	for _, m := range b.mappings {
		if m.EventType == event.Type {
			matching = append(matching, m)
		}
	}

	hasCooldown := false
	for _, m := range matching {
		if m.CooldownMs > 0 {
			hasCooldown = true
		}
	}
	if hasCooldown && b.cooldownUntil[event.Type].After(now) {
		b.processed.Add(event.ID, struct{}{})
		b.mu.Unlock()
		result.SkippedReasons = append(result.SkippedReasons, SkipCooldownActive)
		logger.Info("event skipped", "reason", SkipCooldownActive)
		return result
	}
	b.mu.Unlock()

	description := describeEvent(event)
	var firedCooldown int64
	for _, m := range matching {
		ok, condErr := evalCondition(m, event)
		if condErr != nil {
			reason := "Condition error: " + condErr.Error()
			result.SkippedReasons = append(result.SkippedReasons, reason)
			logger.Warn("mapping condition failed", "template", m.PipelineTemplate, "error", condErr)
			continue
		}
		if !ok {
			result.SkippedReasons = append(result.SkippedReasons, SkipConditionNotMet)
			continue
		}

		runID, tasks, err := b.director.StartPipeline(ctx, m.PipelineTemplate, description, m.Priority)
		if err != nil {
			result.SkippedReasons = append(result.SkippedReasons, err.Error())
			logger.Error("pipeline activation failed", "template", m.PipelineTemplate, "error", err)
			continue
		}
		result.PipelinesTriggered++
		result.PipelineIDs = append(result.PipelineIDs, runID)
		if m.CooldownMs > firedCooldown {
			firedCooldown = m.CooldownMs
		}
		logger.Info("pipeline triggered", "template", m.PipelineTemplate, "run_id", runID)

		if b.queue != nil && len(tasks) > 0 {
			if err := b.queue.EnqueueBatch(tasks); err != nil {
				// The pipeline still counts as triggered.
				logger.Error("task enqueue failed", "run_id", runID, "error", err)
			}
		}
	}

	b.mu.Lock()
	if firedCooldown > 0 {
		b.cooldownUntil[event.Type] = now.Add(time.Duration(firedCooldown) * time.Millisecond)
	}
	b.processed.Add(event.ID, struct{}{})
	b.mu.Unlock()
	return result
}

// evalCondition runs a mapping condition inside a panic guard. A nil
// condition always passes.
func evalCondition(m domain.EventMapping, event domain.SystemEvent) (ok bool, err error) {
	if m.Condition == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("%v", r)
		}
	}()
	return m.Condition(event), nil
}

func describeEvent(event domain.SystemEvent) string {
	data, err := json.Marshal(event.Data)
	if err != nil {
		data = []byte("{}")
	}
	return fmt.Sprintf("[Event: %s] %s", event.Type, data)
}
