package domain

import (
	"fmt"
	"time"
)

// EventType names a recognized system event. The set is closed: webhooks
// carrying unknown types are rejected at the boundary.
type EventType string

const (
	EventTrafficDrop      EventType = "traffic_drop"
	EventTrafficSpike     EventType = "traffic_spike"
	EventConversionDrop   EventType = "conversion_drop"
	EventCampaignLaunched EventType = "campaign_launched"
	EventCompetitorMove   EventType = "competitor_move"
	EventContentPublished EventType = "content_published"
	EventBudgetThreshold  EventType = "budget_threshold"
	EventReviewResolved   EventType = "review_resolved"
)

var validEventTypes = map[EventType]bool{
	EventTrafficDrop:      true,
	EventTrafficSpike:     true,
	EventConversionDrop:   true,
	EventCampaignLaunched: true,
	EventCompetitorMove:   true,
	EventContentPublished: true,
	EventBudgetThreshold:  true,
	EventReviewResolved:   true,
}

// IsValid returns true if the event type is one of the recognized values.
func (t EventType) IsValid() bool {
	return validEventTypes[t]
}

// SystemEvent is an incoming signal from a webhook or an internal producer.
type SystemEvent struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Validate checks the event shape at the ingestion boundary.
func (e *SystemEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event: id is required")
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("event: unknown type %q", e.Type)
	}
	return nil
}

// EventMapping routes an event type to a pipeline template. Condition, when
// non-nil, must return true for the mapping to fire. CooldownMs suppresses
// re-triggering of the same event type inside the window.
type EventMapping struct {
	EventType        EventType
	PipelineTemplate string
	Priority         Priority
	CooldownMs       int64
	Condition        func(SystemEvent) bool
}
