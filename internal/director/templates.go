package director

import "cadence/internal/domain"

// DefaultTemplates returns the built-in pipeline templates. Callers may
// register additional templates on top of these.
func DefaultTemplates() []*domain.PipelineDefinition {
	return []*domain.PipelineDefinition{
		{
			ID:              "seo-cycle",
			Name:            "SEO Cycle",
			Description:     "Daily organic-search review and content refresh.",
			Steps:           []domain.PipelineStep{domain.Sequential("seo")},
			DefaultPriority: domain.PriorityP2,
			Trigger:         domain.PipelineTrigger{Type: domain.TriggerSchedule, Cron: "0 6 * * *"},
		},
		{
			ID:          "content-pipeline",
			Name:        "Content Pipeline",
			Description: "Strategy brief, drafting, and editorial pass for one content batch.",
			Steps: []domain.PipelineStep{
				domain.Sequential("content-strategy"),
				domain.Parallel("copywriting", "social-content"),
				domain.Sequential("copy-editing"),
			},
			DefaultPriority: domain.PriorityP2,
			Trigger:         domain.PipelineTrigger{Type: domain.TriggerManual},
		},
		{
			ID:          "launch-campaign",
			Name:        "Launch Campaign",
			Description: "Full campaign build with a review gate before final edit.",
			Steps: []domain.PipelineStep{
				domain.Sequential("content-strategy"),
				domain.Parallel("copywriting", "email-sequence", "social-content"),
				domain.ReviewStep("director"),
				domain.Sequential("copy-editing"),
			},
			DefaultPriority: domain.PriorityP1,
			Trigger:         domain.PipelineTrigger{Type: domain.TriggerManual},
		},
		{
			ID:          "cro-audit",
			Name:        "CRO Audit",
			Description: "Conversion funnel audit and landing-page fixes.",
			Steps: []domain.PipelineStep{
				domain.Sequential("analytics-review"),
				domain.Sequential("page-cro"),
			},
			DefaultPriority: domain.PriorityP1,
			Trigger:         domain.PipelineTrigger{Type: domain.TriggerEvent, EventType: domain.EventConversionDrop},
		},
	}
}
