package report

import (
	"time"

	"github.com/strukturo/automate-go/internal/domain"
	"github.com/strukturo/automate-go/internal/platform/auditlog"
)

func auditEvent(now time.Time, runID string, to domain.RunStatus) auditlog.Event {
	return auditlog.Event{
		OccurredAt:   now.UTC(),
		Actor:        "execution-engine",
		Action:       "automation_run.status_changed",
		ResourceType: "automation_run",
		ResourceID:   runID,
		Payload: map[string]any{
			"status": string(to),
		},
	}
}
