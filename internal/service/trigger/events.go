package trigger

import (
	"context"
	"sync"

	"github.com/strukturo/automate-go/internal/domain"
)

// OnModelVersionCreate fans a version-created event out to every automation
// revision watching the model. Each matching revision dispatches in its own
// goroutine; a failure in one never blocks or cancels the others, and no
// error reaches the event producer.
func (s *Service) OnModelVersionCreate(ctx context.Context, modelID, versionID string) {
	defs, err := s.automations.GetActiveTriggerDefinitions(ctx, modelID, domain.VersionCreationTriggerType)
	if err != nil {
		s.log.Error("load trigger definitions for version event failed",
			"model_id", modelID,
			"version_id", versionID,
			"error", err,
		)
		return
	}
	if len(defs) == 0 {
		return
	}

	manifest := domain.VersionCreatedManifest{ModelID: modelID, VersionID: versionID}
	var wg sync.WaitGroup
	for _, def := range defs {
		wg.Add(1)
		go func(def domain.TriggerDefinition) {
			defer wg.Done()
			runID, err := s.TriggerAutomationRevisionRun(ctx, def.AutomationRevisionID, manifest)
			if err != nil {
				s.log.Error("automation trigger failed",
					"revision_id", def.AutomationRevisionID,
					"model_id", modelID,
					"version_id", versionID,
					"error", err,
				)
				return
			}
			s.log.Info("automation triggered by version event",
				"revision_id", def.AutomationRevisionID,
				"run_id", runID,
				"model_id", modelID,
				"version_id", versionID,
			)
		}(def)
	}
	wg.Wait()
}
