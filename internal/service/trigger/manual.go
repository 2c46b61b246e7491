package trigger

import (
	"context"
	"errors"
	"fmt"

	"github.com/strukturo/automate-go/internal/authz"
	"github.com/strukturo/automate-go/internal/domain"
	"github.com/strukturo/automate-go/internal/repo"
)

// ManuallyTrigger dispatches an automation on demand, as if the latest
// version of one of its watched models had just been created. The caller
// must own the automation's project; projectID only narrows the automation
// lookup and may be empty. When the automation watches several models the
// most recently updated one wins; the run is dispatched against the
// revision of the first trigger definition.
func (s *Service) ManuallyTrigger(ctx context.Context, automationID, userID, projectID string) (string, error) {
	automation, err := s.automations.GetAutomation(ctx, automationID, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", fmt.Errorf("%w: automation %q not found", domain.ErrInvalidTrigger, automationID)
		}
		return "", err
	}

	defs, err := s.automations.GetAutomationTriggerDefinitions(ctx, automation.ID, automation.ProjectID, domain.VersionCreationTriggerType)
	if err != nil {
		return "", err
	}
	if len(defs) == 0 {
		return "", fmt.Errorf("%w: automation %q has no version creation triggers", domain.ErrInvalidTrigger, automationID)
	}

	if s.access == nil {
		return "", errors.New("access checker is required for manual triggers")
	}
	if err := s.access.AssertProjectRole(ctx, userID, automation.ProjectID, authz.RoleProjectOwner); err != nil {
		return "", err
	}

	modelIDs := make([]string, 0, len(defs))
	for _, def := range defs {
		modelIDs = append(modelIDs, def.TriggeringID)
	}
	latest, err := s.versions.GetLatestVersions(ctx, modelIDs, automation.ProjectID, 1)
	if err != nil {
		return "", err
	}
	if len(latest) == 0 {
		return "", fmt.Errorf("%w: no version to trigger from", domain.ErrInvalidTrigger)
	}

	runID, err := s.TriggerAutomationRevisionRun(ctx, defs[0].AutomationRevisionID, domain.VersionCreatedManifest{
		ModelID:   latest[0].ModelID,
		VersionID: latest[0].ID,
	})
	if err != nil {
		return "", err
	}
	s.log.Info("automation triggered manually",
		"automation_id", automationID,
		"run_id", runID,
		"user_id", userID,
		"project_id", automation.ProjectID,
	)
	return runID, nil
}
