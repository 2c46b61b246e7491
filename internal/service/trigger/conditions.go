package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/strukturo/automate-go/internal/domain"
	"github.com/strukturo/automate-go/internal/repo"
)

// ensureRunConditions verifies every precondition for dispatching a run off
// the given revision and manifest. The checks are ordered; the first failure
// wins. On success it returns the joined automation+revision, the user the
// run executes on behalf of (the triggering version's author) and the
// automation's engine token.
func (s *Service) ensureRunConditions(ctx context.Context, revisionID string, manifest domain.Manifest) (domain.AutomationWithRevision, string, string, error) {
	record, err := s.automations.GetRevision(ctx, revisionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.AutomationWithRevision{}, "", "", fmt.Errorf("%w: automation revision %q not found", domain.ErrInvalidTrigger, revisionID)
		}
		return domain.AutomationWithRevision{}, "", "", err
	}
	if !record.Enabled {
		return domain.AutomationWithRevision{}, "", "", fmt.Errorf("%w: automation %q is disabled", domain.ErrInvalidTrigger, record.ID)
	}
	if !record.Revision.Active {
		return domain.AutomationWithRevision{}, "", "", fmt.Errorf("%w: automation revision %q is not active", domain.ErrInvalidTrigger, revisionID)
	}

	versionManifest, ok := domain.AsVersionCreatedManifest(manifest)
	if !ok {
		return domain.AutomationWithRevision{}, "", "", fmt.Errorf("%w: only version creation triggers are supported", domain.ErrInvalidTrigger)
	}
	if err := versionManifest.Validate(); err != nil {
		return domain.AutomationWithRevision{}, "", "", err
	}

	var matched bool
	for _, def := range record.Revision.Triggers {
		if def.TriggerType == versionManifest.ManifestTriggerType() && def.TriggeringID == versionManifest.ModelID {
			matched = true
			break
		}
	}
	if !matched {
		return domain.AutomationWithRevision{}, "", "", fmt.Errorf("%w: model %q does not match any trigger of revision %q", domain.ErrInvalidTrigger, versionManifest.ModelID, revisionID)
	}

	version, err := s.versions.GetVersion(ctx, versionManifest.VersionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.AutomationWithRevision{}, "", "", fmt.Errorf("%w: triggering version %q not found", domain.ErrInvalidTrigger, versionManifest.VersionID)
		}
		return domain.AutomationWithRevision{}, "", "", err
	}
	if strings.TrimSpace(version.AuthorID) == "" {
		return domain.AutomationWithRevision{}, "", "", fmt.Errorf("%w: triggering version %q has no author", domain.ErrInvalidTrigger, versionManifest.VersionID)
	}

	token, err := s.automations.GetAutomationToken(ctx, record.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.AutomationWithRevision{}, "", "", fmt.Errorf("%w: automation %q has no token", domain.ErrInvalidTrigger, record.ID)
		}
		return domain.AutomationWithRevision{}, "", "", err
	}

	return record, version.AuthorID, token.EngineToken, nil
}
