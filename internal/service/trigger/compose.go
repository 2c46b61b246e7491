package trigger

import (
	"context"
	"fmt"

	"github.com/strukturo/automate-go/internal/domain"
)

// composeTriggerData assembles the full manifest set for a run. The
// originating manifest always comes first. When the revision watches more
// than one model, the latest version of each sibling model is appended so
// every function sees a consistent view of the watched resources.
func (s *Service) composeTriggerData(ctx context.Context, projectID string, manifest domain.VersionCreatedManifest, defs []domain.TriggerDefinition) ([]domain.VersionCreatedManifest, error) {
	manifests := []domain.VersionCreatedManifest{manifest}
	if len(defs) <= 1 {
		return manifests, nil
	}

	var siblingModelIDs []string
	for _, def := range defs {
		if def.TriggerType != domain.VersionCreationTriggerType {
			continue
		}
		if def.TriggeringID == manifest.ModelID {
			continue
		}
		siblingModelIDs = append(siblingModelIDs, def.TriggeringID)
	}
	if len(siblingModelIDs) == 0 {
		return manifests, nil
	}

	latest, err := s.versions.GetLatestVersions(ctx, siblingModelIDs, projectID, 0)
	if err != nil {
		return nil, fmt.Errorf("load latest versions for watched models: %w", err)
	}
	for _, version := range latest {
		manifests = append(manifests, domain.VersionCreatedManifest{
			ModelID:   version.ModelID,
			VersionID: version.ID,
		})
	}
	return manifests, nil
}
