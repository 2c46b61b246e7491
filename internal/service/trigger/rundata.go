package trigger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strukturo/automate-go/internal/domain"
)

// createAutomationRunData builds the initial pending run record for a
// revision and its composed manifests. Pure apart from id generation and the
// clock.
func createAutomationRunData(manifests []domain.Manifest, revision domain.AutomationRevision, now time.Time) (domain.AutomationRun, error) {
	var versionManifests []domain.VersionCreatedManifest
	for _, manifest := range manifests {
		if vm, ok := domain.AsVersionCreatedManifest(manifest); ok {
			versionManifests = append(versionManifests, vm)
		}
	}
	if len(versionManifests) == 0 {
		return domain.AutomationRun{}, fmt.Errorf("%w: no version creation triggers to run from", domain.ErrInvalidTrigger)
	}

	run := domain.AutomationRun{
		ID:                   uuid.NewString(),
		AutomationRevisionID: revision.ID,
		Status:               domain.RunStatusPending,
		CreatedAt:            now.UTC(),
		UpdatedAt:            now.UTC(),
	}
	for _, vm := range versionManifests {
		run.Triggers = append(run.Triggers, domain.RunTrigger{
			TriggeringID: vm.VersionID,
			TriggerType:  vm.ManifestTriggerType(),
		})
	}
	for _, fn := range revision.Functions {
		run.FunctionRuns = append(run.FunctionRuns, domain.FunctionRun{
			ID:                uuid.NewString(),
			RunID:             run.ID,
			FunctionID:        fn.FunctionID,
			FunctionReleaseID: fn.FunctionReleaseID,
			FunctionInputs:    fn.FunctionInputs,
			Status:            domain.RunStatusPending,
			Elapsed:           0,
		})
	}
	return run, nil
}
