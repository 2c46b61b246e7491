package trigger

import (
	"context"
	"fmt"

	"github.com/strukturo/automate-go/internal/domain"
	"github.com/strukturo/automate-go/internal/engine"
	"github.com/strukturo/automate-go/internal/platform/auth"
)

// dispatchScopes is the credential footprint a dispatched run gets: enough
// to read the project, write result versions and report back, nothing more.
var dispatchScopes = []string{
	auth.ScopeProfileRead,
	auth.ScopeStreamsRead,
	auth.ScopeStreamsWrite,
	auth.ScopeReportResults,
}

// TriggerAutomationRevisionRun validates, composes and dispatches one run
// for the given revision and manifest. The run record is persisted as
// pending before the engine is called; an engine failure is recorded on the
// run (status error, message on every function run) rather than returned, so
// the caller always gets the local run id once the record exists.
func (s *Service) TriggerAutomationRevisionRun(ctx context.Context, revisionID string, manifest domain.Manifest) (string, error) {
	record, userID, engineToken, err := s.ensureRunConditions(ctx, revisionID, manifest)
	if err != nil {
		return "", err
	}
	versionManifest, _ := domain.AsVersionCreatedManifest(manifest)

	manifests, err := s.composeTriggerData(ctx, record.ProjectID, versionManifest, record.Revision.Triggers)
	if err != nil {
		return "", err
	}

	credential, err := s.tokens.MintProjectScopedToken(ctx, userID, record.ProjectID, "automation run", dispatchScopes)
	if err != nil {
		return "", fmt.Errorf("mint run credential: %w", err)
	}

	asManifests := make([]domain.Manifest, 0, len(manifests))
	for _, m := range manifests {
		asManifests = append(asManifests, m)
	}
	run, err := createAutomationRunData(asManifests, record.Revision, s.now())
	if err != nil {
		return "", err
	}
	if err := s.runs.UpsertRun(ctx, run); err != nil {
		return "", fmt.Errorf("persist automation run: %w", err)
	}

	request := engine.RunRequest{
		ProjectID:       record.ProjectID,
		AutomationID:    record.ExecutionEngineAutomationID,
		AutomationRunID: run.ID,
		Manifests:       engine.ManifestsToWire(manifests),
		Token:           credential,
		AutomationToken: engineToken,
	}
	for _, fr := range run.FunctionRuns {
		request.Functions = append(request.Functions, engine.RunFunctionDefinition{
			FunctionRunID:     fr.ID,
			FunctionID:        fr.FunctionID,
			FunctionReleaseID: fr.FunctionReleaseID,
			FunctionInputs:    fr.FunctionInputs,
		})
	}

	engineRunID, engineErr := s.engine.TriggerRun(ctx, request)
	if engineErr != nil {
		s.log.Error("execution engine dispatch failed",
			"run_id", run.ID,
			"automation_id", record.ID,
			"revision_id", revisionID,
			"error", engineErr,
		)
		run.Status = domain.RunStatusError
		run.UpdatedAt = s.now().UTC()
		for i := range run.FunctionRuns {
			run.FunctionRuns[i].Status = domain.RunStatusError
			run.FunctionRuns[i].StatusMessage = engineErr.Error()
		}
		if err := s.runs.UpsertRun(ctx, run); err != nil {
			return "", fmt.Errorf("record dispatch failure: %w", err)
		}
		s.appendAudit(ctx, "automation_run.dispatch_failed", run.ID, map[string]any{
			"automation_id": record.ID,
			"revision_id":   revisionID,
			"error":         engineErr.Error(),
		})
		return run.ID, nil
	}

	run.ExecutionEngineRunID = engineRunID
	run.UpdatedAt = s.now().UTC()
	if err := s.runs.UpsertRun(ctx, run); err != nil {
		return "", fmt.Errorf("record engine run id: %w", err)
	}
	s.appendAudit(ctx, "automation_run.dispatched", run.ID, map[string]any{
		"automation_id":           record.ID,
		"revision_id":             revisionID,
		"execution_engine_run_id": engineRunID,
	})
	s.log.Info("automation run dispatched",
		"run_id", run.ID,
		"automation_id", record.ID,
		"revision_id", revisionID,
		"execution_engine_run_id", engineRunID,
	)
	return run.ID, nil
}
