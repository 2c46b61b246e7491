package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/strukturo/automate-go/internal/domain"
	"github.com/strukturo/automate-go/internal/repo"
)

// ApplyFile loads a provisioning spec from disk and registers it. An
// automation that already exists is skipped whole, so re-running the service
// with the same file is safe.
func ApplyFile(ctx context.Context, automations repo.AutomationRepository, path string, log *slog.Logger) error {
	input, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read provisioning file: %w", err)
	}
	spec, err := ParseSpec(input)
	if err != nil {
		return err
	}
	return Apply(ctx, automations, spec, log)
}

func Apply(ctx context.Context, automations repo.AutomationRepository, spec Spec, log *slog.Logger) error {
	if automations == nil {
		return errors.New("automation repository is required")
	}
	if log == nil {
		log = slog.Default()
	}

	for _, entry := range spec.Automations {
		_, err := automations.GetAutomation(ctx, entry.ID, entry.ProjectID)
		if err == nil {
			log.Info("provisioned automation already exists, skipping", "automation_id", entry.ID)
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("check automation %s: %w", entry.ID, err)
		}

		automation := domain.Automation{
			ID:                          strings.TrimSpace(entry.ID),
			Name:                        strings.TrimSpace(entry.Name),
			ProjectID:                   strings.TrimSpace(entry.ProjectID),
			UserID:                      strings.TrimSpace(entry.UserID),
			Enabled:                     entry.Enabled,
			ExecutionEngineAutomationID: strings.TrimSpace(entry.ExecutionEngineAutomationID),
		}
		token := domain.AutomationToken{
			AutomationID: automation.ID,
			EngineToken:  strings.TrimSpace(entry.Token.EngineToken),
			RefreshToken: strings.TrimSpace(entry.Token.RefreshToken),
		}
		if err := automations.StoreAutomation(ctx, automation, token); err != nil {
			return fmt.Errorf("store automation %s: %w", automation.ID, err)
		}

		for _, rev := range entry.Revisions {
			revision, err := toDomainRevision(automation.ID, rev)
			if err != nil {
				return err
			}
			if err := automations.StoreAutomationRevision(ctx, revision); err != nil {
				return fmt.Errorf("store automation revision %s: %w", revision.ID, err)
			}
		}
		log.Info("provisioned automation",
			"automation_id", automation.ID,
			"project_id", automation.ProjectID,
			"revisions", len(entry.Revisions),
		)
	}
	return nil
}

func toDomainRevision(automationID string, rev Revision) (domain.AutomationRevision, error) {
	revision := domain.AutomationRevision{
		ID:           strings.TrimSpace(rev.ID),
		AutomationID: automationID,
		Active:       rev.Active,
		UserID:       strings.TrimSpace(rev.UserID),
	}
	for _, trigger := range rev.Triggers {
		revision.Triggers = append(revision.Triggers, domain.TriggerDefinition{
			AutomationRevisionID: revision.ID,
			TriggeringID:         strings.TrimSpace(trigger.ModelID),
			TriggerType:          domain.VersionCreationTriggerType,
		})
	}
	for _, function := range rev.Functions {
		var inputs json.RawMessage
		if len(function.Inputs) > 0 {
			encoded, err := json.Marshal(function.Inputs)
			if err != nil {
				return domain.AutomationRevision{}, fmt.Errorf("encode function inputs for %s: %w", function.FunctionID, err)
			}
			inputs = encoded
		}
		revision.Functions = append(revision.Functions, domain.RevisionFunction{
			FunctionID:        strings.TrimSpace(function.FunctionID),
			FunctionReleaseID: strings.TrimSpace(function.FunctionReleaseID),
			FunctionInputs:    inputs,
		})
	}
	return revision, nil
}
