package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/strukturo/automate-go/internal/domain"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// VersionRecord is the slice of a model version the orchestrator needs: the
// resource-versioning subsystem owns the rest.
type VersionRecord struct {
	ID        string
	ModelID   string
	ProjectID string
	AuthorID  string
	CreatedAt time.Time
}

// FunctionRunUpdate carries the optional fields of a status report. Nil
// pointers (and a nil Results) mean "leave the stored value alone".
type FunctionRunUpdate struct {
	Status        domain.RunStatus
	ContextView   *string
	Results       json.RawMessage
	StatusMessage *string
	Elapsed       *float64
}

// AutomationRepository manages automation definitions, revisions, trigger
// definitions and engine tokens.
type AutomationRepository interface {
	GetAutomation(ctx context.Context, automationID, projectID string) (domain.Automation, error)
	GetRevision(ctx context.Context, revisionID string) (domain.AutomationWithRevision, error)
	GetActiveTriggerDefinitions(ctx context.Context, triggeringID string, triggerType domain.TriggerType) ([]domain.TriggerDefinition, error)
	GetAutomationTriggerDefinitions(ctx context.Context, automationID, projectID string, triggerType domain.TriggerType) ([]domain.TriggerDefinition, error)
	GetAutomationToken(ctx context.Context, automationID string) (domain.AutomationToken, error)
	StoreAutomation(ctx context.Context, automation domain.Automation, token domain.AutomationToken) error
	StoreAutomationRevision(ctx context.Context, revision domain.AutomationRevision) error
}

// RunRepository manages automation runs and their function runs. UpsertRun
// must be idempotent: repeating it with the same run id merges the mutable
// run fields and function-run rows instead of duplicating them.
type RunRepository interface {
	UpsertRun(ctx context.Context, run domain.AutomationRun) error
	GetRun(ctx context.Context, runID string) (domain.AutomationRun, error)
	GetFunctionRuns(ctx context.Context, ids []string) ([]domain.FunctionRun, error)
	UpdateFunctionRun(ctx context.Context, id string, update FunctionRunUpdate) error
	UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, updatedAt time.Time) error
}

// VersionRepository reads model versions owned by the versioning subsystem.
type VersionRepository interface {
	GetVersion(ctx context.Context, versionID string) (VersionRecord, error)
	GetLatestVersions(ctx context.Context, modelIDs []string, projectID string, limit int) ([]VersionRecord, error)
}
