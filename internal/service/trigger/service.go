// Package trigger turns triggering occurrences into persisted automation
// runs and hands them to the execution engine. It owns run-condition
// validation, trigger data composition, run record construction, dispatch
// and the event fan-out.
package trigger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/strukturo/automate-go/internal/engine"
	"github.com/strukturo/automate-go/internal/platform/auditlog"
	"github.com/strukturo/automate-go/internal/repo"
)

// EngineClient submits composed runs to the external execution engine.
type EngineClient interface {
	TriggerRun(ctx context.Context, request engine.RunRequest) (string, error)
}

// TokenMinter issues the short-lived project-scoped credential a dispatched
// run authenticates back with.
type TokenMinter interface {
	MintProjectScopedToken(ctx context.Context, userID, projectID, name string, scopes []string) (string, error)
}

// AccessChecker asserts a user holds a role on a project. Implementations
// wrap the external authorization service.
type AccessChecker interface {
	AssertProjectRole(ctx context.Context, userID, projectID, role string) error
}

// AuditAppender records run lifecycle events. Optional.
type AuditAppender interface {
	Append(ctx context.Context, event auditlog.Event) (int64, error)
}

type Service struct {
	automations repo.AutomationRepository
	runs        repo.RunRepository
	versions    repo.VersionRepository
	engine      EngineClient
	tokens      TokenMinter
	access      AccessChecker
	audit       AuditAppender
	log         *slog.Logger
	now         func() time.Time
}

func NewService(
	automations repo.AutomationRepository,
	runs repo.RunRepository,
	versions repo.VersionRepository,
	engineClient EngineClient,
	tokens TokenMinter,
	access AccessChecker,
	audit AuditAppender,
	log *slog.Logger,
) (*Service, error) {
	if automations == nil {
		return nil, errors.New("automation repository is required")
	}
	if runs == nil {
		return nil, errors.New("run repository is required")
	}
	if versions == nil {
		return nil, errors.New("version repository is required")
	}
	if engineClient == nil {
		return nil, errors.New("engine client is required")
	}
	if tokens == nil {
		return nil, errors.New("token minter is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		automations: automations,
		runs:        runs,
		versions:    versions,
		engine:      engineClient,
		tokens:      tokens,
		access:      access,
		audit:       audit,
		log:         log,
		now:         time.Now,
	}, nil
}

func (s *Service) appendAudit(ctx context.Context, action, runID string, payload map[string]any) {
	if s.audit == nil {
		return
	}
	_, err := s.audit.Append(ctx, auditlog.Event{
		OccurredAt:   s.now().UTC(),
		Actor:        "orchestrator",
		Action:       action,
		ResourceType: "automation_run",
		ResourceID:   runID,
		Payload:      payload,
	})
	if err != nil {
		s.log.Warn("audit append failed", "action", action, "run_id", runID, "error", err)
	}
}
