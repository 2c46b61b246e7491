package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/strukturo/automate-go/internal/domain"
)

type AutomationStore struct {
	db DB
}

func NewAutomationStore(db DB) *AutomationStore {
	if db == nil {
		return nil
	}
	return &AutomationStore{db: db}
}

func (s *AutomationStore) GetAutomation(ctx context.Context, automationID, projectID string) (domain.Automation, error) {
	if s == nil || s.db == nil {
		return domain.Automation{}, fmt.Errorf("automation store not initialized")
	}
	automationID = strings.TrimSpace(automationID)
	if automationID == "" {
		return domain.Automation{}, fmt.Errorf("automation id is required")
	}

	query := `SELECT automation_id, name, project_id, user_id, enabled, created_at, execution_engine_automation_id
	 FROM automations
	 WHERE automation_id = $1`
	args := []any{automationID}
	if projectID = strings.TrimSpace(projectID); projectID != "" {
		args = append(args, projectID)
		query += fmt.Sprintf(" AND project_id = $%d", len(args))
	}

	var automation domain.Automation
	var userID sql.NullString
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&automation.ID, &automation.Name, &automation.ProjectID, &userID,
		&automation.Enabled, &automation.CreatedAt, &automation.ExecutionEngineAutomationID); err != nil {
		return domain.Automation{}, handleNotFound(err)
	}
	if userID.Valid {
		automation.UserID = userID.String
	}
	return automation, nil
}

// GetRevision loads a revision joined with its automation, trigger
// definitions and function bindings.
func (s *AutomationStore) GetRevision(ctx context.Context, revisionID string) (domain.AutomationWithRevision, error) {
	if s == nil || s.db == nil {
		return domain.AutomationWithRevision{}, fmt.Errorf("automation store not initialized")
	}
	revisionID = strings.TrimSpace(revisionID)
	if revisionID == "" {
		return domain.AutomationWithRevision{}, fmt.Errorf("revision id is required")
	}

	var revision domain.AutomationRevision
	var revisionUserID sql.NullString
	row := s.db.QueryRowContext(
		ctx,
		`SELECT revision_id, automation_id, active, created_at, user_id
		 FROM automation_revisions
		 WHERE revision_id = $1`,
		revisionID,
	)
	if err := row.Scan(&revision.ID, &revision.AutomationID, &revision.Active, &revision.CreatedAt, &revisionUserID); err != nil {
		return domain.AutomationWithRevision{}, handleNotFound(err)
	}
	if revisionUserID.Valid {
		revision.UserID = revisionUserID.String
	}

	triggers, err := s.listRevisionTriggers(ctx, revisionID)
	if err != nil {
		return domain.AutomationWithRevision{}, err
	}
	functions, err := s.listRevisionFunctions(ctx, revisionID)
	if err != nil {
		return domain.AutomationWithRevision{}, err
	}
	revision.Triggers = triggers
	revision.Functions = functions

	automation, err := s.GetAutomation(ctx, revision.AutomationID, "")
	if err != nil {
		return domain.AutomationWithRevision{}, err
	}
	return domain.AutomationWithRevision{Automation: automation, Revision: revision}, nil
}

// GetActiveTriggerDefinitions returns trigger definitions bound to the given
// resource, limited to active revisions of enabled automations.
func (s *AutomationStore) GetActiveTriggerDefinitions(ctx context.Context, triggeringID string, triggerType domain.TriggerType) ([]domain.TriggerDefinition, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("automation store not initialized")
	}
	triggeringID = strings.TrimSpace(triggeringID)
	if triggeringID == "" {
		return nil, fmt.Errorf("triggering id is required")
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT t.automation_revision_id, t.triggering_id, t.trigger_type
		 FROM automation_triggers t
		 JOIN automation_revisions r ON r.revision_id = t.automation_revision_id
		 JOIN automations a ON a.automation_id = r.automation_id
		 WHERE t.triggering_id = $1 AND t.trigger_type = $2 AND r.active AND a.enabled`,
		triggeringID,
		string(triggerType),
	)
	if err != nil {
		return nil, fmt.Errorf("list active trigger definitions: %w", err)
	}
	defer rows.Close()
	return scanTriggerDefinitions(rows)
}

func (s *AutomationStore) GetAutomationTriggerDefinitions(ctx context.Context, automationID, projectID string, triggerType domain.TriggerType) ([]domain.TriggerDefinition, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("automation store not initialized")
	}
	automationID = strings.TrimSpace(automationID)
	if automationID == "" {
		return nil, fmt.Errorf("automation id is required")
	}

	query := `SELECT t.automation_revision_id, t.triggering_id, t.trigger_type
	 FROM automation_triggers t
	 JOIN automation_revisions r ON r.revision_id = t.automation_revision_id
	 JOIN automations a ON a.automation_id = r.automation_id
	 WHERE r.automation_id = $1 AND t.trigger_type = $2 AND r.active`
	args := []any{automationID, string(triggerType)}
	if projectID = strings.TrimSpace(projectID); projectID != "" {
		args = append(args, projectID)
		query += fmt.Sprintf(" AND a.project_id = $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list automation trigger definitions: %w", err)
	}
	defer rows.Close()
	return scanTriggerDefinitions(rows)
}

func (s *AutomationStore) GetAutomationToken(ctx context.Context, automationID string) (domain.AutomationToken, error) {
	if s == nil || s.db == nil {
		return domain.AutomationToken{}, fmt.Errorf("automation store not initialized")
	}
	automationID = strings.TrimSpace(automationID)
	if automationID == "" {
		return domain.AutomationToken{}, fmt.Errorf("automation id is required")
	}

	var token domain.AutomationToken
	var refreshToken sql.NullString
	row := s.db.QueryRowContext(
		ctx,
		`SELECT automation_id, engine_token, refresh_token
		 FROM automation_tokens
		 WHERE automation_id = $1`,
		automationID,
	)
	if err := row.Scan(&token.AutomationID, &token.EngineToken, &refreshToken); err != nil {
		return domain.AutomationToken{}, handleNotFound(err)
	}
	if refreshToken.Valid {
		token.RefreshToken = refreshToken.String
	}
	return token, nil
}

// StoreAutomation inserts an automation together with its engine token.
func (s *AutomationStore) StoreAutomation(ctx context.Context, automation domain.Automation, token domain.AutomationToken) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("automation store not initialized")
	}
	if err := automation.Validate(); err != nil {
		return err
	}
	if err := token.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO automations (automation_id, name, project_id, user_id, enabled, created_at, execution_engine_automation_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		strings.TrimSpace(automation.ID),
		strings.TrimSpace(automation.Name),
		strings.TrimSpace(automation.ProjectID),
		nullIfEmpty(automation.UserID),
		automation.Enabled,
		normalizeTime(automation.CreatedAt),
		strings.TrimSpace(automation.ExecutionEngineAutomationID),
	)
	if err != nil {
		return fmt.Errorf("insert automation: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO automation_tokens (automation_id, engine_token, refresh_token)
		 VALUES ($1,$2,$3)`,
		strings.TrimSpace(token.AutomationID),
		strings.TrimSpace(token.EngineToken),
		nullIfEmpty(token.RefreshToken),
	)
	if err != nil {
		return fmt.Errorf("insert automation token: %w", err)
	}
	return nil
}

func (s *AutomationStore) StoreAutomationRevision(ctx context.Context, revision domain.AutomationRevision) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("automation store not initialized")
	}
	if err := revision.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO automation_revisions (revision_id, automation_id, active, created_at, user_id)
		 VALUES ($1,$2,$3,$4,$5)`,
		strings.TrimSpace(revision.ID),
		strings.TrimSpace(revision.AutomationID),
		revision.Active,
		normalizeTime(revision.CreatedAt),
		nullIfEmpty(revision.UserID),
	)
	if err != nil {
		return fmt.Errorf("insert automation revision: %w", err)
	}

	for _, trigger := range revision.Triggers {
		_, err := s.db.ExecContext(
			ctx,
			`INSERT INTO automation_triggers (automation_revision_id, triggering_id, trigger_type)
			 VALUES ($1,$2,$3)`,
			strings.TrimSpace(revision.ID),
			strings.TrimSpace(trigger.TriggeringID),
			string(trigger.TriggerType),
		)
		if err != nil {
			return fmt.Errorf("insert trigger definition: %w", err)
		}
	}

	for _, function := range revision.Functions {
		_, err := s.db.ExecContext(
			ctx,
			`INSERT INTO automation_revision_functions (automation_revision_id, function_id, function_release_id, function_inputs)
			 VALUES ($1,$2,$3,$4)`,
			strings.TrimSpace(revision.ID),
			strings.TrimSpace(function.FunctionID),
			strings.TrimSpace(function.FunctionReleaseID),
			nullIfEmptyJSON(function.FunctionInputs),
		)
		if err != nil {
			return fmt.Errorf("insert revision function: %w", err)
		}
	}
	return nil
}

func (s *AutomationStore) listRevisionTriggers(ctx context.Context, revisionID string) ([]domain.TriggerDefinition, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT automation_revision_id, triggering_id, trigger_type
		 FROM automation_triggers
		 WHERE automation_revision_id = $1`,
		revisionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list revision triggers: %w", err)
	}
	defer rows.Close()
	return scanTriggerDefinitions(rows)
}

func (s *AutomationStore) listRevisionFunctions(ctx context.Context, revisionID string) ([]domain.RevisionFunction, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT function_id, function_release_id, function_inputs
		 FROM automation_revision_functions
		 WHERE automation_revision_id = $1
		 ORDER BY function_id ASC`,
		revisionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list revision functions: %w", err)
	}
	defer rows.Close()

	functions := make([]domain.RevisionFunction, 0)
	for rows.Next() {
		var function domain.RevisionFunction
		var inputs []byte
		if err := rows.Scan(&function.FunctionID, &function.FunctionReleaseID, &inputs); err != nil {
			return nil, fmt.Errorf("scan revision function: %w", err)
		}
		if len(inputs) > 0 {
			function.FunctionInputs = json.RawMessage(inputs)
		}
		functions = append(functions, function)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list revision functions: %w", err)
	}
	return functions, nil
}

func scanTriggerDefinitions(rows *sql.Rows) ([]domain.TriggerDefinition, error) {
	definitions := make([]domain.TriggerDefinition, 0)
	for rows.Next() {
		var def domain.TriggerDefinition
		var triggerType string
		if err := rows.Scan(&def.AutomationRevisionID, &def.TriggeringID, &triggerType); err != nil {
			return nil, fmt.Errorf("scan trigger definition: %w", err)
		}
		def.TriggerType = domain.TriggerType(triggerType)
		definitions = append(definitions, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan trigger definitions: %w", err)
	}
	return definitions, nil
}
