package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/strukturo/automate-go/internal/domain"
	"github.com/strukturo/automate-go/internal/repo"
)

type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

const functionRunColumns = `function_run_id, run_id, function_id, function_release_id, function_inputs,
	status, elapsed, results, context_view, status_message, result_versions`

// UpsertRun persists a run with its triggers and function runs. Repeating the
// call with the same run id merges the mutable run fields, ignores duplicate
// trigger rows and merges the function-run rows, so the dispatcher's
// two-phase persist and retried dispatches stay idempotent.
func (s *RunStore) UpsertRun(ctx context.Context, run domain.AutomationRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}

	createdAt := normalizeTime(run.CreatedAt)
	updatedAt := normalizeTime(run.UpdatedAt)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO automation_runs (run_id, automation_revision_id, status, execution_engine_run_id, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			execution_engine_run_id = EXCLUDED.execution_engine_run_id,
			updated_at = EXCLUDED.updated_at`,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.AutomationRevisionID),
		string(run.Status),
		nullIfEmpty(run.ExecutionEngineRunID),
		createdAt,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	for _, trigger := range run.Triggers {
		_, err := s.db.ExecContext(
			ctx,
			`INSERT INTO automation_run_triggers (automation_run_id, triggering_id, trigger_type)
			 VALUES ($1,$2,$3)
			 ON CONFLICT DO NOTHING`,
			strings.TrimSpace(run.ID),
			strings.TrimSpace(trigger.TriggeringID),
			string(trigger.TriggerType),
		)
		if err != nil {
			return fmt.Errorf("upsert run trigger: %w", err)
		}
	}

	for _, fr := range run.FunctionRuns {
		resultVersions, err := encodeStringSlice(fr.ResultVersions)
		if err != nil {
			return fmt.Errorf("encode result versions: %w", err)
		}
		_, err = s.db.ExecContext(
			ctx,
			`INSERT INTO automation_function_runs (`+functionRunColumns+`)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			 ON CONFLICT (function_run_id) DO UPDATE SET
				status = EXCLUDED.status,
				elapsed = EXCLUDED.elapsed,
				results = EXCLUDED.results,
				context_view = EXCLUDED.context_view,
				status_message = EXCLUDED.status_message,
				result_versions = EXCLUDED.result_versions`,
			strings.TrimSpace(fr.ID),
			strings.TrimSpace(fr.RunID),
			strings.TrimSpace(fr.FunctionID),
			strings.TrimSpace(fr.FunctionReleaseID),
			nullIfEmptyJSON(fr.FunctionInputs),
			string(fr.Status),
			fr.Elapsed,
			nullIfEmptyJSON(fr.Results),
			nullIfEmpty(fr.ContextView),
			nullIfEmpty(fr.StatusMessage),
			resultVersions,
		)
		if err != nil {
			return fmt.Errorf("upsert function run: %w", err)
		}
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, runID string) (domain.AutomationRun, error) {
	if s == nil || s.db == nil {
		return domain.AutomationRun{}, fmt.Errorf("run store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return domain.AutomationRun{}, fmt.Errorf("run id is required")
	}

	var run domain.AutomationRun
	var status string
	var engineRunID sql.NullString
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, automation_revision_id, status, execution_engine_run_id, created_at, updated_at
		 FROM automation_runs
		 WHERE run_id = $1`,
		runID,
	)
	if err := row.Scan(&run.ID, &run.AutomationRevisionID, &status, &engineRunID, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return domain.AutomationRun{}, handleNotFound(err)
	}
	run.Status = domain.RunStatus(status)
	if engineRunID.Valid {
		run.ExecutionEngineRunID = engineRunID.String
	}

	triggers, err := s.listRunTriggers(ctx, runID)
	if err != nil {
		return domain.AutomationRun{}, err
	}
	run.Triggers = triggers

	functionRuns, err := s.listFunctionRunsByRun(ctx, runID)
	if err != nil {
		return domain.AutomationRun{}, err
	}
	run.FunctionRuns = functionRuns
	return run, nil
}

func (s *RunStore) GetFunctionRuns(ctx context.Context, ids []string) ([]domain.FunctionRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	trimmed := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			trimmed = append(trimmed, id)
		}
	}
	if len(trimmed) == 0 {
		return []domain.FunctionRun{}, nil
	}

	args := make([]any, 0, len(trimmed))
	marks := make([]string, 0, len(trimmed))
	for _, id := range trimmed {
		args = append(args, id)
		marks = append(marks, fmt.Sprintf("$%d", len(args)))
	}
	query := `SELECT ` + functionRunColumns + `
	 FROM automation_function_runs
	 WHERE function_run_id IN (` + strings.Join(marks, ",") + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list function runs: %w", err)
	}
	defer rows.Close()
	return scanFunctionRuns(rows)
}

func (s *RunStore) UpdateFunctionRun(ctx context.Context, id string, update repo.FunctionRunUpdate) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("function run id is required")
	}
	if domain.NormalizeRunStatus(string(update.Status)) == "" {
		return fmt.Errorf("function run status is required")
	}

	args := []any{string(update.Status)}
	sets := []string{"status = $1"}
	if update.ContextView != nil {
		args = append(args, strings.TrimSpace(*update.ContextView))
		sets = append(sets, fmt.Sprintf("context_view = $%d", len(args)))
	}
	if update.Results != nil {
		args = append(args, nullIfEmptyJSON(update.Results))
		sets = append(sets, fmt.Sprintf("results = $%d", len(args)))
	}
	if update.StatusMessage != nil {
		args = append(args, strings.TrimSpace(*update.StatusMessage))
		sets = append(sets, fmt.Sprintf("status_message = $%d", len(args)))
	}
	if update.Elapsed != nil {
		args = append(args, *update.Elapsed)
		sets = append(sets, fmt.Sprintf("elapsed = $%d", len(args)))
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE automation_function_runs SET %s WHERE function_run_id = $%d",
		strings.Join(sets, ", "),
		len(args),
	)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update function run: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update function run: %w", err)
	}
	if rowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *RunStore) UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, updatedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	if domain.NormalizeRunStatus(string(status)) == "" {
		return fmt.Errorf("run status is required")
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE automation_runs SET status = $1, updated_at = $2 WHERE run_id = $3`,
		string(status),
		normalizeTime(updatedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if rowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *RunStore) listRunTriggers(ctx context.Context, runID string) ([]domain.RunTrigger, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT triggering_id, trigger_type
		 FROM automation_run_triggers
		 WHERE automation_run_id = $1`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list run triggers: %w", err)
	}
	defer rows.Close()

	triggers := make([]domain.RunTrigger, 0)
	for rows.Next() {
		var trigger domain.RunTrigger
		var triggerType string
		if err := rows.Scan(&trigger.TriggeringID, &triggerType); err != nil {
			return nil, fmt.Errorf("scan run trigger: %w", err)
		}
		trigger.TriggerType = domain.TriggerType(triggerType)
		triggers = append(triggers, trigger)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list run triggers: %w", err)
	}
	return triggers, nil
}

func (s *RunStore) listFunctionRunsByRun(ctx context.Context, runID string) ([]domain.FunctionRun, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+functionRunColumns+`
		 FROM automation_function_runs
		 WHERE run_id = $1
		 ORDER BY function_id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list function runs by run: %w", err)
	}
	defer rows.Close()
	return scanFunctionRuns(rows)
}

func scanFunctionRuns(rows *sql.Rows) ([]domain.FunctionRun, error) {
	functionRuns := make([]domain.FunctionRun, 0)
	for rows.Next() {
		var fr domain.FunctionRun
		var status string
		var inputs, results, resultVersions []byte
		var contextView, statusMessage sql.NullString
		if err := rows.Scan(&fr.ID, &fr.RunID, &fr.FunctionID, &fr.FunctionReleaseID, &inputs,
			&status, &fr.Elapsed, &results, &contextView, &statusMessage, &resultVersions); err != nil {
			return nil, fmt.Errorf("scan function run: %w", err)
		}
		fr.Status = domain.RunStatus(status)
		if len(inputs) > 0 {
			fr.FunctionInputs = json.RawMessage(inputs)
		}
		if len(results) > 0 {
			fr.Results = json.RawMessage(results)
		}
		if contextView.Valid {
			fr.ContextView = contextView.String
		}
		if statusMessage.Valid {
			fr.StatusMessage = statusMessage.String
		}
		versions, err := decodeStringSlice(resultVersions)
		if err != nil {
			return nil, fmt.Errorf("decode result versions: %w", err)
		}
		fr.ResultVersions = versions
		functionRuns = append(functionRuns, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan function runs: %w", err)
	}
	return functionRuns, nil
}
