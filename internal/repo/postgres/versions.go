package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/strukturo/automate-go/internal/repo"
)

// VersionStore reads the model-version projection the orchestrator consumes.
// Version rows are written by the resource-versioning subsystem.
type VersionStore struct {
	db DB
}

func NewVersionStore(db DB) *VersionStore {
	if db == nil {
		return nil
	}
	return &VersionStore{db: db}
}

func (s *VersionStore) GetVersion(ctx context.Context, versionID string) (repo.VersionRecord, error) {
	if s == nil || s.db == nil {
		return repo.VersionRecord{}, fmt.Errorf("version store not initialized")
	}
	versionID = strings.TrimSpace(versionID)
	if versionID == "" {
		return repo.VersionRecord{}, fmt.Errorf("version id is required")
	}

	var record repo.VersionRecord
	row := s.db.QueryRowContext(
		ctx,
		`SELECT version_id, model_id, project_id, author_id, created_at
		 FROM model_versions
		 WHERE version_id = $1`,
		versionID,
	)
	if err := row.Scan(&record.ID, &record.ModelID, &record.ProjectID, &record.AuthorID, &record.CreatedAt); err != nil {
		return repo.VersionRecord{}, handleNotFound(err)
	}
	return record, nil
}

// GetLatestVersions returns the newest version of each requested model,
// newest first. A positive limit caps the result, so limit 1 yields the most
// recent version across all the given models.
func (s *VersionStore) GetLatestVersions(ctx context.Context, modelIDs []string, projectID string, limit int) ([]repo.VersionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("version store not initialized")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	trimmed := make([]string, 0, len(modelIDs))
	for _, id := range modelIDs {
		if id = strings.TrimSpace(id); id != "" {
			trimmed = append(trimmed, id)
		}
	}
	if len(trimmed) == 0 {
		return []repo.VersionRecord{}, nil
	}

	args := []any{projectID}
	marks := make([]string, 0, len(trimmed))
	for _, id := range trimmed {
		args = append(args, id)
		marks = append(marks, fmt.Sprintf("$%d", len(args)))
	}
	query := `SELECT version_id, model_id, project_id, author_id, created_at FROM (
		SELECT DISTINCT ON (model_id) version_id, model_id, project_id, author_id, created_at
		 FROM model_versions
		 WHERE project_id = $1 AND model_id IN (` + strings.Join(marks, ",") + `)
		 ORDER BY model_id, created_at DESC
	) latest ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list latest versions: %w", err)
	}
	defer rows.Close()

	records := make([]repo.VersionRecord, 0)
	for rows.Next() {
		var record repo.VersionRecord
		if err := rows.Scan(&record.ID, &record.ModelID, &record.ProjectID, &record.AuthorID, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list latest versions: %w", err)
	}
	return records, nil
}
