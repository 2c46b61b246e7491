// Package report applies function-run status reports coming back from the
// execution engine. It validates each report item, persists the accepted
// updates and derives the aggregate automation run status from the batch.
package report

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/strukturo/automate-go/internal/platform/auditlog"
	"github.com/strukturo/automate-go/internal/repo"
)

// ResultsArchiver keeps accepted results payloads. Optional, best-effort.
type ResultsArchiver interface {
	ArchiveResults(ctx context.Context, functionRunID string, payload []byte) (string, error)
}

// AuditAppender records run status changes. Optional.
type AuditAppender interface {
	Append(ctx context.Context, event auditlog.Event) (int64, error)
}

type Service struct {
	runs    repo.RunRepository
	archive ResultsArchiver
	audit   AuditAppender
	log     *slog.Logger
	now     func() time.Time
}

func NewService(runs repo.RunRepository, archive ResultsArchiver, audit AuditAppender, log *slog.Logger) (*Service, error) {
	if runs == nil {
		return nil, errors.New("run repository is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		runs:    runs,
		archive: archive,
		audit:   audit,
		log:     log,
		now:     time.Now,
	}, nil
}
