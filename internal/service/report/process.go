package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/strukturo/automate-go/internal/domain"
	"github.com/strukturo/automate-go/internal/repo"
)

// StatusReportInput is one reported function-run update. Status uses the
// reporter vocabulary (Initializing, Running, Succeeded, Failed). Optional
// fields left nil are not touched on the stored record.
type StatusReportInput struct {
	FunctionRunID string
	Status        string
	StatusMessage *string
	Results       json.RawMessage
	ContextView   *string
	Elapsed       *float64
}

// Result partitions a batch report into applied ids and per-id failure
// reasons. Every reported id lands in exactly one of the two.
type Result struct {
	SuccessfullyUpdatedFunctionRunIDs []string
	ErrorsByFunctionRunID             map[string]string
}

type updateItem struct {
	input    StatusReportInput
	existing domain.FunctionRun
	status   domain.RunStatus
}

// Report applies a batch of status reports. Items are deduplicated by
// function run id (the last occurrence wins), validated individually and
// then persisted grouped by automation run, so a storage failure in one run
// never poisons updates for another. Report itself never fails; every
// problem is attributed to a function run id in the result.
func (s *Service) Report(ctx context.Context, inputs []StatusReportInput) Result {
	result := Result{ErrorsByFunctionRunID: map[string]string{}}

	deduped := map[string]StatusReportInput{}
	order := make([]string, 0, len(inputs))
	for _, input := range inputs {
		if _, seen := deduped[input.FunctionRunID]; !seen {
			order = append(order, input.FunctionRunID)
		}
		deduped[input.FunctionRunID] = input
	}
	if len(order) == 0 {
		return result
	}

	existing, err := s.runs.GetFunctionRuns(ctx, order)
	if err != nil {
		s.log.Error("load function runs for status report failed", "error", err)
		for _, id := range order {
			result.ErrorsByFunctionRunID[id] = "failed to load function run"
		}
		return result
	}
	existingByID := make(map[string]domain.FunctionRun, len(existing))
	for _, fr := range existing {
		existingByID[fr.ID] = fr
	}

	groups := map[string][]updateItem{}
	for _, id := range order {
		input := deduped[id]
		item, reason := s.validateItem(input, existingByID)
		if reason != "" {
			result.ErrorsByFunctionRunID[id] = reason
			continue
		}
		groups[item.existing.RunID] = append(groups[item.existing.RunID], item)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for runID, items := range groups {
		wg.Add(1)
		go func(runID string, items []updateItem) {
			defer wg.Done()
			err := s.applyGroup(ctx, runID, items)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Error("apply status report group failed", "run_id", runID, "error", err)
				for _, item := range items {
					result.ErrorsByFunctionRunID[item.existing.ID] = "failed to update status"
				}
				return
			}
			for _, item := range items {
				result.SuccessfullyUpdatedFunctionRunIDs = append(result.SuccessfullyUpdatedFunctionRunIDs, item.existing.ID)
			}
		}(runID, items)
	}
	wg.Wait()

	return result
}

func (s *Service) validateItem(input StatusReportInput, existingByID map[string]domain.FunctionRun) (updateItem, string) {
	existing, ok := existingByID[input.FunctionRunID]
	if !ok {
		return updateItem{}, "automation function run not found"
	}
	status, ok := domain.MapReportedStatus(input.Status)
	if !ok {
		return updateItem{}, fmt.Sprintf("unsupported status %q", input.Status)
	}
	if err := domain.ValidateStatusChange(existing.Status, status); err != nil {
		return updateItem{}, err.Error()
	}
	if len(input.Results) > 0 && !bytes.Equal(bytes.TrimSpace(input.Results), []byte("null")) {
		if _, err := domain.ParseResults(input.Results); err != nil {
			return updateItem{}, err.Error()
		}
	}
	if input.ContextView != nil {
		if err := domain.ValidateContextView(*input.ContextView); err != nil {
			return updateItem{}, err.Error()
		}
	}
	return updateItem{input: input, existing: existing, status: status}, ""
}

// applyGroup persists all accepted updates for one automation run and then
// derives the run's aggregate status from the statuses reported in this
// batch alone. Function runs absent from the batch do not hold the run back.
func (s *Service) applyGroup(ctx context.Context, runID string, items []updateItem) error {
	statuses := make([]domain.RunStatus, 0, len(items))
	for _, item := range items {
		update := repo.FunctionRunUpdate{
			Status:        item.status,
			ContextView:   item.input.ContextView,
			Results:       item.input.Results,
			StatusMessage: item.input.StatusMessage,
			Elapsed:       item.input.Elapsed,
		}
		if err := s.runs.UpdateFunctionRun(ctx, item.existing.ID, update); err != nil {
			return fmt.Errorf("update function run %s: %w", item.existing.ID, err)
		}
		statuses = append(statuses, item.status)
	}

	next := domain.ResolveRunStatus(statuses)
	if err := s.runs.UpdateRunStatus(ctx, runID, next, s.now().UTC()); err != nil {
		return fmt.Errorf("update run status %s: %w", runID, err)
	}

	s.appendAudit(ctx, runID, next)
	s.archiveResults(ctx, items)
	return nil
}

func (s *Service) archiveResults(ctx context.Context, items []updateItem) {
	if s.archive == nil {
		return
	}
	for _, item := range items {
		if len(item.input.Results) == 0 {
			continue
		}
		if _, err := s.archive.ArchiveResults(ctx, item.existing.ID, item.input.Results); err != nil {
			s.log.Warn("archive results payload failed", "function_run_id", item.existing.ID, "error", err)
		}
	}
}

func (s *Service) appendAudit(ctx context.Context, runID string, to domain.RunStatus) {
	if s.audit == nil {
		return
	}
	_, err := s.audit.Append(ctx, auditEvent(s.now(), runID, to))
	if err != nil {
		s.log.Warn("audit append failed", "run_id", runID, "error", err)
	}
}
