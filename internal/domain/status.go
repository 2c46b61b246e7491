package domain

import (
	"fmt"
	"strings"
)

// RunStatus is the shared status enumeration for automation runs and
// function runs.
type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailure RunStatus = "failure"
	RunStatusError   RunStatus = "error"
)

// NormalizeRunStatus maps free-form status values to the canonical enum.
func NormalizeRunStatus(value string) RunStatus {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(RunStatusPending):
		return RunStatusPending
	case string(RunStatusRunning):
		return RunStatusRunning
	case string(RunStatusSuccess):
		return RunStatusSuccess
	case string(RunStatusFailure):
		return RunStatusFailure
	case string(RunStatusError):
		return RunStatusError
	default:
		return ""
	}
}

// MapReportedStatus translates the status vocabulary used by external
// reporters into the internal enum.
func MapReportedStatus(value string) (RunStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "initializing":
		return RunStatusPending, true
	case "running":
		return RunStatusRunning, true
	case "succeeded":
		return RunStatusSuccess, true
	case "failed":
		return RunStatusFailure, true
	default:
		return "", false
	}
}

// runStatusRank defines the forward-only progression order. The three
// terminal statuses share a rank, so a run cannot move between them.
func runStatusRank(status RunStatus) int {
	switch status {
	case RunStatusPending:
		return 0
	case RunStatusRunning:
		return 1
	case RunStatusError, RunStatusFailure, RunStatusSuccess:
		return 2
	default:
		return -1
	}
}

// ValidateStatusChange accepts only strictly forward transitions. Reporting
// the current status again is a no-op and allowed, so retries are safe.
func ValidateStatusChange(previous, next RunStatus) error {
	if previous == next {
		return nil
	}
	prevRank := runStatusRank(previous)
	nextRank := runStatusRank(next)
	if prevRank < 0 || nextRank < 0 || nextRank <= prevRank {
		return fmt.Errorf("%w: attempting to move from %q to %q", ErrInvalidStatusTransition, previous, next)
	}
	return nil
}

// ResolveRunStatus aggregates function-run statuses into the automation run
// status. Unfinished work dominates; among terminal statuses error outranks
// failure, and success only applies when nothing else is outstanding.
func ResolveRunStatus(functionRunStatuses []RunStatus) RunStatus {
	var anyRunning, anyError, anyFailure bool
	for _, status := range functionRunStatuses {
		switch status {
		case RunStatusPending:
			return RunStatusPending
		case RunStatusRunning:
			anyRunning = true
		case RunStatusError:
			anyError = true
		case RunStatusFailure:
			anyFailure = true
		}
	}
	if anyRunning {
		return RunStatusRunning
	}
	if anyError {
		return RunStatusError
	}
	if anyFailure {
		return RunStatusFailure
	}
	return RunStatusSuccess
}
