package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// RunTrigger records which concrete resource version a run was started for.
type RunTrigger struct {
	TriggeringID string
	TriggerType  TriggerType
}

// AutomationRun is one execution instance of a revision. It is created once
// per triggering occurrence and afterwards only mutated through the
// dispatcher (engine id or synthesized failure) and the status report
// processor.
type AutomationRun struct {
	ID                   string
	AutomationRevisionID string
	Status               RunStatus
	ExecutionEngineRunID string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Triggers             []RunTrigger
	FunctionRuns         []FunctionRun
}

// FunctionRun is one function's execution record within a run.
type FunctionRun struct {
	ID                string
	RunID             string
	FunctionID        string
	FunctionReleaseID string
	FunctionInputs    json.RawMessage
	Status            RunStatus
	Elapsed           float64
	Results           json.RawMessage
	ContextView       string
	StatusMessage     string
	ResultVersions    []string
}

func (r AutomationRun) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.AutomationRevisionID) == "" {
		return errors.New("automation revision id is required")
	}
	if NormalizeRunStatus(string(r.Status)) == "" {
		return errors.New("run status is required")
	}
	if len(r.Triggers) == 0 {
		return errors.New("run requires at least one trigger")
	}
	if len(r.FunctionRuns) == 0 {
		return errors.New("run requires at least one function run")
	}
	for _, fr := range r.FunctionRuns {
		if err := fr.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (fr FunctionRun) Validate() error {
	if strings.TrimSpace(fr.ID) == "" {
		return errors.New("function run id is required")
	}
	if strings.TrimSpace(fr.RunID) == "" {
		return errors.New("function run parent run id is required")
	}
	if strings.TrimSpace(fr.FunctionID) == "" {
		return errors.New("function id is required")
	}
	if strings.TrimSpace(fr.FunctionReleaseID) == "" {
		return errors.New("function release id is required")
	}
	if NormalizeRunStatus(string(fr.Status)) == "" {
		return errors.New("function run status is required")
	}
	return nil
}
