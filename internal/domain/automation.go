package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Automation is a user-configured pipeline bound to a project.
type Automation struct {
	ID                          string
	Name                        string
	ProjectID                   string
	UserID                      string
	Enabled                     bool
	CreatedAt                   time.Time
	ExecutionEngineAutomationID string
}

// RevisionFunction binds one function release to a revision.
type RevisionFunction struct {
	FunctionID        string
	FunctionReleaseID string
	FunctionInputs    json.RawMessage
}

// AutomationRevision is a versioned, activatable configuration of an
// automation. Only one revision per automation is expected to be active at a
// time; the stores treat that as a query-time concern, not a constraint.
type AutomationRevision struct {
	ID           string
	AutomationID string
	Active       bool
	CreatedAt    time.Time
	UserID       string
	Triggers     []TriggerDefinition
	Functions    []RevisionFunction
}

// AutomationWithRevision joins an automation with one of its revisions.
type AutomationWithRevision struct {
	Automation
	Revision AutomationRevision
}

// AutomationToken is the engine credential pair created with the automation.
type AutomationToken struct {
	AutomationID string
	EngineToken  string
	RefreshToken string
}

func (a Automation) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("automation id is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("automation name is required")
	}
	if strings.TrimSpace(a.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(a.ExecutionEngineAutomationID) == "" {
		return errors.New("execution engine automation id is required")
	}
	return nil
}

func (r AutomationRevision) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("revision id is required")
	}
	if strings.TrimSpace(r.AutomationID) == "" {
		return errors.New("automation id is required")
	}
	if len(r.Triggers) == 0 {
		return errors.New("revision requires at least one trigger")
	}
	if len(r.Functions) == 0 {
		return errors.New("revision requires at least one function")
	}
	for _, f := range r.Functions {
		if strings.TrimSpace(f.FunctionID) == "" {
			return errors.New("function id is required")
		}
		if strings.TrimSpace(f.FunctionReleaseID) == "" {
			return errors.New("function release id is required")
		}
	}
	return nil
}

func (t AutomationToken) Validate() error {
	if strings.TrimSpace(t.AutomationID) == "" {
		return errors.New("automation id is required")
	}
	if strings.TrimSpace(t.EngineToken) == "" {
		return errors.New("engine token is required")
	}
	return nil
}
