// Package provision loads declarative automation manifests and registers
// them through the repositories at startup.
package provision

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const SpecSchemaV1 = "automate.provision.v1"

type Spec struct {
	Schema      string       `yaml:"schema"`
	Automations []Automation `yaml:"automations"`
}

type Automation struct {
	ID                          string     `yaml:"id"`
	Name                        string     `yaml:"name"`
	ProjectID                   string     `yaml:"project_id"`
	UserID                      string     `yaml:"user_id,omitempty"`
	Enabled                     bool       `yaml:"enabled"`
	ExecutionEngineAutomationID string     `yaml:"execution_engine_automation_id"`
	Token                       Token      `yaml:"token"`
	Revisions                   []Revision `yaml:"revisions"`
}

type Token struct {
	EngineToken  string `yaml:"engine_token"`
	RefreshToken string `yaml:"refresh_token,omitempty"`
}

type Revision struct {
	ID        string     `yaml:"id"`
	Active    bool       `yaml:"active"`
	UserID    string     `yaml:"user_id,omitempty"`
	Triggers  []Trigger  `yaml:"triggers"`
	Functions []Function `yaml:"functions"`
}

type Trigger struct {
	Type    string `yaml:"type,omitempty"`
	ModelID string `yaml:"model_id"`
}

type Function struct {
	FunctionID        string         `yaml:"function_id"`
	FunctionReleaseID string         `yaml:"function_release_id"`
	Inputs            map[string]any `yaml:"inputs,omitempty"`
}

func ParseSpec(input []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(input, &spec); err != nil {
		return Spec{}, fmt.Errorf("decode provisioning spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Schema) != SpecSchemaV1 {
		return fmt.Errorf("spec.schema must be %q", SpecSchemaV1)
	}
	if len(s.Automations) == 0 {
		return errors.New("spec.automations must be non-empty")
	}

	seen := make(map[string]struct{}, len(s.Automations))
	for i, automation := range s.Automations {
		prefix := fmt.Sprintf("spec.automations[%d]", i)
		id := strings.TrimSpace(automation.ID)
		if id == "" {
			return fmt.Errorf("%s.id is required", prefix)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%s.id must be unique (duplicate %q)", prefix, id)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(automation.Name) == "" {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if strings.TrimSpace(automation.ProjectID) == "" {
			return fmt.Errorf("%s.project_id is required", prefix)
		}
		if strings.TrimSpace(automation.ExecutionEngineAutomationID) == "" {
			return fmt.Errorf("%s.execution_engine_automation_id is required", prefix)
		}
		if strings.TrimSpace(automation.Token.EngineToken) == "" {
			return fmt.Errorf("%s.token.engine_token is required", prefix)
		}
		if len(automation.Revisions) == 0 {
			return fmt.Errorf("%s.revisions must be non-empty", prefix)
		}
		for j, revision := range automation.Revisions {
			if err := revision.validate(fmt.Sprintf("%s.revisions[%d]", prefix, j)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r Revision) validate(prefix string) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%s.id is required", prefix)
	}
	if len(r.Triggers) == 0 {
		return fmt.Errorf("%s.triggers must be non-empty", prefix)
	}
	for i, trigger := range r.Triggers {
		if strings.TrimSpace(trigger.ModelID) == "" {
			return fmt.Errorf("%s.triggers[%d].model_id is required", prefix, i)
		}
		kind := strings.TrimSpace(trigger.Type)
		if kind != "" && kind != "versionCreation" {
			return fmt.Errorf("%s.triggers[%d].type unsupported: %q", prefix, i, trigger.Type)
		}
	}
	if len(r.Functions) == 0 {
		return fmt.Errorf("%s.functions must be non-empty", prefix)
	}
	for i, function := range r.Functions {
		if strings.TrimSpace(function.FunctionID) == "" {
			return fmt.Errorf("%s.functions[%d].function_id is required", prefix, i)
		}
		if strings.TrimSpace(function.FunctionReleaseID) == "" {
			return fmt.Errorf("%s.functions[%d].function_release_id is required", prefix, i)
		}
	}
	return nil
}
