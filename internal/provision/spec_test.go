package provision

import (
	"strings"
	"testing"
)

const validSpecYAML = `
schema: automate.provision.v1
automations:
  - id: auto-1
    name: clash detection
    project_id: proj-1
    enabled: true
    execution_engine_automation_id: engine-auto-1
    token:
      engine_token: secret-token
    revisions:
      - id: rev-1
        active: true
        triggers:
          - model_id: model-1
        functions:
          - function_id: fn-1
            function_release_id: rel-1
            inputs:
              tolerance: 0.5
`

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec([]byte(validSpecYAML))
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if len(spec.Automations) != 1 {
		t.Fatalf("automation count = %d", len(spec.Automations))
	}
	automation := spec.Automations[0]
	if automation.ID != "auto-1" || automation.ExecutionEngineAutomationID != "engine-auto-1" {
		t.Errorf("unexpected automation: %+v", automation)
	}
	if len(automation.Revisions) != 1 || len(automation.Revisions[0].Triggers) != 1 {
		t.Errorf("unexpected revisions: %+v", automation.Revisions)
	}
}

func TestParseSpecRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s string) string
		wantSub string
	}{
		{"wrong schema", func(s string) string { return strings.Replace(s, "automate.provision.v1", "v2", 1) }, "spec.schema"},
		{"missing name", func(s string) string { return strings.Replace(s, "name: clash detection", "name: \"\"", 1) }, "name is required"},
		{"missing token", func(s string) string { return strings.Replace(s, "engine_token: secret-token", "engine_token: \"\"", 1) }, "engine_token"},
		{"missing model", func(s string) string { return strings.Replace(s, "model_id: model-1", "model_id: \"\"", 1) }, "model_id"},
		{"unsupported trigger type", func(s string) string {
			return strings.Replace(s, "- model_id: model-1", "- model_id: model-1\n            type: schedule", 1)
		}, "type unsupported"},
		{"missing function release", func(s string) string { return strings.Replace(s, "function_release_id: rel-1", "function_release_id: \"\"", 1) }, "function_release_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSpec([]byte(tt.mutate(validSpecYAML)))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestToDomainRevision(t *testing.T) {
	spec, err := ParseSpec([]byte(validSpecYAML))
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	revision, err := toDomainRevision("auto-1", spec.Automations[0].Revisions[0])
	if err != nil {
		t.Fatalf("toDomainRevision: %v", err)
	}
	if revision.AutomationID != "auto-1" || !revision.Active {
		t.Errorf("unexpected revision: %+v", revision)
	}
	if len(revision.Triggers) != 1 || revision.Triggers[0].TriggeringID != "model-1" {
		t.Errorf("unexpected triggers: %+v", revision.Triggers)
	}
	if len(revision.Functions) != 1 || !strings.Contains(string(revision.Functions[0].FunctionInputs), "tolerance") {
		t.Errorf("unexpected functions: %+v", revision.Functions)
	}
}
