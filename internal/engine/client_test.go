package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/strukturo/automate-go/internal/domain"
)

func testRequest() RunRequest {
	return RunRequest{
		ProjectID:       "proj-1",
		AutomationID:    "engine-auto-1",
		AutomationRunID: "run-1",
		Manifests:       []RunManifest{{ModelID: "model-1", VersionID: "ver-1", TriggerType: "versionCreation"}},
		Functions:       []RunFunctionDefinition{{FunctionRunID: "fr-1", FunctionID: "fn-1", FunctionReleaseID: "rel-1"}},
		Token:           "app-token",
		AutomationToken: "engine-token",
	}
}

func TestTriggerRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/automations/engine-auto-1/runs") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer engine-token" {
			t.Errorf("authorization = %q", got)
		}
		var req RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.AutomationRunID != "run-1" || len(req.Manifests) != 1 {
			t.Errorf("unexpected body: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"automationRunId": "engine-run-9"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	runID, err := client.TriggerRun(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("TriggerRun: %v", err)
	}
	if runID != "engine-run-9" {
		t.Errorf("run id = %q", runID)
	}
}

func TestTriggerRunErrorStatuses(t *testing.T) {
	tests := []struct {
		status int
		check  func(t *testing.T, err error)
	}{
		{http.StatusUnauthorized, func(t *testing.T, err error) {
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("error = %v; want ErrUnauthorized", err)
			}
		}},
		{http.StatusForbidden, func(t *testing.T, err error) {
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("error = %v; want ErrUnauthorized", err)
			}
		}},
		{http.StatusNotFound, func(t *testing.T, err error) {
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("error = %v; want ErrNotFound", err)
			}
		}},
		{http.StatusInternalServerError, func(t *testing.T, err error) {
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v; want *APIError", err)
			}
			if apiErr.StatusCode != http.StatusInternalServerError {
				t.Errorf("status = %d", apiErr.StatusCode)
			}
		}},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", tt.status)
		}))
		client, err := NewClient(server.URL)
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		_, err = client.TriggerRun(context.Background(), testRequest())
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		tt.check(t, err)
		server.Close()
	}
}

func TestTriggerRunValidation(t *testing.T) {
	client, err := NewClient("http://localhost:0")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	request := testRequest()
	request.AutomationID = ""
	if _, err := client.TriggerRun(context.Background(), request); err == nil {
		t.Error("expected error for missing automation id")
	}

	request = testRequest()
	request.Manifests = nil
	if _, err := client.TriggerRun(context.Background(), request); err == nil {
		t.Error("expected error for missing manifests")
	}

	if _, err := NewClient("  "); err == nil {
		t.Error("expected error for empty url")
	}
}

func TestManifestsToWire(t *testing.T) {
	wire := ManifestsToWire([]domain.VersionCreatedManifest{{ModelID: "m", VersionID: "v"}})
	if len(wire) != 1 || wire[0].TriggerType != string(domain.VersionCreationTriggerType) {
		t.Errorf("wire = %+v", wire)
	}
}
