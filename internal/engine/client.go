// Package engine talks to the external automation execution engine. The
// engine schedules and runs the functions; the orchestrator only submits
// composed runs and receives status reports back over its own API.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/strukturo/automate-go/internal/domain"
)

var (
	ErrUnauthorized = errors.New("execution engine request unauthorized")
	ErrNotFound     = errors.New("execution engine resource not found")
)

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("execution engine error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("execution engine error (status=%d): %s", e.StatusCode, body)
}

// RunManifest is the wire shape of one trigger manifest.
type RunManifest struct {
	ModelID     string `json:"modelId"`
	VersionID   string `json:"versionId"`
	TriggerType string `json:"triggerType"`
}

// RunFunctionDefinition is the wire shape of one function to execute.
type RunFunctionDefinition struct {
	FunctionRunID     string          `json:"functionRunId"`
	FunctionID        string          `json:"functionId"`
	FunctionReleaseID string          `json:"functionReleaseId"`
	FunctionInputs    json.RawMessage `json:"functionInputs,omitempty"`
}

// RunRequest submits one automation run for execution.
type RunRequest struct {
	ProjectID       string                  `json:"projectId"`
	AutomationID    string                  `json:"automationId"`
	AutomationRunID string                  `json:"automationRunId"`
	Manifests       []RunManifest           `json:"manifests"`
	Functions       []RunFunctionDefinition `json:"functionDefinitions"`
	Token           string                  `json:"token"`
	AutomationToken string                  `json:"automationToken"`
}

type runResponse struct {
	AutomationRunID string `json:"automationRunId"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("execution engine url is required")
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// TriggerRun submits the run and returns the engine-assigned run id.
func (c *Client) TriggerRun(ctx context.Context, request RunRequest) (string, error) {
	if c == nil || c.http == nil {
		return "", errors.New("engine client not initialized")
	}
	if strings.TrimSpace(request.AutomationID) == "" {
		return "", errors.New("automation id is required")
	}
	if len(request.Manifests) == 0 {
		return "", errors.New("at least one manifest is required")
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshal run request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/automations/"+request.AutomationID+"/runs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+request.AutomationToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("execution engine request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		var out runResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return "", fmt.Errorf("decode engine response: %w", err)
		}
		if strings.TrimSpace(out.AutomationRunID) == "" {
			return "", errors.New("engine response missing automationRunId")
		}
		return out.AutomationRunID, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrUnauthorized
	case http.StatusNotFound:
		return "", ErrNotFound
	default:
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
}

// ManifestsToWire converts domain manifests to wire manifests, rejecting
// unknown trigger kinds.
func ManifestsToWire(manifests []domain.VersionCreatedManifest) []RunManifest {
	out := make([]RunManifest, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, RunManifest{
			ModelID:     m.ModelID,
			VersionID:   m.VersionID,
			TriggerType: string(m.ManifestTriggerType()),
		})
	}
	return out
}
