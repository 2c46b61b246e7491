// Package authz wraps the external authorization service that owns project
// membership and roles.
package authz

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

// Project roles recognized by the authorization service.
const (
	RoleProjectOwner       = "project:owner"
	RoleProjectContributor = "project:contributor"
	RoleProjectReviewer    = "project:reviewer"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("authorization service url is required")
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type roleCheckRequest struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
	Role      string `json:"role"`
}

// AssertProjectRole returns nil when userID holds at least the given role on
// projectID, and domain.ErrAuthorizationDenied when the service says no.
func (c *Client) AssertProjectRole(ctx context.Context, userID, projectID, role string) error {
	if c == nil || c.http == nil {
		return errors.New("authorization client not initialized")
	}
	body, err := json.Marshal(roleCheckRequest{
		UserID:    strings.TrimSpace(userID),
		ProjectID: strings.TrimSpace(projectID),
		Role:      role,
	})
	if err != nil {
		return fmt.Errorf("marshal role check: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/access-checks/project-role", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authorization service request: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusForbidden, http.StatusUnauthorized, http.StatusNotFound:
		return fmt.Errorf("%w: user %q lacks role %q on project %q", domain.ErrAuthorizationDenied, userID, role, projectID)
	default:
		return fmt.Errorf("authorization service error (status=%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
}
