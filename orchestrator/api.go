package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/strukturo/automate-go/internal/domain"
	"github.com/strukturo/automate-go/internal/platform/auth"
	"github.com/strukturo/automate-go/internal/repo"
	"github.com/strukturo/automate-go/internal/service/report"
	"github.com/strukturo/automate-go/internal/service/trigger"
)

type orchestratorAPI struct {
	logger         *slog.Logger
	triggers       *trigger.Service
	reports        *report.Service
	runs           repo.RunRepository
	headersAuth    *auth.GatewayHeadersAuthenticator
	appTokenSecret string
}

func newOrchestratorAPI(
	logger *slog.Logger,
	triggers *trigger.Service,
	reports *report.Service,
	runs repo.RunRepository,
	headersAuth *auth.GatewayHeadersAuthenticator,
	appTokenSecret string,
) *orchestratorAPI {
	return &orchestratorAPI{
		logger:         logger,
		triggers:       triggers,
		reports:        reports,
		runs:           runs,
		headersAuth:    headersAuth,
		appTokenSecret: appTokenSecret,
	}
}

func (api *orchestratorAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /events/version-created", api.handleVersionCreated)
	mux.HandleFunc("POST /automations/{automation_id}/trigger", api.handleManualTrigger)
	mux.HandleFunc("POST /function-runs/report", api.handleStatusReport)
	mux.HandleFunc("GET /automation-runs/{run_id}", api.handleGetRun)
}

type versionCreatedRequest struct {
	ModelID   string `json:"modelId"`
	VersionID string `json:"versionId"`
}

func (api *orchestratorAPI) handleVersionCreated(w http.ResponseWriter, r *http.Request) {
	if _, err := api.headersAuth.Authenticate(r); err != nil {
		api.writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req versionCreatedRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	modelID := strings.TrimSpace(req.ModelID)
	versionID := strings.TrimSpace(req.VersionID)
	if modelID == "" {
		api.writeError(w, r, http.StatusBadRequest, "model_id_required")
		return
	}
	if versionID == "" {
		api.writeError(w, r, http.StatusBadRequest, "version_id_required")
		return
	}

	api.triggers.OnModelVersionCreate(r.Context(), modelID, versionID)
	api.writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

type manualTriggerRequest struct {
	ProjectID string `json:"projectId"`
}

func (api *orchestratorAPI) handleManualTrigger(w http.ResponseWriter, r *http.Request) {
	identity, err := api.headersAuth.Authenticate(r)
	if err != nil || strings.TrimSpace(identity.Subject) == "" {
		api.writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	automationID := strings.TrimSpace(r.PathValue("automation_id"))
	if automationID == "" {
		api.writeError(w, r, http.StatusBadRequest, "automation_id_required")
		return
	}

	// The body is optional; projectId only narrows the automation lookup.
	var req manualTriggerRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	runID, err := api.triggers.ManuallyTrigger(r.Context(), automationID, identity.Subject, strings.TrimSpace(req.ProjectID))
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"automationRunId": runID})
}

type statusReportItem struct {
	FunctionRunID string          `json:"functionRunId"`
	Status        string          `json:"status"`
	StatusMessage *string         `json:"statusMessage,omitempty"`
	Results       json.RawMessage `json:"results,omitempty"`
	ContextView   *string         `json:"contextView,omitempty"`
	Elapsed       *float64        `json:"elapsed,omitempty"`
}

type statusReportRequest struct {
	Items []statusReportItem `json:"items"`
}

func (api *orchestratorAPI) handleStatusReport(w http.ResponseWriter, r *http.Request) {
	if _, err := api.authenticateReporter(r); err != nil {
		api.writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req statusReportRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	inputs := make([]report.StatusReportInput, 0, len(req.Items))
	for _, item := range req.Items {
		inputs = append(inputs, report.StatusReportInput{
			FunctionRunID: strings.TrimSpace(item.FunctionRunID),
			Status:        item.Status,
			StatusMessage: item.StatusMessage,
			Results:       item.Results,
			ContextView:   item.ContextView,
			Elapsed:       item.Elapsed,
		})
	}
	result := api.reports.Report(r.Context(), inputs)

	successIDs := result.SuccessfullyUpdatedFunctionRunIDs
	if successIDs == nil {
		successIDs = []string{}
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"successfullyUpdatedFunctionRunIds": successIDs,
		"errorsByFunctionRunId":             result.ErrorsByFunctionRunID,
	})
}

// authenticateReporter verifies the project-scoped credential minted at
// dispatch time and requires the report scope on it.
func (api *orchestratorAPI) authenticateReporter(r *http.Request) (auth.AppTokenClaims, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return auth.AppTokenClaims{}, auth.ErrAppTokenInvalid
	}
	claims, err := auth.VerifyAppToken(api.appTokenSecret, strings.TrimSpace(token), time.Now())
	if err != nil {
		return auth.AppTokenClaims{}, err
	}
	for _, scope := range claims.Scopes {
		if scope == auth.ScopeReportResults {
			return claims, nil
		}
	}
	return auth.AppTokenClaims{}, auth.ErrAppTokenInvalid
}

type runTriggerResponse struct {
	TriggeringID string `json:"triggeringId"`
	TriggerType  string `json:"triggerType"`
}

type functionRunResponse struct {
	ID                string          `json:"id"`
	FunctionID        string          `json:"functionId"`
	FunctionReleaseID string          `json:"functionReleaseId"`
	Status            string          `json:"status"`
	Elapsed           float64         `json:"elapsed"`
	Results           json.RawMessage `json:"results,omitempty"`
	ContextView       string          `json:"contextView,omitempty"`
	StatusMessage     string          `json:"statusMessage,omitempty"`
	ResultVersions    []string        `json:"resultVersions,omitempty"`
}

type runResponse struct {
	ID                   string                `json:"id"`
	AutomationRevisionID string                `json:"automationRevisionId"`
	Status               string                `json:"status"`
	ExecutionEngineRunID string                `json:"executionEngineRunId,omitempty"`
	CreatedAt            time.Time             `json:"createdAt"`
	UpdatedAt            time.Time             `json:"updatedAt"`
	Triggers             []runTriggerResponse  `json:"triggers"`
	FunctionRuns         []functionRunResponse `json:"functionRuns"`
}

func (api *orchestratorAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if _, err := api.headersAuth.Authenticate(r); err != nil {
		api.writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}

	run, err := api.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("load automation run failed", "run_id", runID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, toRunResponse(run))
}

func toRunResponse(run domain.AutomationRun) runResponse {
	resp := runResponse{
		ID:                   run.ID,
		AutomationRevisionID: run.AutomationRevisionID,
		Status:               string(run.Status),
		ExecutionEngineRunID: run.ExecutionEngineRunID,
		CreatedAt:            run.CreatedAt,
		UpdatedAt:            run.UpdatedAt,
		Triggers:             []runTriggerResponse{},
		FunctionRuns:         []functionRunResponse{},
	}
	for _, t := range run.Triggers {
		resp.Triggers = append(resp.Triggers, runTriggerResponse{
			TriggeringID: t.TriggeringID,
			TriggerType:  string(t.TriggerType),
		})
	}
	for _, fr := range run.FunctionRuns {
		resp.FunctionRuns = append(resp.FunctionRuns, functionRunResponse{
			ID:                fr.ID,
			FunctionID:        fr.FunctionID,
			FunctionReleaseID: fr.FunctionReleaseID,
			Status:            string(fr.Status),
			Elapsed:           fr.Elapsed,
			Results:           fr.Results,
			ContextView:       fr.ContextView,
			StatusMessage:     fr.StatusMessage,
			ResultVersions:    fr.ResultVersions,
		})
	}
	return resp
}

func (api *orchestratorAPI) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrAuthorizationDenied):
		api.writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrInvalidTrigger):
		api.writeError(w, r, http.StatusBadRequest, "invalid_trigger")
	case errors.Is(err, repo.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, "not_found")
	default:
		api.logger.Error("request failed", "path", r.URL.Path, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *orchestratorAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *orchestratorAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}
