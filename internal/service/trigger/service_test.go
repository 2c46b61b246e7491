package trigger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/strukturo/automate-go/internal/domain"
	"github.com/strukturo/automate-go/internal/engine"
	"github.com/strukturo/automate-go/internal/repo"
)

type fakeAutomationRepo struct {
	revisions   map[string]domain.AutomationWithRevision
	tokens      map[string]domain.AutomationToken
	automations map[string]domain.Automation
	activeDefs  []domain.TriggerDefinition
	activeErr   error
	triggerDefs []domain.TriggerDefinition
}

func (f *fakeAutomationRepo) GetAutomation(ctx context.Context, automationID, projectID string) (domain.Automation, error) {
	automation, ok := f.automations[automationID]
	if !ok {
		return domain.Automation{}, repo.ErrNotFound
	}
	return automation, nil
}

func (f *fakeAutomationRepo) GetRevision(ctx context.Context, revisionID string) (domain.AutomationWithRevision, error) {
	record, ok := f.revisions[revisionID]
	if !ok {
		return domain.AutomationWithRevision{}, repo.ErrNotFound
	}
	return record, nil
}

func (f *fakeAutomationRepo) GetActiveTriggerDefinitions(ctx context.Context, triggeringID string, triggerType domain.TriggerType) ([]domain.TriggerDefinition, error) {
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	return f.activeDefs, nil
}

func (f *fakeAutomationRepo) GetAutomationTriggerDefinitions(ctx context.Context, automationID, projectID string, triggerType domain.TriggerType) ([]domain.TriggerDefinition, error) {
	return f.triggerDefs, nil
}

func (f *fakeAutomationRepo) GetAutomationToken(ctx context.Context, automationID string) (domain.AutomationToken, error) {
	token, ok := f.tokens[automationID]
	if !ok {
		return domain.AutomationToken{}, repo.ErrNotFound
	}
	return token, nil
}

func (f *fakeAutomationRepo) StoreAutomation(ctx context.Context, automation domain.Automation, token domain.AutomationToken) error {
	return nil
}

func (f *fakeAutomationRepo) StoreAutomationRevision(ctx context.Context, revision domain.AutomationRevision) error {
	return nil
}

type fakeRunRepo struct {
	mu      sync.Mutex
	upserts []domain.AutomationRun
}

func (f *fakeRunRepo) UpsertRun(ctx context.Context, run domain.AutomationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := run
	copied.FunctionRuns = append([]domain.FunctionRun(nil), run.FunctionRuns...)
	f.upserts = append(f.upserts, copied)
	return nil
}

func (f *fakeRunRepo) GetRun(ctx context.Context, runID string) (domain.AutomationRun, error) {
	return domain.AutomationRun{}, repo.ErrNotFound
}

func (f *fakeRunRepo) GetFunctionRuns(ctx context.Context, ids []string) ([]domain.FunctionRun, error) {
	return nil, nil
}

func (f *fakeRunRepo) UpdateFunctionRun(ctx context.Context, id string, update repo.FunctionRunUpdate) error {
	return nil
}

func (f *fakeRunRepo) UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, updatedAt time.Time) error {
	return nil
}

func (f *fakeRunRepo) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

type fakeVersionRepo struct {
	versions    map[string]repo.VersionRecord
	latest      []repo.VersionRecord
	lastModels  []string
	lastProject string
	lastLimit   int
}

func (f *fakeVersionRepo) GetVersion(ctx context.Context, versionID string) (repo.VersionRecord, error) {
	record, ok := f.versions[versionID]
	if !ok {
		return repo.VersionRecord{}, repo.ErrNotFound
	}
	return record, nil
}

func (f *fakeVersionRepo) GetLatestVersions(ctx context.Context, modelIDs []string, projectID string, limit int) ([]repo.VersionRecord, error) {
	f.lastModels = modelIDs
	f.lastProject = projectID
	f.lastLimit = limit
	return f.latest, nil
}

type fakeEngine struct {
	mu       sync.Mutex
	requests []engine.RunRequest
	runID    string
	err      error
}

func (f *fakeEngine) TriggerRun(ctx context.Context, request engine.RunRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, request)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.runID, nil
}

type fakeMinter struct {
	token string
	err   error
}

func (f *fakeMinter) MintProjectScopedToken(ctx context.Context, userID, projectID, name string, scopes []string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

type fakeAccess struct {
	err         error
	lastProject string
}

func (f *fakeAccess) AssertProjectRole(ctx context.Context, userID, projectID, role string) error {
	f.lastProject = projectID
	return f.err
}

func testRevision() domain.AutomationWithRevision {
	return domain.AutomationWithRevision{
		Automation: domain.Automation{
			ID:                          "auto-1",
			Name:                        "clash detection",
			ProjectID:                   "proj-1",
			Enabled:                     true,
			ExecutionEngineAutomationID: "engine-auto-1",
		},
		Revision: domain.AutomationRevision{
			ID:           "rev-1",
			AutomationID: "auto-1",
			Active:       true,
			Triggers: []domain.TriggerDefinition{
				{AutomationRevisionID: "rev-1", TriggeringID: "model-1", TriggerType: domain.VersionCreationTriggerType},
			},
			Functions: []domain.RevisionFunction{
				{FunctionID: "fn-1", FunctionReleaseID: "rel-1", FunctionInputs: []byte(`{"tolerance":0.5}`)},
			},
		},
	}
}

type harness struct {
	automations *fakeAutomationRepo
	runs        *fakeRunRepo
	versions    *fakeVersionRepo
	engine      *fakeEngine
	access      *fakeAccess
	service     *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	record := testRevision()
	h := &harness{
		automations: &fakeAutomationRepo{
			revisions:   map[string]domain.AutomationWithRevision{"rev-1": record},
			tokens:      map[string]domain.AutomationToken{"auto-1": {AutomationID: "auto-1", EngineToken: "engine-token"}},
			automations: map[string]domain.Automation{"auto-1": record.Automation},
			triggerDefs: record.Revision.Triggers,
		},
		runs: &fakeRunRepo{},
		versions: &fakeVersionRepo{
			versions: map[string]repo.VersionRecord{
				"ver-1": {ID: "ver-1", ModelID: "model-1", ProjectID: "proj-1", AuthorID: "user-1"},
			},
		},
		engine: &fakeEngine{runID: "engine-run-1"},
		access: &fakeAccess{},
	}
	service, err := NewService(
		h.automations,
		h.runs,
		h.versions,
		h.engine,
		&fakeMinter{token: "app-token"},
		h.access,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.service = service
	return h
}

func TestTriggerAutomationRevisionRun(t *testing.T) {
	h := newHarness(t)
	manifest := domain.VersionCreatedManifest{ModelID: "model-1", VersionID: "ver-1"}

	runID, err := h.service.TriggerAutomationRevisionRun(context.Background(), "rev-1", manifest)
	if err != nil {
		t.Fatalf("TriggerAutomationRevisionRun: %v", err)
	}
	if runID == "" {
		t.Fatal("expected a run id")
	}

	if got := h.runs.upsertCount(); got != 2 {
		t.Fatalf("upsert count = %d; want 2", got)
	}
	first, second := h.runs.upserts[0], h.runs.upserts[1]
	if first.Status != domain.RunStatusPending || first.ExecutionEngineRunID != "" {
		t.Errorf("first upsert = %q/%q; want pending with no engine id", first.Status, first.ExecutionEngineRunID)
	}
	if second.Status != domain.RunStatusPending || second.ExecutionEngineRunID != "engine-run-1" {
		t.Errorf("second upsert = %q/%q; want pending with engine id", second.Status, second.ExecutionEngineRunID)
	}
	if len(first.FunctionRuns) != 1 || first.FunctionRuns[0].Status != domain.RunStatusPending {
		t.Errorf("unexpected function runs: %+v", first.FunctionRuns)
	}

	if len(h.engine.requests) != 1 {
		t.Fatalf("engine calls = %d; want 1", len(h.engine.requests))
	}
	request := h.engine.requests[0]
	if request.ProjectID != "proj-1" || request.AutomationID != "engine-auto-1" {
		t.Errorf("engine request targets %q/%q", request.ProjectID, request.AutomationID)
	}
	if request.Token != "app-token" || request.AutomationToken != "engine-token" {
		t.Errorf("engine request credentials %q/%q", request.Token, request.AutomationToken)
	}
	if len(request.Manifests) != 1 || request.Manifests[0].VersionID != "ver-1" {
		t.Errorf("engine request manifests %+v", request.Manifests)
	}
	if len(request.Functions) != 1 || request.Functions[0].FunctionID != "fn-1" {
		t.Errorf("engine request functions %+v", request.Functions)
	}
}

func TestTriggerRecordsEngineFailure(t *testing.T) {
	h := newHarness(t)
	h.engine.err = errors.New("engine exploded")
	manifest := domain.VersionCreatedManifest{ModelID: "model-1", VersionID: "ver-1"}

	runID, err := h.service.TriggerAutomationRevisionRun(context.Background(), "rev-1", manifest)
	if err != nil {
		t.Fatalf("engine failure must not surface: %v", err)
	}
	if runID == "" {
		t.Fatal("expected a run id even on engine failure")
	}

	if got := h.runs.upsertCount(); got != 2 {
		t.Fatalf("upsert count = %d; want 2", got)
	}
	second := h.runs.upserts[1]
	if second.Status != domain.RunStatusError {
		t.Errorf("run status after failure = %q; want error", second.Status)
	}
	for _, fr := range second.FunctionRuns {
		if fr.Status != domain.RunStatusError {
			t.Errorf("function run status = %q; want error", fr.Status)
		}
		if !strings.Contains(fr.StatusMessage, "engine exploded") {
			t.Errorf("function run message = %q; want engine error text", fr.StatusMessage)
		}
	}
}

func TestEnsureRunConditionsFailures(t *testing.T) {
	manifest := domain.VersionCreatedManifest{ModelID: "model-1", VersionID: "ver-1"}

	tests := []struct {
		name     string
		mutate   func(h *harness)
		revision string
		manifest domain.Manifest
	}{
		{
			name:     "revision missing",
			mutate:   func(h *harness) {},
			revision: "rev-unknown",
			manifest: manifest,
		},
		{
			name: "automation disabled",
			mutate: func(h *harness) {
				record := h.automations.revisions["rev-1"]
				record.Enabled = false
				h.automations.revisions["rev-1"] = record
			},
			revision: "rev-1",
			manifest: manifest,
		},
		{
			name: "revision inactive",
			mutate: func(h *harness) {
				record := h.automations.revisions["rev-1"]
				record.Revision.Active = false
				h.automations.revisions["rev-1"] = record
			},
			revision: "rev-1",
			manifest: manifest,
		},
		{
			name:     "model not watched",
			mutate:   func(h *harness) {},
			revision: "rev-1",
			manifest: domain.VersionCreatedManifest{ModelID: "model-other", VersionID: "ver-1"},
		},
		{
			name:     "version missing",
			mutate:   func(h *harness) { delete(h.versions.versions, "ver-1") },
			revision: "rev-1",
			manifest: manifest,
		},
		{
			name: "version has no author",
			mutate: func(h *harness) {
				record := h.versions.versions["ver-1"]
				record.AuthorID = ""
				h.versions.versions["ver-1"] = record
			},
			revision: "rev-1",
			manifest: manifest,
		},
		{
			name:     "token missing",
			mutate:   func(h *harness) { delete(h.automations.tokens, "auto-1") },
			revision: "rev-1",
			manifest: manifest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.mutate(h)
			_, err := h.service.TriggerAutomationRevisionRun(context.Background(), tt.revision, tt.manifest)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, domain.ErrInvalidTrigger) {
				t.Errorf("error %v is not ErrInvalidTrigger", err)
			}
			if h.runs.upsertCount() != 0 {
				t.Errorf("run persisted despite failed preconditions")
			}
			if len(h.engine.requests) != 0 {
				t.Errorf("engine called despite failed preconditions")
			}
		})
	}
}

func TestComposeIncludesSiblingModels(t *testing.T) {
	h := newHarness(t)
	record := h.automations.revisions["rev-1"]
	record.Revision.Triggers = append(record.Revision.Triggers, domain.TriggerDefinition{
		AutomationRevisionID: "rev-1",
		TriggeringID:         "model-2",
		TriggerType:          domain.VersionCreationTriggerType,
	})
	h.automations.revisions["rev-1"] = record
	h.versions.latest = []repo.VersionRecord{
		{ID: "ver-2", ModelID: "model-2", ProjectID: "proj-1", AuthorID: "user-1"},
	}

	_, err := h.service.TriggerAutomationRevisionRun(context.Background(), "rev-1", domain.VersionCreatedManifest{ModelID: "model-1", VersionID: "ver-1"})
	if err != nil {
		t.Fatalf("TriggerAutomationRevisionRun: %v", err)
	}

	if len(h.versions.lastModels) != 1 || h.versions.lastModels[0] != "model-2" {
		t.Errorf("latest versions requested for %v; want only the sibling model", h.versions.lastModels)
	}
	request := h.engine.requests[0]
	if len(request.Manifests) != 2 {
		t.Fatalf("manifest count = %d; want 2", len(request.Manifests))
	}
	if request.Manifests[0].VersionID != "ver-1" {
		t.Errorf("originating manifest must come first, got %+v", request.Manifests[0])
	}
	if request.Manifests[1].ModelID != "model-2" || request.Manifests[1].VersionID != "ver-2" {
		t.Errorf("sibling manifest = %+v", request.Manifests[1])
	}
}

func TestOnModelVersionCreateFansOut(t *testing.T) {
	h := newHarness(t)
	second := testRevision()
	second.Revision.ID = "rev-2"
	second.Revision.Triggers[0].AutomationRevisionID = "rev-2"
	h.automations.revisions["rev-2"] = second
	h.automations.activeDefs = []domain.TriggerDefinition{
		{AutomationRevisionID: "rev-1", TriggeringID: "model-1", TriggerType: domain.VersionCreationTriggerType},
		{AutomationRevisionID: "rev-2", TriggeringID: "model-1", TriggerType: domain.VersionCreationTriggerType},
	}

	h.service.OnModelVersionCreate(context.Background(), "model-1", "ver-1")

	if got := h.runs.upsertCount(); got != 4 {
		t.Errorf("upsert count = %d; want 2 per revision", got)
	}
	if len(h.engine.requests) != 2 {
		t.Errorf("engine calls = %d; want 2", len(h.engine.requests))
	}
}

func TestOnModelVersionCreateIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	h.automations.activeDefs = []domain.TriggerDefinition{
		{AutomationRevisionID: "rev-missing", TriggeringID: "model-1", TriggerType: domain.VersionCreationTriggerType},
		{AutomationRevisionID: "rev-1", TriggeringID: "model-1", TriggerType: domain.VersionCreationTriggerType},
	}

	h.service.OnModelVersionCreate(context.Background(), "model-1", "ver-1")

	if got := h.runs.upsertCount(); got != 2 {
		t.Errorf("upsert count = %d; want the healthy revision dispatched", got)
	}
	if len(h.engine.requests) != 1 {
		t.Errorf("engine calls = %d; want 1", len(h.engine.requests))
	}
}

func TestManuallyTrigger(t *testing.T) {
	h := newHarness(t)
	h.versions.latest = []repo.VersionRecord{
		{ID: "ver-1", ModelID: "model-1", ProjectID: "proj-1", AuthorID: "user-1"},
	}

	runID, err := h.service.ManuallyTrigger(context.Background(), "auto-1", "user-1", "proj-1")
	if err != nil {
		t.Fatalf("ManuallyTrigger: %v", err)
	}
	if runID == "" {
		t.Fatal("expected a run id")
	}
	if h.versions.lastLimit != 1 {
		t.Errorf("latest versions limit = %d; want 1", h.versions.lastLimit)
	}
}

func TestManuallyTriggerResolvesProjectFromAutomation(t *testing.T) {
	h := newHarness(t)
	h.versions.latest = []repo.VersionRecord{
		{ID: "ver-1", ModelID: "model-1", ProjectID: "proj-1", AuthorID: "user-1"},
	}

	runID, err := h.service.ManuallyTrigger(context.Background(), "auto-1", "user-1", "")
	if err != nil {
		t.Fatalf("ManuallyTrigger without project id: %v", err)
	}
	if runID == "" {
		t.Fatal("expected a run id")
	}
	if h.access.lastProject != "proj-1" {
		t.Errorf("access checked against %q; want the automation's project", h.access.lastProject)
	}
	if h.versions.lastProject != "proj-1" {
		t.Errorf("latest versions queried for %q; want the automation's project", h.versions.lastProject)
	}
}

func TestManuallyTriggerDenied(t *testing.T) {
	h := newHarness(t)
	h.access.err = domain.ErrAuthorizationDenied

	_, err := h.service.ManuallyTrigger(context.Background(), "auto-1", "user-2", "proj-1")
	if !errors.Is(err, domain.ErrAuthorizationDenied) {
		t.Fatalf("error = %v; want ErrAuthorizationDenied", err)
	}
	if h.runs.upsertCount() != 0 {
		t.Error("run persisted despite denied access")
	}
}

func TestManuallyTriggerNoVersions(t *testing.T) {
	h := newHarness(t)
	h.versions.latest = nil

	_, err := h.service.ManuallyTrigger(context.Background(), "auto-1", "user-1", "proj-1")
	if !errors.Is(err, domain.ErrInvalidTrigger) {
		t.Fatalf("error = %v; want ErrInvalidTrigger", err)
	}
}

func TestManuallyTriggerUnknownAutomation(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.ManuallyTrigger(context.Background(), "auto-missing", "user-1", "proj-1")
	if !errors.Is(err, domain.ErrInvalidTrigger) {
		t.Fatalf("error = %v; want ErrInvalidTrigger", err)
	}
}

func TestCreateAutomationRunData(t *testing.T) {
	revision := testRevision().Revision
	now := time.Now()

	run, err := createAutomationRunData([]domain.Manifest{
		domain.VersionCreatedManifest{ModelID: "model-1", VersionID: "ver-1"},
	}, revision, now)
	if err != nil {
		t.Fatalf("createAutomationRunData: %v", err)
	}
	if run.Status != domain.RunStatusPending {
		t.Errorf("run status = %q; want pending", run.Status)
	}
	if len(run.Triggers) != 1 || run.Triggers[0].TriggeringID != "ver-1" {
		t.Errorf("run triggers = %+v; want the version id recorded", run.Triggers)
	}
	if len(run.FunctionRuns) != 1 {
		t.Fatalf("function run count = %d; want 1", len(run.FunctionRuns))
	}
	fr := run.FunctionRuns[0]
	if fr.RunID != run.ID || fr.Status != domain.RunStatusPending || fr.Elapsed != 0 {
		t.Errorf("unexpected function run: %+v", fr)
	}

	if _, err := createAutomationRunData(nil, revision, now); !errors.Is(err, domain.ErrInvalidTrigger) {
		t.Errorf("empty manifests error = %v; want ErrInvalidTrigger", err)
	}
}
