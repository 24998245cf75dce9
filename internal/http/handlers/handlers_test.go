package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/adapter/memory"
	"orchestrator/internal/classify"
	"orchestrator/internal/contextmgr"
	"orchestrator/internal/domain"
	"orchestrator/internal/gateway"
	"orchestrator/internal/http/handlers"
	"orchestrator/internal/http/httpapi"
	"orchestrator/internal/orchestrator"
	"orchestrator/internal/pricing"
	"orchestrator/internal/quota"
	"orchestrator/internal/task"
)

type cannedGateway struct {
	reply string
}

func (g *cannedGateway) Interpret(context.Context, classify.InterpretRequest) (string, error) {
	return g.reply, nil
}

type testServer struct {
	handler http.Handler
	tasks   *task.Manager
}

func newTestServer(t *testing.T, interpretReply string) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	taskStore := memory.NewTaskStore()
	usage := memory.NewUsageStore()
	contexts := contextmgr.New(memory.NewContextStore(), logger)
	hub := task.NewHub()
	enforcer := quota.NewEnforcer(nil, usage, logger)

	var orch *orchestrator.Orchestrator
	tasks := task.NewManager(taskStore, hub, func(ctx context.Context, tk domain.GenerationTask) (domain.TaskResult, error) {
		return orch.Executor()(ctx, tk)
	}, logger)
	orch = orchestrator.New(orchestrator.Options{
		Classifier: classify.New(&cannedGateway{reply: interpretReply}, logger),
		Contexts:   contexts,
		Selector:   pricing.NewSelector(nil),
		Quota:      enforcer,
		Tasks:      tasks,
		Usage:      usage,
		Backends:   gateway.SyntheticRegistry(),
		Logger:     logger,
	})

	app := handlers.NewApp(orch, tasks, enforcer, contexts, hub, logger)
	router := httpapi.NewRouter(app, httpapi.Options{DefaultLocale: "en"})
	return &testServer{handler: router, tasks: tasks}
}

func (s *testServer) do(method, path, body, owner, tier string, header map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	if tier != "" {
		req.Header.Set("X-User-Tier", tier)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func imageReply() string {
	return `{"intent":"image","complexity":"moderate","confidence":0.9,"enhanced_prompt":"a red fox in watercolor"}`
}

func TestHealthzIsPublic(t *testing.T) {
	s := newTestServer(t, imageReply())
	rec := s.do(http.MethodGet, "/v1/healthz", "", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdentityRequired(t *testing.T) {
	s := newTestServer(t, imageReply())
	rec := s.do(http.MethodPost, "/v1/requests", `{"message":"hi"}`, "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitAccepted(t *testing.T) {
	s := newTestServer(t, imageReply())
	body := `{"project_id":"proj-1","message":"please paint a red fox in watercolor style"}`
	rec := s.do(http.MethodPost, "/v1/requests", body, "owner-1", "pro", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		TaskID   string `json:"task_id"`
		Status   string `json:"status"`
		TaskType string `json:"task_type"`
		Model    string `json:"model"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "image", resp.TaskType)
	assert.Equal(t, "imagen-4", resp.Model)
	s.tasks.Wait()
}

func TestSubmitDeniedUpgradeRequired(t *testing.T) {
	s := newTestServer(t, `{"intent":"video","complexity":"complex","confidence":0.9,"enhanced_prompt":"a sunrise video"}`)
	body := `{"message":"please generate a cinematic video of a sunrise"}`
	rec := s.do(http.MethodPost, "/v1/requests", body, "owner-free", "free", nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var resp struct {
		Message         string `json:"message"`
		UpgradeRequired bool   `json:"upgrade_required"`
		Feature         string `json:"feature"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.UpgradeRequired)
	assert.Equal(t, "video", resp.Feature)
	assert.Equal(t, "this feature requires a higher tier", resp.Message)
}

func TestSubmitDeniedMessageLocalized(t *testing.T) {
	s := newTestServer(t, `{"intent":"video","complexity":"complex","confidence":0.9,"enhanced_prompt":"a sunrise video"}`)
	body := `{"message":"please generate a cinematic video of a sunrise"}`
	rec := s.do(http.MethodPost, "/v1/requests", body, "owner-free", "free", map[string]string{"X-Locale": "id"})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var resp struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "paket berlangganan")
}

func TestGetTaskScopedToOwner(t *testing.T) {
	s := newTestServer(t, imageReply())
	body := `{"project_id":"proj-1","message":"please paint a red fox in watercolor style"}`
	rec := s.do(http.MethodPost, "/v1/requests", body, "owner-1", "pro", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	s.tasks.Wait()

	owned := s.do(http.MethodGet, "/v1/tasks/"+resp.TaskID, "", "owner-1", "pro", nil)
	assert.Equal(t, http.StatusOK, owned.Code)

	foreign := s.do(http.MethodGet, "/v1/tasks/"+resp.TaskID, "", "owner-2", "pro", nil)
	assert.Equal(t, http.StatusNotFound, foreign.Code)
}

func TestListTasksReturnsCounts(t *testing.T) {
	s := newTestServer(t, imageReply())
	body := `{"project_id":"proj-1","message":"please paint a red fox in watercolor style"}`
	require.Equal(t, http.StatusAccepted, s.do(http.MethodPost, "/v1/requests", body, "owner-1", "pro", nil).Code)
	s.tasks.Wait()

	rec := s.do(http.MethodGet, "/v1/tasks", "", "owner-1", "pro", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tasks  []map[string]any `json:"tasks"`
		Counts map[string]int   `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Tasks, 1)
	assert.Equal(t, 1, resp.Counts["completed"])
}

func TestQuotaPreview(t *testing.T) {
	s := newTestServer(t, imageReply())
	rec := s.do(http.MethodGet, "/v1/quota/image", "", "owner-1", "starter", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Allowed       bool    `json:"allowed"`
		Remaining     int     `json:"remaining"`
		BudgetLeftUSD float64 `json:"budget_left_usd"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Allowed)
	assert.Equal(t, 15, resp.Remaining)
	assert.Equal(t, 4.99, resp.BudgetLeftUSD)

	bad := s.do(http.MethodGet, "/v1/quota/telepathy", "", "owner-1", "starter", nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestGetContextDefaultsToEmpty(t *testing.T) {
	s := newTestServer(t, imageReply())
	rec := s.do(http.MethodGet, "/v1/context/proj-9", "", "owner-1", "pro", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ProjectID string `json:"project_id"`
		Version   int    `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "proj-9", resp.ProjectID)
	assert.Equal(t, 0, resp.Version)
}
