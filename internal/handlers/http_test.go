package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/internal/network"
	"github.com/contentflow/uploadflow/internal/state"
	"github.com/contentflow/uploadflow/pkg/logger"
)

type stubRunner struct {
	mu       sync.Mutex
	running  bool
	runs     int
	stops    int
	runErr   error
	finished chan struct{}
}

func (r *stubRunner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.running = true
	r.runs++
	r.mu.Unlock()
	if r.finished != nil {
		close(r.finished)
	}
	return r.runErr
}

func (r *stubRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *stubRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	r.running = false
}

type stableChecker struct{}

func (stableChecker) Check(ctx context.Context) models.NetworkStatus {
	return models.NetworkStable
}

func newTestRouter(t *testing.T, runner Runner, secret string) (*gin.Engine, *state.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := state.NewStore(t.TempDir(), logger.New("debug", "text"))
	require.NoError(t, err)

	monitor := network.NewMonitor(stableChecker{}, time.Minute, logger.New("debug", "text"))
	handler := NewHandler(runner, store, monitor, NewAuthMiddleware(secret), logger.New("debug", "text"))

	r := gin.New()
	handler.RegisterRoutes(r)
	return r, store
}

func doRequest(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusReflectsStoreAndRunner(t *testing.T) {
	runner := &stubRunner{running: true}
	r, store := newTestRouter(t, runner, "")

	require.NoError(t, store.UpdateCurrentUpload(models.CurrentUpload{
		VideoFile: "/data/alice/a.mp4",
		Status:    models.UploadInProgress,
		Progress:  40,
	}))

	w := doRequest(r, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Running       bool                 `json:"running"`
		Network       string               `json:"network"`
		CurrentUpload models.CurrentUpload `json:"current_upload"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Running)
	assert.Equal(t, "stable", body.Network)
	assert.Equal(t, 40, body.CurrentUpload.Progress)
}

func TestStartRunRejectedWhileActive(t *testing.T) {
	runner := &stubRunner{running: true}
	r, _ := newTestRouter(t, runner, "")

	w := doRequest(r, http.MethodPost, "/api/v1/run/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, runner.runs)
}

func TestStartRunLaunchesInBackground(t *testing.T) {
	runner := &stubRunner{finished: make(chan struct{})}
	r, _ := newTestRouter(t, runner, "")

	w := doRequest(r, http.MethodPost, "/api/v1/run/start", "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case <-runner.finished:
	case <-time.After(time.Second):
		t.Fatal("run was never started")
	}
}

func TestStopRun(t *testing.T) {
	runner := &stubRunner{running: true}
	r, _ := newTestRouter(t, runner, "")

	w := doRequest(r, http.MethodPost, "/api/v1/run/stop", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, runner.stops)

	w = doRequest(r, http.MethodPost, "/api/v1/run/stop", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	r, store := newTestRouter(t, &stubRunner{}, "")

	require.NoError(t, store.MarkVideoUploaded(models.UploadRecord{
		FilePath: "/data/alice/a.mp4",
		Bookmark: "alice",
	}))

	w := doRequest(r, http.MethodGet, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Total   int                   `json:"total"`
		History []models.UploadRecord `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, "alice", body.History[0].Bookmark)
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	r, _ := newTestRouter(t, &stubRunner{}, "test-secret")

	w := doRequest(r, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/status", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := NewAuthMiddleware("test-secret").GenerateToken("operator")
	require.NoError(t, err)
	w = doRequest(r, http.MethodGet, "/api/v1/status", token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthIsUnauthenticated(t *testing.T) {
	r, _ := newTestRouter(t, &stubRunner{}, "test-secret")

	w := doRequest(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
