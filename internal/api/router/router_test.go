package router

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcss-tournament/team-builder/internal/api/handler"
	"github.com/rcss-tournament/team-builder/internal/state"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *state.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := state.NewManager(logger)

	r := SetupRouter(&handler.Dependencies{
		Logger: logger,
		State:  manager,
	})
	return r, manager
}

func TestHealthCheck(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health-check", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
}

func TestStatus(t *testing.T) {
	t.Run("empty registry", func(t *testing.T) {
		r, _ := setupTestRouter(t)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Empty(t, body["jobs"])
	})

	t.Run("lists registered jobs", func(t *testing.T) {
		r, manager := setupTestRouter(t)
		require.NoError(t, manager.Add("b-1", "alpha", "alpha-image", nil, nil))
		require.NoError(t, manager.Add("b-2", "beta", "beta-image", nil, nil))
		require.NoError(t, manager.Update("b-2", state.StatusProgress))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Jobs []struct {
				BuildID string `json:"build_id"`
				Status  string `json:"status"`
			} `json:"jobs"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Jobs, 2)
		assert.Equal(t, "b-1", body.Jobs[0].BuildID)
		assert.Equal(t, "started", body.Jobs[0].Status)
		assert.Equal(t, "b-2", body.Jobs[1].BuildID)
		assert.Equal(t, "progress", body.Jobs[1].Status)
	})
}

func TestCORSMiddleware(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
