package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/internal/core"
	"github.com/reelforge/reelforge/internal/logging"
	"github.com/reelforge/reelforge/internal/metrics"
	"github.com/reelforge/reelforge/internal/state"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	srv := New(logging.NewNop(), dir, metrics.New(), []string{"*"})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, dir
}

func seedWorkflow(t *testing.T, dir, id string) {
	t.Helper()
	m := state.NewManager(id, dir, logging.NewNop())
	m.StartPhase(core.PhaseFetchTitle)
	m.CompletePhase(core.PhaseFetchTitle, map[string]any{"title": "Top 5 Blenders"})
	m.StartPhase(core.PhaseScrapeProducts)
	m.FailPhase(core.PhaseScrapeProducts, "timeout")
	m.Close()
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	var body map[string]any
	code := getJSON(t, ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestListWorkflows(t *testing.T) {
	ts, dir := newTestServer(t)
	seedWorkflow(t, dir, "workflow_a")
	seedWorkflow(t, dir, "workflow_b")

	var body struct {
		Count     int             `json:"count"`
		Workflows []state.Summary `json:"workflows"`
	}
	code := getJSON(t, ts.URL+"/api/workflows", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Workflows, 2)
	assert.Equal(t, 1, body.Workflows[0].Completed)
	assert.Equal(t, 1, body.Workflows[0].Failed)
}

func TestGetWorkflow(t *testing.T) {
	ts, dir := newTestServer(t)
	seedWorkflow(t, dir, "workflow_a")

	var body struct {
		Workflow state.PersistedState `json:"workflow"`
		Summary  state.Summary        `json:"summary"`
	}
	code := getJSON(t, ts.URL+"/api/workflows/workflow_a", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "workflow_a", body.Workflow.WorkflowID)
	assert.Equal(t, 2, body.Summary.Total)

	var missing map[string]any
	code = getJSON(t, ts.URL+"/api/workflows/workflow_nope", &missing)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetCheckpoints(t *testing.T) {
	ts, dir := newTestServer(t)
	seedWorkflow(t, dir, "workflow_a")

	var body struct {
		Count int `json:"count"`
	}
	code := getJSON(t, ts.URL+"/api/workflows/workflow_a/checkpoints", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, body.Count)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
