package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	serverhttp "github.com/G159w/chat-bot-cordinator/internal/http"
	"github.com/G159w/chat-bot-cordinator/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv *serverhttp.Server
	ts  *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	srv := serverhttp.NewServer(storage.NewMockStore())
	mux := nethttp.NewServeMux()
	srv.Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return &testServer{srv: srv, ts: ts}
}

func (s *testServer) do(t *testing.T, method, path, user string, body interface{}) (int, map[string]interface{}) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := nethttp.NewRequest(method, s.ts.URL+path, reader)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := nethttp.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func TestServerHealth(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, "GET", "/health", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestServerFlowLifecycle(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/crews", "user-a", map[string]interface{}{
		"name": "research crew",
	})
	require.Equal(t, nethttp.StatusCreated, status)
	crewID := body["id"].(string)

	status, body = s.do(t, "POST", "/flows", "user-a", map[string]interface{}{
		"crew_id": crewID,
		"name":    "research flow",
	})
	require.Equal(t, nethttp.StatusCreated, status)
	flowID := body["id"].(string)

	status, _ = s.do(t, "POST", "/flows/"+flowID+"/tasks", "user-a", map[string]interface{}{
		"name":      "collect",
		"task_type": "input",
		"order":     0,
	})
	require.Equal(t, nethttp.StatusCreated, status)

	status, body = s.do(t, "POST", "/flows/"+flowID+"/execute", "user-a", map[string]interface{}{
		"input": map[string]interface{}{"text": "hello"},
	})
	require.Equal(t, nethttp.StatusAccepted, status)
	executionID := body["execution_id"].(string)
	require.NotEmpty(t, executionID)

	s.srv.Wait()

	status, body = s.do(t, "GET", "/executions/flow/"+executionID, "user-a", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "completed", body["status"])

	status, body = s.do(t, "GET", "/executions/flow/"+executionID+"/details", "user-a", nil)
	require.Equal(t, nethttp.StatusOK, status)
	taskExecutions := body["task_executions"].([]interface{})
	require.Len(t, taskExecutions, 1)
	first := taskExecutions[0].(map[string]interface{})
	assert.Equal(t, "completed", first["status"])
}

func TestServerWorkflowLifecycle(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/crews", "user-a", map[string]interface{}{
		"name": "support crew",
		"agents": []map[string]interface{}{
			{"name": "triage", "role": "coordinator", "is_coordinator": true},
		},
	})
	require.Equal(t, nethttp.StatusCreated, status)
	crewID := body["id"].(string)

	status, body = s.do(t, "POST", "/workflows/execute", "user-a", map[string]interface{}{
		"crew_id": crewID,
		"input":   "help me",
	})
	require.Equal(t, nethttp.StatusAccepted, status)
	executionID := body["execution_id"].(string)

	s.srv.Wait()

	status, body = s.do(t, "GET", "/executions/workflow/"+executionID, "user-a", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "completed", body["status"])

	status, body = s.do(t, "GET", "/executions/workflow/"+executionID+"/details", "user-a", nil)
	require.Equal(t, nethttp.StatusOK, status)
	agentExecutions := body["agent_executions"].([]interface{})
	require.Len(t, agentExecutions, 1)
}

func TestServerErrorMapping(t *testing.T) {
	s := newTestServer(t)

	t.Run("ExecuteMissingFlow", func(t *testing.T) {
		status, _ := s.do(t, "POST", "/flows/3b1c9e2d-0000-0000-0000-000000000000/execute", "user-a", map[string]interface{}{})
		assert.Equal(t, nethttp.StatusNotFound, status)
	})

	t.Run("WorkflowWithoutInput", func(t *testing.T) {
		status, _ := s.do(t, "POST", "/workflows/execute", "user-a", map[string]interface{}{
			"crew_id": "anything",
			"input":   "",
		})
		assert.Equal(t, nethttp.StatusBadRequest, status)
	})

	t.Run("TwoCoordinators", func(t *testing.T) {
		status, _ := s.do(t, "POST", "/crews", "user-a", map[string]interface{}{
			"name": "broken crew",
			"agents": []map[string]interface{}{
				{"name": "a", "is_coordinator": true},
				{"name": "b", "is_coordinator": true},
			},
		})
		assert.Equal(t, nethttp.StatusBadRequest, status)
	})

	t.Run("ForeignExecutionIs404", func(t *testing.T) {
		status, body := s.do(t, "POST", "/crews", "user-a", map[string]interface{}{"name": "c"})
		require.Equal(t, nethttp.StatusCreated, status)
		crewID := body["id"].(string)
		status, body = s.do(t, "POST", "/flows", "user-a", map[string]interface{}{"crew_id": crewID, "name": "f"})
		require.Equal(t, nethttp.StatusCreated, status)
		flowID := body["id"].(string)
		status, _ = s.do(t, "POST", "/flows/"+flowID+"/tasks", "user-a", map[string]interface{}{
			"name": "t", "task_type": "input",
		})
		require.Equal(t, nethttp.StatusCreated, status)
		status, body = s.do(t, "POST", "/flows/"+flowID+"/execute", "user-a", map[string]interface{}{})
		require.Equal(t, nethttp.StatusAccepted, status)
		executionID := body["execution_id"].(string)
		s.srv.Wait()

		status, _ = s.do(t, "GET", "/executions/flow/"+executionID, "user-b", nil)
		assert.Equal(t, nethttp.StatusNotFound, status)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		req, err := nethttp.NewRequest("POST", s.ts.URL+"/crews", bytes.NewReader([]byte("{not json")))
		require.NoError(t, err)
		req.Header.Set("X-User-ID", "user-a")
		resp, err := nethttp.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	})
}
