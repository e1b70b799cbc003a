package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/taskboard/internal/board"
	"github.com/joescharf/taskboard/internal/config"
	"github.com/joescharf/taskboard/internal/models"
	"github.com/joescharf/taskboard/internal/store"
	"github.com/joescharf/taskboard/internal/stream"
	"github.com/joescharf/taskboard/internal/watch"
)

const tasksDoc = `{
	"config": {"max_parallel_tasks": 2},
	"next_id": 3,
	"tasks": [
		{"id": 1, "repo": "alpha", "repo_path": "/src/alpha", "spec_file": "tasks/1/spec.md",
		 "log_file": "tasks/1/agent.log", "title": "Add login", "status": "completed",
		 "branch": "task-1", "agent_id": "a1", "worktree_path": null, "merge_status": "merged",
		 "created_at": "2026-03-01T10:00:00Z", "assigned_at": "2026-03-01T10:01:00Z",
		 "completed_at": "2026-03-01T11:00:00Z", "error": null},
		{"id": 2, "repo": "alpha", "repo_path": "/src/alpha", "spec_file": "tasks/2/spec.md",
		 "log_file": "tasks/2/agent.log", "title": "Fix logout", "status": "in_progress",
		 "branch": "task-2", "agent_id": "a2", "worktree_path": "/wt/2", "merge_status": null,
		 "created_at": "2026-03-02T10:00:00Z", "assigned_at": "2026-03-02T10:01:00Z",
		 "completed_at": null, "error": null}
	]
}`

type testEnv struct {
	srv     *Server
	router  http.Handler
	paths   config.Paths
	reg     *watch.Registry
	streams *stream.Manager
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	paths, err := config.NewPaths(filepath.Join(dir, "data"), filepath.Join(dir, "tasks"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(paths.DataDir, 0o755))

	reg, err := watch.NewRegistry(watch.Options{RetryInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	streams := stream.NewManager(reg, nil)
	srv := NewServer(store.NewFileStore(paths), streams, nil)
	return &testEnv{srv: srv, router: srv.Router(), paths: paths, reg: reg, streams: streams}
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestListTasks_MissingFile(t *testing.T) {
	env := setupTestServer(t)

	w := env.get(t, "/api/tasks")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"config":{"max_parallel_tasks":0},"next_id":1,"tasks":[]}`, w.Body.String())
}

func TestListTasks(t *testing.T) {
	env := setupTestServer(t)
	writeFile(t, env.paths.TasksFile(), tasksDoc)

	w := env.get(t, "/api/tasks")
	require.Equal(t, http.StatusOK, w.Code)

	var tf models.TasksFile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tf))
	require.Len(t, tf.Tasks, 2)
	assert.Equal(t, "Add login", tf.Tasks[0].Title)
	assert.Nil(t, tf.Tasks[1].MergeStatus)
}

func TestListTasks_SchemaViolation(t *testing.T) {
	env := setupTestServer(t)
	writeFile(t, env.paths.TasksFile(), `{"config":{"max_parallel_tasks":2},"next_id":1,"tasks":[{"id":"one"}]}`)

	w := env.get(t, "/api/tasks")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "schema_violation", body["kind"])
	assert.NotEmpty(t, body["detail"])
	assert.Contains(t, body["error"], "tasks file")
}

func TestListRepos(t *testing.T) {
	env := setupTestServer(t)

	w := env.get(t, "/api/repos")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"repositories":[]}`, w.Body.String())

	writeFile(t, env.paths.ReposFile(), `{"repositories":[{"name":"alpha","path":"/src/alpha"}]}`)
	w = env.get(t, "/api/repos")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"repositories":[{"name":"alpha","path":"/src/alpha"}]}`, w.Body.String())

	writeFile(t, env.paths.ReposFile(), `{"repositories":[{"name":"alpha"}]}`)
	w = env.get(t, "/api/repos")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "schema_violation")
}

func TestTaskLog_Placeholder(t *testing.T) {
	env := setupTestServer(t)

	w := env.get(t, "/api/logs/7")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, NoLogsText, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	writeFile(t, env.paths.LogFile(7), "{\"type\":\"user\"}\n")
	w = env.get(t, "/api/logs/7")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "{\"type\":\"user\"}\n", w.Body.String())
}

func TestTaskSpec_Placeholder(t *testing.T) {
	env := setupTestServer(t)

	w := env.get(t, "/api/tasks/4/spec")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, NoSpecText, w.Body.String())

	writeFile(t, env.paths.SpecFile(4), "# Build the thing\n")
	w = env.get(t, "/api/tasks/4/spec")
	assert.Equal(t, "# Build the thing\n", w.Body.String())
}

func TestInvalidTaskID(t *testing.T) {
	env := setupTestServer(t)

	for _, path := range []string{
		"/api/logs/abc",
		"/api/logs/-1",
		"/api/logs/1.5/stream",
		"/api/logs/x/conversation",
		"/api/tasks/abc/spec",
	} {
		w := env.get(t, path)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestTaskConversation(t *testing.T) {
	env := setupTestServer(t)

	w := env.get(t, "/api/logs/1/conversation")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	writeFile(t, env.paths.LogFile(1), `{"type":"user","message":{"role":"user","content":"go"}}
{"type":"progress","pct":50}
not json
{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"done"}]}}
`)

	w = env.get(t, "/api/logs/1/conversation")
	require.Equal(t, http.StatusOK, w.Code)
	var turns []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &turns))
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0]["role"])
	assert.Equal(t, "assistant", turns[1]["role"])

	w = env.get(t, "/api/logs/1/conversation?raw=1")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &turns))
	assert.Len(t, turns, 3)
}

func TestBoard(t *testing.T) {
	env := setupTestServer(t)
	writeFile(t, env.paths.TasksFile(), tasksDoc)
	env.srv.now = func() time.Time { return time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC) }

	w := env.get(t, "/api/board")
	require.Equal(t, http.StatusOK, w.Code)
	var summary board.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.SlotsAvailable)

	w = env.get(t, "/api/board/productivity")
	require.Equal(t, http.StatusOK, w.Code)
	var p board.Productivity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 1, p.TotalCompleted)
	require.Len(t, p.Diary, 1)
	assert.Equal(t, "2026-03-01", p.Diary[0].Date)
}

func TestGetStudent(t *testing.T) {
	env := setupTestServer(t)

	w := env.get(t, "/api/students/ada")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Student not found"}`, w.Body.String())

	writeFile(t, env.paths.StudentFile("ada"), `{"name":"Ada","skills":["go"]}`)
	w = env.get(t, "/api/students/Ada")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"Ada","skills":["go"]}`, w.Body.String())

	w = env.get(t, "/api/students/bad.name")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	writeFile(t, env.paths.StudentFile("bob"), `{"name":`)
	w = env.get(t, "/api/students/bob")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCORS(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/tasks", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestIndexPage(t *testing.T) {
	env := setupTestServer(t)

	w := env.get(t, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/api/stream")
}
