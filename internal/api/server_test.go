package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/dstiny-bridge/internal/bridges/dstiny"
	"github.com/nerrad567/dstiny-bridge/internal/eventbridge"
	"github.com/nerrad567/dstiny-bridge/internal/scenes"
)

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Info(msg string, _ ...any)  { l.add(msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.add(msg) }

func (l *captureLogger) add(msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, msg)
	l.mu.Unlock()
}

type fixedState dstiny.State

func (f fixedState) State() dstiny.State { return dstiny.State(f) }

const testSecret = "0123456789abcdef0123456789abcdef"

func testDeps(t *testing.T) Deps {
	t.Helper()
	store := scenes.NewMemoryStore()
	if err := scenes.EnsureDefaults(context.Background(), store); err != nil {
		t.Fatalf("EnsureDefaults() error = %v", err)
	}
	return Deps{
		Version:   "test",
		JWTSecret: testSecret,
		Logger:    &captureLogger{},
		Store:   store,
		Session: fixedState(dstiny.StateOnline),
		Queue:   eventbridge.NewQueue(8),
		Shared:  eventbridge.NewSharedState(),
	}
}

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string, out any) *http.Response {
	t.Helper()
	return doAuthJSON(t, method, url, "", body, out)
}

// testToken returns a valid token for testSecret.
func testToken(t *testing.T) string {
	t.Helper()
	token, err := IssueToken(testSecret, "tester", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func doAuthJSON(t *testing.T, method, url, token, body string, out any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, url, err)
		}
	}
	return resp
}

func TestNew_RequiresDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Store: scenes.NewMemoryStore(), JWTSecret: testSecret}},
		{"no store", Deps{Logger: &captureLogger{}, JWTSecret: testSecret}},
		{"no jwt secret", Deps{Logger: &captureLogger{}, Store: scenes.NewMemoryStore()}},
	}
	for _, tt := range tests {
		if _, err := New(tt.deps); err == nil {
			t.Errorf("New() with %s should fail", tt.name)
		}
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testDeps(t))

	var body map[string]any
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/health", "", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing generated X-Request-ID")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	srv := newTestServer(t, testDeps(t))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestStatus(t *testing.T) {
	deps := testDeps(t)
	deps.Queue.Enqueue(eventbridge.Event{Index: 1, Value: 0x2C0A})
	deps.Shared.SetFanLevel(44)
	deps.Shared.SetFlapLevel(10)
	deps.Shared.SetLock(true)
	srv := newTestServer(t, deps)

	var st Status
	doJSON(t, http.MethodGet, srv.URL+"/api/v1/status", "", &st)

	want := Status{
		Version: "test", Session: "online",
		QueueLength: 1, QueueCapacity: 8,
		Locked: true, FanLevel: 44, FlapLevel: 10,
	}
	if st != want {
		t.Errorf("status = %+v, want %+v", st, want)
	}
}

func TestStartClose(t *testing.T) {
	deps := testDeps(t)
	deps.Listen = "127.0.0.1:0"
	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	resp, err := http.Get("http://" + s.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
