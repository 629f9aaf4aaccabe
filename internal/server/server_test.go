// ABOUTME: Tests for the HTTP service routes and SSE endpoint announcement
// ABOUTME: Uses httptest against the echo router

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

func newTestServer(t *testing.T, opts Options, paths ...string) *Server {
	t.Helper()
	var mounts []Mount
	for _, p := range paths {
		mounts = append(mounts, Mount{Path: p, Server: mcpserver.NewMCPServer("test", "0.0.0")})
	}
	s, err := New(opts, mounts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error with no mounts")
	}
	m := mcpserver.NewMCPServer("test", "0.0.0")
	if _, err := New(Options{}, Mount{Path: "/audio", Server: m}, Mount{Path: "audio/", Server: m}); err == nil {
		t.Error("expected error for duplicate path")
	}
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t, Options{Host: "127.0.0.1", Port: 8080}, "/audio", "/doc")
	if s.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", s.Addr())
	}

	for _, path := range []string{"/", "/healthz"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var body struct {
				Status    string   `json:"status"`
				Endpoints []string `json:"endpoints"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body.Status != "ok" || len(body.Endpoints) != 2 || body.Endpoints[0] != "/audio/sse" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		want    int
	}{
		{"enabled", true, http.StatusOK},
		{"disabled", false, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Options{Metrics: tt.enabled}, "/audio")
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.enabled && !strings.Contains(rec.Body.String(), "go_goroutines") {
				t.Error("metrics output missing runtime collectors")
			}
		})
	}
}

func TestSSEAnnouncesMessageEndpoint(t *testing.T) {
	s := newTestServer(t, Options{}, "/video")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/video/sse", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /video/sse error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var endpoint string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			endpoint = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			break
		}
	}
	if !strings.Contains(endpoint, "/video/message?sessionId=") {
		t.Errorf("announced endpoint = %q", endpoint)
	}
}

func TestMessageRequiresSession(t *testing.T) {
	s := newTestServer(t, Options{}, "/image")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/image/message", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := newTestServer(t, Options{Host: "127.0.0.1", Port: 0}, "/doc")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
