package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fillmgr/fillmgr/internal/api"
	"github.com/fillmgr/fillmgr/internal/config"
	"github.com/fillmgr/fillmgr/internal/session"
)

func testServer(t *testing.T) (*Server, *session.Registry) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "fillmgrd.sock")
	cfg.ProviderID = "com.acme.fill"
	registry := session.NewRegistry(session.RegistryConfig{
		ProviderID: cfg.ProviderID,
		Enabled:    true,
	})
	t.Cleanup(registry.Destroy)
	return NewServer(cfg, registry, nil), registry
}

func doRequest(t *testing.T, s *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthHandler(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp api.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.ProviderID != "com.acme.fill" || !resp.Enabled {
		t.Fatalf("unexpected health: %+v", resp)
	}
}

func TestSessionsHandlerEmpty(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/v1/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp api.SessionsEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sessions) != 0 {
		t.Fatalf("sessions = %+v, want empty", resp.Sessions)
	}
}

func TestEnabledHandlerRoundTrip(t *testing.T) {
	s, registry := testServer(t)

	rec := doRequest(t, s, http.MethodPut, "/v1/enabled", `{"enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if registry.Enabled() {
		t.Fatalf("registry still enabled after PUT")
	}

	rec = doRequest(t, s, http.MethodGet, "/v1/enabled", "")
	var resp api.EnabledResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Enabled {
		t.Fatalf("enabled = true, want false")
	}
}

func TestEnabledHandlerRejectsBadBody(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodPut, "/v1/enabled", `{"unknown":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != api.ErrInvalidRequest {
		t.Fatalf("error code = %s", resp.Error.Code)
	}
}

func TestHistoryHandlerLimitValidation(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodGet, "/v1/history?limit=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := testServer(t)
	rec := doRequest(t, s, http.MethodPost, "/v1/health", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "GET" {
		t.Fatalf("Allow = %q, want GET", allow)
	}
}

func TestStartServesOverUnixSocket(t *testing.T) {
	s, _ := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", s.cfg.SocketPath)
		},
	}}

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = client.Get("http://unix/v1/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health over uds: %v", err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("start returned %v, want context.Canceled", err)
	}
}
