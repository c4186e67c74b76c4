package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fillmgr/fillmgr/internal/api"
	"github.com/fillmgr/fillmgr/internal/client"
)

func testRunner(t *testing.T, handler http.HandlerFunc) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(client.NewWithClient(srv.URL, srv.Client()), out, errOut)
	return r, out, errOut
}

func TestRunStatus(t *testing.T) {
	r, out, _ := testRunner(t, func(w http.ResponseWriter, req *http.Request) {
		_ = json.NewEncoder(w).Encode(api.HealthResponse{
			SchemaVersion: "v1",
			GeneratedAt:   time.Now().UTC(),
			Status:        "ok",
			ProviderID:    "com.acme.fill",
			Enabled:       true,
			Sessions:      2,
		})
	})
	if code := r.Run(context.Background(), []string{"status"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	got := out.String()
	for _, want := range []string{"status: ok", "provider: com.acme.fill", "sessions: 2"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output %q missing %q", got, want)
		}
	}
}

func TestRunHistoryPassesLimit(t *testing.T) {
	r, _, _ := testRunner(t, func(w http.ResponseWriter, req *http.Request) {
		if got := req.URL.Query().Get("limit"); got != "3" {
			t.Fatalf("limit = %q, want 3", got)
		}
		_ = json.NewEncoder(w).Encode(api.HistoryEnvelope{SchemaVersion: "v1"})
	})
	if code := r.Run(context.Background(), []string{"history", "--limit", "3"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunDisable(t *testing.T) {
	r, out, _ := testRunner(t, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPut {
			t.Fatalf("method = %s, want PUT", req.Method)
		}
		var body api.EnabledRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Enabled {
			t.Fatalf("enabled = true, want false")
		}
		_ = json.NewEncoder(w).Encode(api.EnabledResponse{SchemaVersion: "v1", Enabled: false})
	})
	if code := r.Run(context.Background(), []string{"disable"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out.String(), "enabled: false") {
		t.Fatalf("output %q", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	r, _, errOut := testRunner(t, func(w http.ResponseWriter, req *http.Request) {})
	if code := r.Run(context.Background(), []string{"bogus"}); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "unknown command") {
		t.Fatalf("stderr %q", errOut.String())
	}
}

func TestParseGlobalArgs(t *testing.T) {
	socket, rest, err := parseGlobalArgs([]string{"--socket", "/tmp/x.sock", "status", "--json"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if socket != "/tmp/x.sock" {
		t.Fatalf("socket = %q", socket)
	}
	if len(rest) != 2 || rest[0] != "status" {
		t.Fatalf("rest = %v", rest)
	}

	if _, _, err := parseGlobalArgs([]string{"--socket"}); err == nil {
		t.Fatalf("expected error for missing socket value")
	}
}
