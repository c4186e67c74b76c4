package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fillmgr/fillmgr/internal/api"
)

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" || r.Method != http.MethodGet {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.HealthResponse{
			SchemaVersion: "v1",
			GeneratedAt:   time.Now().UTC(),
			Status:        "ok",
			ProviderID:    "com.acme.fill",
			Enabled:       true,
		})
	}))
	defer srv.Close()

	c := NewWithClient(srv.URL, srv.Client())
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.Status != "ok" || resp.ProviderID != "com.acme.fill" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSetEnabledSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/enabled" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req api.EnabledRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.Enabled {
			t.Fatalf("enabled = true, want false")
		}
		_ = json.NewEncoder(w).Encode(api.EnabledResponse{SchemaVersion: "v1", Enabled: false})
	}))
	defer srv.Close()

	c := NewWithClient(srv.URL, srv.Client())
	resp, err := c.SetEnabled(context.Background(), false)
	if err != nil {
		t.Fatalf("set enabled: %v", err)
	}
	if resp.Enabled {
		t.Fatalf("enabled = true, want false")
	}
}

func TestHistoryLimitQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("limit = %q, want 5", got)
		}
		_ = json.NewEncoder(w).Encode(api.HistoryEnvelope{SchemaVersion: "v1"})
	}))
	defer srv.Close()

	c := NewWithClient(srv.URL, srv.Client())
	if _, err := c.History(context.Background(), 5); err != nil {
		t.Fatalf("history: %v", err)
	}
}

func TestErrorEnvelopeSurfacesAsRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{
			SchemaVersion: "v1",
			Error:         api.APIError{Code: api.ErrInvalidRequest, Message: "limit must be a non-negative integer"},
		})
	}))
	defer srv.Close()

	c := NewWithClient(srv.URL, srv.Client())
	_, err := c.History(context.Background(), 5)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if reqErr.Code != api.ErrInvalidRequest || reqErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected request error: %+v", reqErr)
	}
}
