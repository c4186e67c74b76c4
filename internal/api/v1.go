// Package api defines the JSON envelopes served over the daemon's unix
// socket. Every response carries a schema version and generation timestamp.
package api

import (
	"time"

	"github.com/fillmgr/fillmgr/internal/model"
)

type HealthResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Status        string    `json:"status"`
	ProviderID    string    `json:"provider_id"`
	Enabled       bool      `json:"enabled"`
	Sessions      int       `json:"sessions"`
}

type SessionsEnvelope struct {
	SchemaVersion string              `json:"schema_version"`
	GeneratedAt   time.Time           `json:"generated_at"`
	Sessions      []model.SessionInfo `json:"sessions"`
}

type HistoryEntry struct {
	ID          string    `json:"id"`
	At          time.Time `json:"at"`
	ProviderID  string    `json:"provider_id"`
	UserID      int       `json:"user_id"`
	Token       string    `json:"token"`
	FieldID     string    `json:"field_id"`
	Bounds      string    `json:"bounds,omitempty"`
	HasCallback bool      `json:"has_callback"`
	Flags       string    `json:"flags"`
}

type HistoryEnvelope struct {
	SchemaVersion string         `json:"schema_version"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Entries       []HistoryEntry `json:"entries"`
}

type EnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type EnabledResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Enabled       bool      `json:"enabled"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Error         APIError  `json:"error"`
}

// Error codes shared by server and client.
const (
	ErrInvalidRequest = "INVALID_REQUEST"
	ErrNotFound       = "NOT_FOUND"
	ErrInternal       = "INTERNAL"
)
