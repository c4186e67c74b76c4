package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fillmgr/fillmgr/internal/fieldtree"
	"github.com/fillmgr/fillmgr/internal/history"
	"github.com/fillmgr/fillmgr/internal/model"
)

// RegistryConfig wires one user's registry to its collaborators.
type RegistryConfig struct {
	ProviderID    string
	ProviderLabel string
	UserID        int
	Enabled       bool

	Presenter Presenter
	Capturer  TreeCapturer
	Providers ProviderFactory

	// History is the bounded in-memory audit of session starts. Recorder,
	// when set, additionally persists each entry; it is invoked off-lock on
	// the serial queue and its failures are diagnostics only.
	History  *history.Log
	Recorder history.Sink
}

// Registry is the per-user collection of live sessions. One mutex guards the
// session map, the client set, the enablement flag, and every session's
// mutable state; outbound collaborator calls go through a single serial
// dispatcher so they run off-lock and in order.
type Registry struct {
	mu sync.Mutex

	providerID    string
	providerLabel string
	userID        int
	enabled       bool

	sessions     map[string]*Session
	clients      map[int64]StateClient
	nextClientID int64

	ui        Presenter
	capturer  TreeCapturer
	providers ProviderFactory
	history   *history.Log
	recorder  history.Sink

	dispatch *dispatcher
}

func NewRegistry(cfg RegistryConfig) *Registry {
	hist := cfg.History
	if hist == nil {
		hist = history.NewLog(0)
	}
	return &Registry{
		providerID:    cfg.ProviderID,
		providerLabel: cfg.ProviderLabel,
		userID:        cfg.UserID,
		enabled:       cfg.Enabled,
		sessions:      make(map[string]*Session),
		clients:       make(map[int64]StateClient),
		ui:            cfg.Presenter,
		capturer:      cfg.Capturer,
		providers:     cfg.Providers,
		history:       hist,
		recorder:      cfg.Recorder,
	}
}

// post enqueues an outbound collaborator call on the serial queue. It takes
// r.mu to reach the dispatcher, so it must only be called while NOT holding
// the lock; under the lock use postLocked. The call runs later, off-lock, in
// post order.
func (r *Registry) post(fn func()) {
	r.mu.Lock()
	if r.dispatch == nil {
		r.dispatch = newDispatcher()
	}
	d := r.dispatch
	r.mu.Unlock()
	d.Post(fn)
}

// StartParams describes the interaction that opens a session.
type StartParams struct {
	Token       string
	WindowRef   string
	OwnerLabel  string
	Surface     Surface
	FieldID     model.FieldID
	Bounds      *model.Rect
	Value       *model.Value
	HasCallback bool
	Flags       model.UpdateFlags
}

// StartSession creates and registers a session for the token, unless one
// already exists (idempotent per token: no second session, no second tree
// capture). Every start attempt is audited.
func (r *Registry) StartSession(p StartParams) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}

	entry := history.Entry{
		ProviderID:  r.providerID,
		UserID:      r.userID,
		Token:       p.Token,
		FieldID:     string(p.FieldID),
		HasCallback: p.HasCallback,
		Flags:       p.Flags.String(),
	}
	if p.Bounds != nil {
		entry.Bounds = p.Bounds.String()
	}
	entry = r.history.Append(entry)
	if r.recorder != nil {
		recorder := r.recorder
		r.postLocked(func() {
			if err := recorder.Append(entry); err != nil {
				diagf("history: persist session start: %v", err)
			}
		})
	}

	if _, ok := r.sessions[p.Token]; ok {
		// Already started for this screen.
		return
	}

	s := newSessionLocked(r, p)
	s.updateLocked(p.FieldID, p.Bounds, p.Value, model.FlagStartSession)
}

// postLocked is post for callers already holding r.mu.
func (r *Registry) postLocked(fn func()) {
	if r.dispatch == nil {
		r.dispatch = newDispatcher()
	}
	r.dispatch.Post(fn)
}

// UpdateSession routes a focus/value event to the session for the token.
// Events for unknown tokens are stale references: dropped with a diagnostic.
func (r *Registry) UpdateSession(token string, id model.FieldID, bounds *model.Rect, value *model.Value, flags model.UpdateFlags) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		diagf("update: session gone for token %s", token)
		return
	}
	s.updateLocked(id, bounds, value, flags)
}

// FinishSession runs the save gate for the token's session and removes it
// unless a save prompt is now pending the user's decision.
func (r *Registry) FinishSession(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	s, ok := r.sessions[token]
	if !ok {
		diagf("finish: no session for token %s", token)
		return
	}
	if s.showSaveLocked() {
		s.removeSelfLocked()
	}
}

// CancelSession tears the token's session down without a save check. Also
// the path taken on surface channel loss.
func (r *Registry) CancelSession(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	s, ok := r.sessions[token]
	if !ok {
		diagf("cancel: no session for token %s", token)
		return
	}
	s.removeSelfLocked()
}

// SetAuthenticationResult delivers the outcome of an authentication
// round-trip to the token's session. nil means abandoned.
func (r *Registry) SetAuthenticationResult(token string, result *model.AuthResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	if s, ok := r.sessions[token]; ok {
		s.setAuthenticationResultLocked(result)
	}
}

// SetHasCallback records whether the surface wants availability callbacks.
func (r *Registry) SetHasCallback(token string, hasIt bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	if s, ok := r.sessions[token]; ok {
		s.hasCallback = hasIt
	}
}

// RequestSave triggers the save request for the token's session directly,
// bypassing the prompt. Diagnostic/tooling parity with the save gate.
func (r *Registry) RequestSave(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	s, ok := r.sessions[token]
	if !ok {
		diagf("request save: no session for token %s", token)
		return
	}
	s.callSaveLocked()
}

// DeliverTree accepts the asynchronously captured field tree for the token
// and issues the fill request to the provider. A tree arriving after the
// session was removed is discarded with a diagnostic.
func (r *Registry) DeliverTree(token string, tree *fieldtree.Tree) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		diagf("field tree delivered for unknown token %s", token)
		return
	}
	s.tree = tree
	provider := s.provider
	flags := s.flags
	r.postLocked(func() { provider.RequestFill(tree, nil, flags) })
}

// AddClient registers a surface for enablement broadcasts and reports the
// current state. The returned remove function unregisters it.
func (r *Registry) AddClient(c StateClient) (enabled bool, remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextClientID++
	id := r.nextClientID
	r.clients[id] = c
	return r.enabled, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.clients, id)
	}
}

// Enabled reports whether the provider is currently enabled for this user.
func (r *Registry) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// SetEnabled flips provider enablement. Disabling tears down every live
// session; any transition is broadcast to every registered client,
// fire-and-forget per client.
func (r *Registry) SetEnabled(enabled bool) {
	r.mu.Lock()
	if r.enabled == enabled {
		r.mu.Unlock()
		return
	}
	r.enabled = enabled
	if !enabled {
		for _, s := range r.sessionsSnapshotLocked() {
			s.removeSelfLocked()
		}
	}
	clients := make([]StateClient, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		client := c
		r.post(func() {
			if err := client.SetEnabled(enabled); err != nil {
				diagf("enablement broadcast: %v", err)
			}
		})
	}
}

func (r *Registry) sessionsSnapshotLocked() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Sessions returns a diagnostic snapshot of every live session, ordered by
// token.
func (r *Registry) Sessions() []model.SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.infoLocked())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// History returns the bounded in-memory audit log.
func (r *Registry) History() *history.Log {
	return r.history
}

// ProviderLabel is the display name used in save prompts, falling back to
// the provider id when no label is configured.
func (r *Registry) ProviderLabel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.providerLabelLocked()
}

func (r *Registry) providerLabelLocked() string {
	if r.providerLabel != "" {
		return r.providerLabel
	}
	return r.providerID
}

// Destroy tears down every session and stops the dispatcher after draining
// it. The registry must not be used afterwards.
func (r *Registry) Destroy() {
	r.mu.Lock()
	for _, s := range r.sessionsSnapshotLocked() {
		s.removeSelfLocked()
	}
	d := r.dispatch
	r.mu.Unlock()
	if d != nil {
		d.Close()
	}
}

// String is a one-line diagnostic summary.
func (r *Registry) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("registry[provider=%s user=%d enabled=%v sessions=%d]",
		r.providerID, r.userID, r.enabled, len(r.sessions))
}
