package session

import (
	"log"

	"github.com/fillmgr/fillmgr/internal/model"
)

// diagf records a protocol diagnostic. Diagnostics never drive control flow.
func diagf(format string, args ...any) {
	log.Printf("fillmgr: "+format, args...)
}

// fillReadyListener is the capability a fieldState uses to announce that the
// fill UI can be shown for its field. The owning Session implements it; the
// call is synchronous within the caller's critical section.
type fillReadyListener interface {
	onFillReady(resp *model.FillResponse, id model.FieldID, value model.Value)
}

// fieldState tracks one field the user has interacted with: its last known
// value and bounds, whether the user edited it, and the response pending
// presentation for it.
type fieldState struct {
	id       model.FieldID
	listener fillReadyListener

	value  model.Value
	bounds *model.Rect
	dirty  bool

	response *model.FillResponse
	authReq  *AuthRequest
}

func newFieldState(id model.FieldID, listener fillReadyListener) *fieldState {
	return &fieldState{id: id, listener: listener}
}

// update merges any provided value/bounds into the state; it never clears a
// previously known value or bounds. May fire the readiness listener.
func (s *fieldState) update(value *model.Value, bounds *model.Rect) {
	if value != nil {
		s.value = *value
	}
	if bounds != nil {
		s.bounds = bounds
	}
	s.maybeFireReady()
}

// attachResponse stores the response pending presentation for this field,
// plus the auth request wrapping it when the response requires
// authentication. A response is attached at most once per fill cycle; a
// second attach overwrites deliberately rather than stacking callbacks.
func (s *fieldState) attachResponse(resp *model.FillResponse, authReq *AuthRequest) {
	if s.response != nil && s.response != resp {
		diagf("field %s: replacing previously attached response", s.id)
	}
	if authReq != nil {
		s.authReq = authReq
	}
	s.response = resp
	s.maybeFireReady()
}

// maybeFireReady invokes the listener when a response is attached and it is
// actionable: it carries an auth challenge or at least one dataset.
func (s *fieldState) maybeFireReady() {
	if s.response.Actionable() {
		s.listener.onFillReady(s.response, s.id, s.value)
	}
}
