package session

import (
	"github.com/fillmgr/fillmgr/internal/fieldtree"
	"github.com/fillmgr/fillmgr/internal/model"
)

// Session is the live state machine for one screen's autofill interaction.
// It owns the per-field states, holds the provider's response until the user
// acts on it (or authenticates), and decides at finish time whether a save
// prompt is warranted.
//
// Every field is guarded by the owning registry's mutex; methods suffixed
// Locked require it. Session implements ProviderCallbacks and
// PresenterCallbacks, whose entry points acquire the lock themselves, and
// the fill-ready capability, which fires while the lock is already held.
type Session struct {
	registry *Registry

	token       string
	windowRef   string
	ownerLabel  string
	surface     Surface
	provider    ProviderTransport
	hasCallback bool
	flags       model.UpdateFlags

	fields map[model.FieldID]*fieldState
	active *fieldState

	response *model.FillResponse
	applied  *model.Dataset
	tree     *fieldtree.Tree

	savePending bool
	removed     bool
	unwatch     func()
}

// newSessionLocked constructs a session, registers it under its token, binds
// the provider transport, subscribes to surface loss, and asks the capturer
// for the screen's field tree. The tree arrives later via DeliverTree.
func newSessionLocked(r *Registry, p StartParams) *Session {
	s := &Session{
		registry:    r,
		token:       p.Token,
		windowRef:   p.WindowRef,
		ownerLabel:  p.OwnerLabel,
		surface:     p.Surface,
		hasCallback: p.HasCallback,
		flags:       p.Flags,
		fields:      make(map[model.FieldID]*fieldState),
	}
	s.provider = r.providers(s)
	r.sessions[p.Token] = s

	if p.Surface != nil {
		token := p.Token
		unwatch, err := p.Surface.WatchDisconnect(func() {
			// Channel loss is an implicit cancel.
			r.CancelSession(token)
		})
		if err != nil {
			diagf("session %s: watch disconnect: %v", p.Token, err)
		} else {
			s.unwatch = unwatch
		}
	}

	if r.capturer != nil {
		token := p.Token
		capturer := r.capturer
		r.postLocked(func() {
			if err := capturer.RequestCapture(token); err != nil {
				diagf("session %s: request field tree capture: %v", token, err)
			}
		})
	}
	return s
}

// updateLocked is the single dispatch point for all post-start UI events,
// discriminated by flag. Once any dataset has been applied the session is a
// one-shot fill: every event except a value change is ignored.
func (s *Session) updateLocked(id model.FieldID, bounds *model.Rect, value *model.Value, flags model.UpdateFlags) {
	if s.applied != nil && !flags.Has(model.FlagValueChanged) {
		diagf("session %s: ignoring %s after fill was applied", s.token, flags)
		return
	}

	st, ok := s.fields[id]
	if !ok {
		st = newFieldState(id, s)
		s.fields[id] = st
	}

	switch {
	case flags.Has(model.FlagStartSession):
		s.active = st
		st.update(value, bounds)

	case flags.Has(model.FlagValueChanged):
		s.valueChangedLocked(st, value)

	case flags.Has(model.FlagViewEntered):
		if s.active != st {
			prev := model.FieldID("")
			if s.active != nil {
				prev = s.active.id
			}
			s.postHideSuggestions(prev)
			s.active = st
		}
		st.update(value, bounds)
		if s.response != nil {
			// One response serves every field visited in this fill cycle.
			st.attachResponse(s.response, nil)
		}

	case flags.Has(model.FlagViewExited):
		if s.active == st {
			s.postHideSuggestions(st.id)
			s.active = nil
		}

	default:
		diagf("session %s: unknown update flags %s", s.token, flags)
	}
}

func (s *Session) valueChangedLocked(st *fieldState, value *model.Value) {
	if value == nil || value.Equal(st.value) {
		return
	}
	if s.applied != nil {
		if filled, ok := s.applied.ValueFor(st.id); ok && value.Equal(filled) {
			// Echo of the fill being applied by the platform: accept the
			// value, keep the field clean, leave the UI alone.
			st.value = *value
			return
		}
	}
	st.dirty = true
	st.value = *value

	ui := s.registry.ui
	if value.IsText() {
		text := value.Text
		s.registry.postLocked(func() { ui.FilterSuggestions(&text) })
	} else {
		s.registry.postLocked(func() { ui.FilterSuggestions(nil) })
	}
}

// onFillReady implements the fieldState readiness capability: the fill UI
// can be shown for the field. Fired while the registry lock is held, so the
// presenter call is deferred to the serial queue.
func (s *Session) onFillReady(resp *model.FillResponse, id model.FieldID, value model.Value) {
	filterText := ""
	if value.IsText() {
		filterText = value.Text
	}
	ui := s.registry.ui
	owner := s.ownerLabel
	s.registry.postLocked(func() {
		ui.SetCallback(s)
		ui.ShowSuggestions(id, resp, filterText, owner)
	})
}

// OnFillRequestSuccess handles the provider's fill result. An absent or
// empty response carries no save opportunity: the surface is told no
// suggestions are available and the session ends.
func (s *Session) OnFillRequestSuccess(resp *model.FillResponse) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.removed {
		diagf("session %s: fill result after teardown", s.token)
		return
	}
	if resp == nil || resp.Empty() {
		s.notifyUnavailableLocked()
		s.removeSelfLocked()
		return
	}
	s.processResponseLocked(resp)
}

// OnFillRequestFailure is terminal: surface the error, end the session.
func (s *Session) OnFillRequestFailure(message string) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.removed {
		return
	}
	ui := s.registry.ui
	s.registry.postLocked(func() { ui.ShowError(message) })
	s.removeSelfLocked()
}

func (s *Session) OnSaveRequestSuccess() {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.removed {
		return
	}
	s.removeSelfLocked()
}

func (s *Session) OnSaveRequestFailure(message string) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.removed {
		return
	}
	ui := s.registry.ui
	s.registry.postLocked(func() { ui.ShowError(message) })
	s.removeSelfLocked()
}

func (s *Session) processResponseLocked(resp *model.FillResponse) {
	if s.active == nil {
		diagf("session %s: fill response with no active field", s.token)
		return
	}

	s.response = resp

	if resp.Auth != nil {
		// The whole response is locked: surface an authentication
		// affordance instead of the dataset list.
		s.active.attachResponse(resp, s.newAuthRequestLocked())
		return
	}

	if s.flags.Has(model.FlagManualRequest) && len(resp.Datasets) == 1 {
		// Single suggestion on an explicit trigger: apply it directly.
		s.autoFillLocked(resp.Datasets[0])
		return
	}

	s.active.attachResponse(resp, nil)
}

// setAuthenticationResultLocked consumes the outcome of an authentication
// round-trip. An absent result means the user abandoned authentication.
func (s *Session) setAuthenticationResultLocked(result *model.AuthResult) {
	if s.response == nil || result == nil {
		s.removeSelfLocked()
		return
	}
	if resp, ok := result.Response(); ok {
		s.processResponseLocked(resp)
		return
	}
	if ds, ok := result.Dataset(); ok {
		// Rebind the unlocked dataset into the slot that was being
		// authenticated, matched by identity, then apply it.
		index := -1
		for i, cand := range s.response.Datasets {
			if cand == s.applied {
				index = i
				break
			}
		}
		if index < 0 {
			diagf("session %s: auth result dataset has no matching slot", s.token)
			return
		}
		s.response.Datasets[index] = ds
		s.autoFillLocked(ds)
		return
	}
	s.removeSelfLocked()
}

// autoFillLocked records the chosen dataset and applies it, unless the
// dataset itself must be authenticated first.
func (s *Session) autoFillLocked(d *model.Dataset) {
	s.applied = d

	if d.Auth == nil {
		s.applyToSurfaceLocked(d)
		return
	}
	s.startAuthenticationLocked(d.Auth)
}

// applyToSurfaceLocked delivers every (field, value) pair of the dataset to
// the host surface for in-place population. Replace, not merge: fields the
// dataset does not name are left untouched.
func (s *Session) applyToSurfaceLocked(d *model.Dataset) {
	ids := make([]model.FieldID, 0, len(d.Fields))
	values := make([]model.Value, 0, len(d.Fields))
	for _, f := range d.Fields {
		ids = append(ids, f.ID)
		values = append(values, f.Value)
	}
	surface := s.surface
	windowRef := s.windowRef
	token := s.token
	s.registry.postLocked(func() {
		if err := surface.ApplyValues(windowRef, ids, values); err != nil {
			diagf("session %s: apply values: %v", token, err)
		}
	})
}

func (s *Session) startAuthenticationLocked(challenge *model.AuthChallenge) {
	req := s.newAuthRequestLocked()
	surface := s.surface
	token := s.token
	s.registry.postLocked(func() {
		if err := surface.StartAuthentication(challenge, req); err != nil {
			diagf("session %s: start authentication: %v", token, err)
		}
	})
}

func (s *Session) newAuthRequestLocked() *AuthRequest {
	var extras map[string]string
	if s.response != nil {
		extras = s.response.Extras
	}
	return &AuthRequest{Tree: s.tree, Extras: extras}
}

func (s *Session) notifyUnavailableLocked() {
	if s.active == nil {
		diagf("session %s: no active field to notify", s.token)
		return
	}
	if !s.hasCallback {
		return
	}
	surface := s.surface
	windowRef := s.windowRef
	id := s.active.id
	token := s.token
	s.registry.postLocked(func() {
		if err := surface.NotifyNoSuggestions(windowRef, id); err != nil {
			diagf("session %s: notify no suggestions: %v", token, err)
		}
	})
}

// showSaveLocked decides, without a provider round-trip, whether a save
// prompt is warranted. Returns true when the session is done and false when
// it must stay alive awaiting the user's save decision.
func (s *Session) showSaveLocked() bool {
	if s.tree == nil {
		diagf("session %s: save check with no field tree", s.token)
		return true
	}
	if s.response == nil {
		// Screen finished before the provider replied, or the provider
		// could not fill it.
		return true
	}
	spec := s.response.Save
	if spec == nil {
		return true
	}
	if len(spec.RequiredIDs) == 0 {
		diagf("session %s: save spec has no required ids", s.token)
		return true
	}

	decision := ShouldOfferSave(spec.RequiredIDs, spec.OptionalIDs,
		func(id model.FieldID) (FieldSnapshot, bool) {
			st, ok := s.fields[id]
			if !ok {
				return FieldSnapshot{}, false
			}
			return FieldSnapshot{Value: st.value, Dirty: st.dirty}, true
		},
		s.tree.OriginalValue,
		s.applied.ValueFor,
	)
	if decision != DecisionOfferSave {
		return true
	}

	s.savePending = true
	ui := s.registry.ui
	label := s.registry.providerLabelLocked()
	owner := s.ownerLabel
	s.registry.postLocked(func() {
		ui.SetCallback(s)
		ui.ShowSaveDialog(label, spec, owner)
	})
	return false
}

// callSaveLocked writes every known non-empty field value back into the
// captured tree and forwards it, with the response extras, to the provider.
// The terminal save callback always ends the session.
func (s *Session) callSaveLocked() {
	if s.tree == nil || s.response == nil {
		diagf("session %s: save requested with no tree or response", s.token)
		s.removeSelfLocked()
		return
	}
	for id, st := range s.fields {
		if st.value.IsEmpty() {
			continue
		}
		if !s.tree.SetValue(id, st.value) {
			diagf("session %s: save: no tree node for field %s", s.token, id)
		}
	}
	provider := s.provider
	tree := s.tree
	extras := s.response.Extras
	s.registry.postLocked(func() { provider.RequestSave(tree, extras) })
}

// OnDatasetChosen applies the dataset the user picked from the fill UI.
func (s *Session) OnDatasetChosen(d *model.Dataset) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.removed {
		diagf("session %s: dataset chosen after teardown", s.token)
		return
	}
	s.autoFillLocked(d)
}

// OnSaveConfirmed runs the save request the pending prompt was gating.
func (s *Session) OnSaveConfirmed() {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.removed {
		return
	}
	if !s.savePending {
		diagf("session %s: save confirmed with no pending prompt", s.token)
	}
	s.savePending = false
	s.callSaveLocked()
}

// OnSaveCancelled ends the session without calling save.
func (s *Session) OnSaveCancelled() {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.removed {
		return
	}
	s.removeSelfLocked()
}

// RequestShowSuggestionArea relays the presenter's positioning request to
// the host surface, with the active field's virtual bounds.
func (s *Session) RequestShowSuggestionArea(id model.FieldID, wp WindowPresenter) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.removed {
		return
	}
	var bounds *model.Rect
	if s.active != nil {
		bounds = s.active.bounds
	}
	surface := s.surface
	windowRef := s.windowRef
	token := s.token
	s.registry.postLocked(func() {
		if err := surface.RequestShowSuggestions(windowRef, id, bounds, wp); err != nil {
			diagf("session %s: request show suggestions: %v", token, err)
		}
	})
}

func (s *Session) RequestHideSuggestionArea(id model.FieldID) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.removed {
		return
	}
	surface := s.surface
	windowRef := s.windowRef
	token := s.token
	s.registry.postLocked(func() {
		if err := surface.RequestHideSuggestions(windowRef, id); err != nil {
			diagf("session %s: request hide suggestions: %v", token, err)
		}
	})
}

// postHideSuggestions asks the presenter to drop its suggestion surface for
// the field; the presenter relays the window teardown to the host surface
// through RequestHideSuggestionArea.
func (s *Session) postHideSuggestions(id model.FieldID) {
	ui := s.registry.ui
	s.registry.postLocked(func() { ui.HideSuggestions(id) })
}

// removeSelfLocked tears the session down and removes it from the registry.
// Idempotent and safe to call re-entrantly from any handler under the lock.
func (s *Session) removeSelfLocked() {
	if s.removed {
		return
	}
	s.removed = true
	s.destroyLocked()
	delete(s.registry.sessions, s.token)
}

func (s *Session) destroyLocked() {
	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
	}
	provider := s.provider
	ui := s.registry.ui
	s.registry.postLocked(func() {
		ui.SetCallback(nil)
		provider.Destroy()
	})
}

func (s *Session) infoLocked() model.SessionInfo {
	info := model.SessionInfo{
		Token:       s.token,
		OwnerLabel:  s.ownerLabel,
		FieldCount:  len(s.fields),
		HasResponse: s.response != nil,
		HasTree:     s.tree != nil,
		Filled:      s.applied != nil,
		SavePending: s.savePending,
		Flags:       s.flags.String(),
	}
	if s.active != nil {
		info.ActiveField = s.active.id
	}
	return info
}
