package session

import (
	"github.com/fillmgr/fillmgr/internal/fieldtree"
	"github.com/fillmgr/fillmgr/internal/model"
)

// AuthRequest carries the context handed to the host surface alongside an
// authentication challenge: the captured field tree and any provider extras,
// so the unlocked result can be produced against the same screen state.
type AuthRequest struct {
	Tree   *fieldtree.Tree
	Extras map[string]string
}

// WindowPresenter is the presentation layer's positioning handle for the
// suggestion window. The core relays it to the host surface untouched.
type WindowPresenter any

// ProviderTransport is the binding to the remote autofill provider. Both
// calls are asynchronous; exactly one terminal callback is delivered per
// call on an arbitrary goroutine.
type ProviderTransport interface {
	RequestFill(tree *fieldtree.Tree, extras map[string]string, flags model.UpdateFlags)
	RequestSave(tree *fieldtree.Tree, extras map[string]string)
	// Destroy releases the binding. Idempotent.
	Destroy()
}

// ProviderCallbacks receives the provider's terminal responses. Implemented
// by Session; callers may invoke these from any goroutine.
type ProviderCallbacks interface {
	OnFillRequestSuccess(resp *model.FillResponse)
	OnFillRequestFailure(message string)
	OnSaveRequestSuccess()
	OnSaveRequestFailure(message string)
}

// ProviderFactory binds a provider transport for one session. It is invoked
// under the registry lock and must not block.
type ProviderFactory func(cb ProviderCallbacks) ProviderTransport

// Presenter is the suggestion/save UI surface. All calls are dispatched on
// the registry's serial queue, never under the registry lock.
type Presenter interface {
	ShowSuggestions(id model.FieldID, resp *model.FillResponse, filterText string, ownerLabel string)
	HideSuggestions(id model.FieldID)
	// FilterSuggestions narrows the visible suggestion list; nil clears the
	// filter (non-text input).
	FilterSuggestions(text *string)
	ShowSaveDialog(providerLabel string, spec *model.SaveSpec, ownerLabel string)
	ShowError(message string)
	// SetCallback routes user choices back to the given session; nil detaches.
	SetCallback(cb PresenterCallbacks)
}

// PresenterCallbacks is how the presentation layer calls back into the core.
// Implemented by Session; callers may invoke these from any goroutine.
type PresenterCallbacks interface {
	OnDatasetChosen(d *model.Dataset)
	OnSaveConfirmed()
	OnSaveCancelled()
	RequestShowSuggestionArea(id model.FieldID, wp WindowPresenter)
	RequestHideSuggestionArea(id model.FieldID)
}

// StateClient receives enablement broadcasts. Delivery is fire-and-forget;
// a failing client is not retried.
type StateClient interface {
	SetEnabled(enabled bool) error
}

// Surface is the per-session channel back to the host screen.
type Surface interface {
	StateClient
	RequestShowSuggestions(windowRef string, id model.FieldID, bounds *model.Rect, wp WindowPresenter) error
	RequestHideSuggestions(windowRef string, id model.FieldID) error
	NotifyNoSuggestions(windowRef string, id model.FieldID) error
	ApplyValues(windowRef string, ids []model.FieldID, values []model.Value) error
	StartAuthentication(challenge *model.AuthChallenge, req *AuthRequest) error
	// WatchDisconnect registers a loss-of-channel callback and returns an
	// unwatch function. Loss of the channel cancels the owning session.
	WatchDisconnect(onGone func()) (unwatch func(), err error)
}

// TreeCapturer requests the screen's field tree. The capture is delivered
// out-of-band through Registry.DeliverTree, keyed by the same token.
type TreeCapturer interface {
	RequestCapture(token string) error
}
