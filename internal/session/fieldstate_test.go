package session

import (
	"testing"

	"github.com/fillmgr/fillmgr/internal/model"
)

type readyRecorder struct {
	fires  int
	lastID model.FieldID
	lastV  model.Value
}

func (r *readyRecorder) onFillReady(resp *model.FillResponse, id model.FieldID, value model.Value) {
	r.fires++
	r.lastID = id
	r.lastV = value
}

func TestFieldStateFiresOnlyWithActionableResponse(t *testing.T) {
	rec := &readyRecorder{}
	st := newFieldState("user", rec)

	v := model.TextValue("al")
	st.update(&v, nil)
	if rec.fires != 0 {
		t.Fatalf("fired with no response")
	}

	st.attachResponse(&model.FillResponse{}, nil)
	if rec.fires != 0 {
		t.Fatalf("fired with an empty response")
	}

	st.attachResponse(&model.FillResponse{Datasets: []*model.Dataset{{Name: "d"}}}, nil)
	if rec.fires != 1 {
		t.Fatalf("fires = %d, want 1", rec.fires)
	}
	if rec.lastID != "user" || !rec.lastV.Equal(v) {
		t.Fatalf("fired with id=%s value=%v", rec.lastID, rec.lastV)
	}
}

func TestFieldStateUpdateMergesWithoutClearing(t *testing.T) {
	st := newFieldState("user", &readyRecorder{})

	v := model.TextValue("al")
	b := &model.Rect{Right: 10, Bottom: 5}
	st.update(&v, b)
	st.update(nil, nil)

	if !st.value.Equal(v) {
		t.Fatalf("value cleared: %v", st.value)
	}
	if st.bounds != b {
		t.Fatalf("bounds cleared")
	}
}

func TestFieldStateAuthRequestNotClearedByReattach(t *testing.T) {
	st := newFieldState("user", &readyRecorder{})
	resp := &model.FillResponse{Auth: &model.AuthChallenge{Ref: "x"}}
	req := &AuthRequest{}

	st.attachResponse(resp, req)
	st.attachResponse(resp, nil)
	if st.authReq != req {
		t.Fatalf("auth request dropped on re-attach")
	}
}
