package fieldtree

import (
	"testing"

	"github.com/fillmgr/fillmgr/internal/model"
)

func sampleTree() *Tree {
	return &Tree{Roots: []*Node{
		{
			ID: "root",
			Children: []*Node{
				{ID: "form", Children: []*Node{
					{ID: "user", Value: model.TextValue("alice")},
					{ID: "pass", Value: model.TextValue("")},
				}},
				{ID: "footer"},
			},
		},
	}}
}

func TestFindByID(t *testing.T) {
	tree := sampleTree()
	if n := tree.FindByID("pass"); n == nil {
		t.Fatalf("expected to find nested node")
	}
	if n := tree.FindByID("root"); n == nil {
		t.Fatalf("expected to find root node")
	}
	if n := tree.FindByID("missing"); n != nil {
		t.Fatalf("expected nil for unknown id, got %v", n.ID)
	}
	var nilTree *Tree
	if n := nilTree.FindByID("user"); n != nil {
		t.Fatalf("nil tree finds nothing")
	}
}

func TestSetValue(t *testing.T) {
	tree := sampleTree()
	if !tree.SetValue("pass", model.TextValue("hunter2")) {
		t.Fatalf("expected write to known node")
	}
	if v, ok := tree.OriginalValue("pass"); !ok || v.Text != "hunter2" {
		t.Fatalf("expected written value, got %v ok=%v", v, ok)
	}
	if tree.SetValue("missing", model.TextValue("x")) {
		t.Fatalf("write to unknown node should report false")
	}
}

func TestOriginalValue(t *testing.T) {
	tree := sampleTree()
	if v, ok := tree.OriginalValue("user"); !ok || v.Text != "alice" {
		t.Fatalf("expected captured value, got %v ok=%v", v, ok)
	}
	if _, ok := tree.OriginalValue("missing"); ok {
		t.Fatalf("unknown id should not resolve")
	}
}
