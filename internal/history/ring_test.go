package history

import (
	"strings"
	"testing"
)

func TestLogAppendFillsDefaults(t *testing.T) {
	l := NewLog(4)
	e := l.Append(Entry{Token: "tok-1", ProviderID: "prov", UserID: 3})
	if e.ID == "" {
		t.Fatalf("expected generated id")
	}
	if e.At.IsZero() {
		t.Fatalf("expected generated timestamp")
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}
}

func TestLogEvictsOldest(t *testing.T) {
	l := NewLog(2)
	l.Append(Entry{Token: "a"})
	l.Append(Entry{Token: "b"})
	l.Append(Entry{Token: "c"})

	got := l.Recent(0)
	if len(got) != 2 {
		t.Fatalf("recent len = %d, want 2", len(got))
	}
	if got[0].Token != "c" || got[1].Token != "b" {
		t.Fatalf("recent order = %s, %s; want c, b", got[0].Token, got[1].Token)
	}
}

func TestLogRecentLimit(t *testing.T) {
	l := NewLog(8)
	for _, tok := range []string{"a", "b", "c"} {
		l.Append(Entry{Token: tok})
	}
	got := l.Recent(1)
	if len(got) != 1 || got[0].Token != "c" {
		t.Fatalf("recent(1) = %+v, want single entry c", got)
	}
}

func TestEntryLine(t *testing.T) {
	e := Entry{
		Token:       "tok-9",
		UserID:      10,
		ProviderID:  "acme",
		FieldID:     "field-1",
		Bounds:      "[0,0-10,10]",
		HasCallback: true,
		Flags:       "start_session",
	}
	line := e.Line()
	for _, want := range []string{"s=tok-9", "u=10", "a=acme", "i=field-1", "b=[0,0-10,10]", "hc=true", "f=start_session"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
}
