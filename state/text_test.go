package state

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/oplog"
)

func insertText(t *testing.T, ar *arena.Arena, text *Text, counter int, pos int, s string) {
	t.Helper()
	left, hasLeft, right, hasRight := text.OriginsAt(pos)
	tr := ar.InternText([]byte(s))
	op := oplog.Op{Counter: counter, Content: oplog.TextInsert{
		Text: tr, OriginLeft: left, HasLeft: hasLeft, OriginRight: right, HasRight: hasRight,
	}}
	if _, err := text.ApplyLocal(1, 0, op); err != nil {
		t.Fatalf("insert %q at %d: %v", s, pos, err)
	}
}

// anchorBefore mirrors handles.go's helper of the same purpose: the byte
// immediately before pos, or no anchor at pos 0.
func anchorBefore(text *Text, pos int) (id.ID, bool) {
	if pos <= 0 {
		return id.ID{}, false
	}
	return text.IDAt(pos - 1)
}

func TestTextInsertAtInteriorByteOfMultiByteRun(t *testing.T) {
	ar := arena.New()
	idx := ar.RegisterContainer(arena.RootContainerID("t", arena.KindText))
	text := NewText(idx, ar)

	insertText(t, ar, text, 0, 0, "hello")
	insertText(t, ar, text, 5, 2, "XX")

	got := text.Value(ar).(TextValue).Text
	if got != "heXXllo" {
		t.Fatalf("Text = %q, want %q", got, "heXXllo")
	}

	target, ok := text.IDAt(2)
	if !ok {
		t.Fatalf("IDAt(2) not found")
	}
	delOp := oplog.Op{Counter: 7, Content: oplog.TextDelete{Target: target, Len: 1}}
	if _, err := text.ApplyLocal(1, 0, delOp); err != nil {
		t.Fatalf("delete interior byte: %v", err)
	}
	if got := text.Value(ar).(TextValue).Text; got != "heXllo" {
		t.Fatalf("Text after delete = %q, want %q", got, "heXllo")
	}
}

func TestTextMarkAnchorsToRealByteNotSelfID(t *testing.T) {
	ar := arena.New()
	idx := ar.RegisterContainer(arena.RootContainerID("t", arena.KindText))
	text := NewText(idx, ar)
	insertText(t, ar, text, 0, 0, "hello world")

	startAnchor, hasStart := anchorBefore(text, 0)
	endAnchor, hasEnd := anchorBefore(text, 5)
	if !hasEnd {
		t.Fatalf("anchorBefore(5) not found")
	}

	markOp := oplog.Op{Counter: 100, Content: oplog.TextMark{
		Key: "bold", Value: arena.Value{Kind: arena.ValueBool, Bool: true}, Expand: oplog.ExpandNone,
		Anchor: startAnchor, HasAnchor: hasStart,
	}}
	inv, err := text.ApplyLocal(1, 0, markOp)
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	startID := inv.(oplog.TextMarkEnd).StartID

	endOp := oplog.Op{Counter: 101, Content: oplog.TextMarkEnd{
		Key: "bold", StartID: startID, Anchor: endAnchor, HasAnchor: true,
	}}
	if _, err := text.ApplyLocal(1, 0, endOp); err != nil {
		t.Fatalf("mark end: %v", err)
	}

	v := text.Value(ar).(TextValue)
	if len(v.Styles) != 1 {
		t.Fatalf("Styles = %+v, want one span", v.Styles)
	}
	span := v.Styles[0]
	if span.StartPos != 0 || !span.HasEnd || span.EndPos != 5 {
		t.Fatalf("span = %+v, want StartPos=0 EndPos=5", span)
	}
}

func TestTextMarkExpandAfterIncludesInsertAtEndBoundary(t *testing.T) {
	ar := arena.New()
	idx := ar.RegisterContainer(arena.RootContainerID("t", arena.KindText))
	text := NewText(idx, ar)
	insertText(t, ar, text, 0, 0, "hello")

	endAnchor, hasEnd := anchorBefore(text, 5)
	if !hasEnd {
		t.Fatalf("anchorBefore(5) not found")
	}
	markOp := oplog.Op{Counter: 100, Content: oplog.TextMark{
		Key: "bold", Value: arena.Value{Kind: arena.ValueBool, Bool: true}, Expand: oplog.ExpandAfter,
	}}
	inv, err := text.ApplyLocal(1, 0, markOp)
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	startID := inv.(oplog.TextMarkEnd).StartID
	endOp := oplog.Op{Counter: 101, Content: oplog.TextMarkEnd{Key: "bold", StartID: startID, Anchor: endAnchor, HasAnchor: true}}
	if _, err := text.ApplyLocal(1, 0, endOp); err != nil {
		t.Fatalf("mark end: %v", err)
	}

	insertText(t, ar, text, 102, 5, "!")

	v := text.Value(ar).(TextValue)
	if got := v.Text; got != "hello!" {
		t.Fatalf("Text = %q, want %q", got, "hello!")
	}
	if len(v.Styles) != 1 {
		t.Fatalf("Styles = %+v, want one span", v.Styles)
	}
	span := v.Styles[0]
	if !span.HasEnd || span.EndPos != 6 {
		t.Fatalf("span = %+v, want EndPos=6 (covering the '!')", span)
	}
}
