package state

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/arena"
	"github.com/loro-dev/loro-go/oplog"
)

func TestUnknownContainerKeepsBlobsVerbatim(t *testing.T) {
	idx := arena.New().RegisterContainer(arena.RootContainerID("future", arena.ContainerKind(99)))
	u := NewUnknown(idx, 99)

	op1 := oplog.Op{Counter: 0, Content: oplog.Unknown{RawKind: 99, Payload: []byte("a")}}
	op2 := oplog.Op{Counter: 1, Content: oplog.Unknown{RawKind: 99, Payload: []byte("b")}}
	if _, err := u.ApplyLocal(1, 0, op1); err != nil {
		t.Fatalf("apply 1: %v", err)
	}
	if err := u.ApplyRemote(1, 1, op2, CausalContext{}); err != nil {
		t.Fatalf("apply 2: %v", err)
	}

	blobs := u.Value(nil).([]oplog.Unknown)
	if len(blobs) != 2 || string(blobs[0].Payload) != "a" || string(blobs[1].Payload) != "b" {
		t.Fatalf("Value() = %+v, want [a b] in order", blobs)
	}
	if u.Kind() != arena.KindUnknown {
		t.Fatalf("Kind() = %v, want KindUnknown", u.Kind())
	}
}
