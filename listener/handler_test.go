package listener

import (
	"testing"

	"github.com/phcnguyen/Nalix/conn"
	"github.com/phcnguyen/Nalix/packet"
)

func TestHandlerRegistry_RegisterAndLookup(t *testing.T) {
	r := NewHandlerRegistry()

	called := false
	h := func(*conn.Connection, *packet.Packet) Action {
		called = true
		return NoReply()
	}

	if err := r.Register(0x0001, h); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, ok := r.Lookup(0x0001)
	if !ok {
		t.Fatal("Lookup() ok = false, want true")
	}
	got(nil, nil)
	if !called {
		t.Fatal("looked-up handler did not invoke the registered function")
	}

	if _, ok := r.Lookup(0x0002); ok {
		t.Fatal("Lookup() for unregistered opcode ok = true, want false")
	}
}

func TestHandlerRegistry_DuplicateRejected(t *testing.T) {
	r := NewHandlerRegistry()
	h := func(*conn.Connection, *packet.Packet) Action { return NoReply() }

	if err := r.Register(1, h); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if err := r.Register(1, h); err != ErrDuplicateHandler {
		t.Fatalf("second Register() error = %v, want ErrDuplicateHandler", err)
	}
}

func TestHandlerRegistry_LockedAfterFreeze(t *testing.T) {
	r := NewHandlerRegistry()
	r.Freeze()

	h := func(*conn.Connection, *packet.Packet) Action { return NoReply() }
	if err := r.Register(1, h); err != ErrRegistryLocked {
		t.Fatalf("Register() after Freeze error = %v, want ErrRegistryLocked", err)
	}
}
