package conn

import (
	"net"
	"testing"
	"time"

	"github.com/phcnguyen/Nalix/arena"
	"github.com/phcnguyen/Nalix/packet"
)

func testCodec(t *testing.T) *packet.Codec {
	t.Helper()
	a := arena.New(1024, time.Hour)
	t.Cleanup(a.Close)
	return packet.NewCodec(a, packet.DefaultMaxPacketSize)
}

func newTestConnection(t *testing.T, hooks Hooks) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	c := New(server, testCodec(t), 4, hooks)
	return c, client
}

func TestNew_StartsOpen(t *testing.T) {
	c, _ := newTestConnection(t, Hooks{})
	if c.State() != Open {
		t.Fatalf("State() = %v, want Open", c.State())
	}
	if c.ID == "" {
		t.Fatal("ID must be non-empty")
	}
}

func TestState_MonotoneTransitions(t *testing.T) {
	c, _ := newTestConnection(t, Hooks{})

	c.BeginClosing(ReasonClosedByPeer)
	if c.State() != Closing {
		t.Fatalf("State() = %v, want Closing", c.State())
	}

	// Attempting to go back to Open must fail silently.
	if c.casState(Open) {
		t.Fatal("casState(Open) succeeded from Closing, want rejected")
	}
	if c.State() != Closing {
		t.Fatalf("State() = %v after rejected backward transition, want Closing", c.State())
	}

	c.Finish()
	if c.State() != Closed {
		t.Fatalf("State() = %v, want Closed", c.State())
	}

	// Closed must never transition anywhere else.
	if c.casState(Open) || c.casState(Closing) {
		t.Fatal("transition out of Closed succeeded, want rejected")
	}
}

func TestBeginClosing_Idempotent(t *testing.T) {
	c, _ := newTestConnection(t, Hooks{})

	var calls int
	c.hooks.OnDisconnected = func(*Connection, DisconnectReason) { calls++ }

	c.BeginClosing(ReasonClosedByPeer)
	c.BeginClosing(ReasonShutdown)

	if calls != 1 {
		t.Fatalf("OnDisconnected called %d times, want 1", calls)
	}
}

func TestSend_FailsWhenNotOpen(t *testing.T) {
	c, _ := newTestConnection(t, Hooks{})
	c.Close(ReasonShutdown)

	p := &packet.Packet{}
	if err := c.Send(p); err != ErrClosed {
		t.Fatalf("Send() = %v, want ErrClosed", err)
	}
}

func TestSend_QueueFull(t *testing.T) {
	c, _ := newTestConnection(t, Hooks{})

	for i := 0; i < 4; i++ {
		if err := c.Send(&packet.Packet{}); err != nil {
			t.Fatalf("Send() #%d = %v, want nil", i, err)
		}
	}
	if err := c.Send(&packet.Packet{}); err != ErrQueueFull {
		t.Fatalf("Send() on full queue = %v, want ErrQueueFull", err)
	}
}

func TestTouch_UpdatesIdleClock(t *testing.T) {
	c, _ := newTestConnection(t, Hooks{})
	time.Sleep(5 * time.Millisecond)
	first := c.IdleFor()
	c.Touch()
	if c.IdleFor() >= first {
		t.Fatalf("IdleFor() did not shrink after Touch")
	}
}

func TestCipher_SetAndGet(t *testing.T) {
	c, _ := newTestConnection(t, Hooks{})
	if c.Cipher() != nil {
		t.Fatal("Cipher() on fresh connection must be nil")
	}

	cipher := stubCipher{}
	c.SetCipher(cipher)
	if c.Cipher() != cipher {
		t.Fatal("Cipher() did not return the bound cipher")
	}
}

func TestHooks_FireOnce(t *testing.T) {
	var connected, violated int
	hooks := Hooks{
		OnConnected:         func(*Connection) { connected++ },
		OnProtocolViolation: func(*Connection, ViolationKind) { violated++ },
	}
	c, _ := newTestConnection(t, hooks)

	c.FireConnected()
	c.FireProtocolViolation(ViolationIntegrity)

	if connected != 1 || violated != 1 {
		t.Fatalf("connected=%d violated=%d, want 1,1", connected, violated)
	}
}

type stubCipher struct{}

func (stubCipher) Encrypt(b []byte) ([]byte, error) { return b, nil }
func (stubCipher) Decrypt(b []byte) ([]byte, error) { return b, nil }
