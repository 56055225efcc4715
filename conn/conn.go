// Package conn implements the per-client connection state machine: a
// monotone Open -> Closing -> Closed lifecycle, a serialized send path
// backed by a bounded tx queue, and the observable event hooks the
// listener wires handlers against.
//
// A Connection is owned exclusively by the listener that accepted it.
// Handlers are handed a Connection for the duration of one dispatch
// call and must not retain it past that call.
package conn

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/phcnguyen/Nalix/packet"
)

// State is one point in a Connection's monotone lifecycle.
type State int32

const (
	// Open accepts reads and writes.
	Open State = iota
	// Closing flushes its tx queue but accepts no new sends.
	Closing
	// Closed is terminal.
	Closed
)

// String renders State for logging.
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Cipher is the opaque encryption capability a Connection may be bound
// to. The core never inspects a Cipher's internals; key rotation, if
// any, is the handler layer's responsibility via SetCipher.
type Cipher interface {
	Encrypt([]byte) ([]byte, error)
	Decrypt([]byte) ([]byte, error)
}

// DisconnectReason explains why a Connection left the Open state.
type DisconnectReason int

const (
	ReasonClosedByPeer DisconnectReason = iota
	ReasonClosedByHandler
	ReasonFramingError
	ReasonIdleTimeout
	ReasonBackpressure
	ReasonShutdown
)

// String renders DisconnectReason for logging.
func (r DisconnectReason) String() string {
	switch r {
	case ReasonClosedByPeer:
		return "peer-eof"
	case ReasonClosedByHandler:
		return "handler-close"
	case ReasonFramingError:
		return "framing-error"
	case ReasonIdleTimeout:
		return "idle-timeout"
	case ReasonBackpressure:
		return "backpressure"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// ViolationKind discriminates a protocol_violation event.
type ViolationKind int

const (
	ViolationShortFrame ViolationKind = iota
	ViolationOversize
	ViolationIntegrity
	ViolationUnknownOpcode
)

// Hooks are the observable events a listener wires a Connection to.
// Every field is optional; nil hooks are simply not called. Hooks are
// set once at construction and never mutated afterward.
type Hooks struct {
	OnConnected         func(*Connection)
	OnDisconnected      func(*Connection, DisconnectReason)
	OnPacketReceived    func(*Connection, *packet.Packet)
	OnProtocolViolation func(*Connection, ViolationKind)
}

// Connection is per-client state owned exclusively by the listener for
// its lifetime. Handlers borrow it via the dispatch call and must not
// retain a reference beyond that call's return.
type Connection struct {
	ID            string
	RemoteAddress string

	conn  net.Conn
	codec *packet.Codec
	hooks Hooks

	cipherMu sync.RWMutex
	cipher   Cipher

	state atomic.Int32

	lastActivityMS atomic.Int64

	txQueue chan *packet.Packet
	txDone  chan struct{}

	closeOnce sync.Once
}

// New wraps an accepted net.Conn as a Connection in the Open state.
// txCapacity bounds the tx queue (see listener backpressure).
func New(netConn net.Conn, codec *packet.Codec, txCapacity int, hooks Hooks) *Connection {
	if txCapacity <= 0 {
		txCapacity = 1
	}
	c := &Connection{
		ID:            xid.New().String(),
		RemoteAddress: netConn.RemoteAddr().String(),
		conn:          netConn,
		codec:         codec,
		hooks:         hooks,
		txQueue:       make(chan *packet.Packet, txCapacity),
		txDone:        make(chan struct{}),
	}
	c.state.Store(int32(Open))
	c.Touch()
	return c
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// casState performs a monotone compare-and-swap: a transition only
// succeeds if to is strictly later than the current state in the
// Open -> Closing -> Closed order.
func (c *Connection) casState(to State) bool {
	for {
		cur := State(c.state.Load())
		if to <= cur {
			return false
		}
		if c.state.CompareAndSwap(int32(cur), int32(to)) {
			return true
		}
	}
}

// Touch records activity now, resetting the idle-timeout clock.
func (c *Connection) Touch() {
	c.lastActivityMS.Store(time.Now().UnixMilli())
}

// IdleFor reports how long it has been since the last recorded
// activity.
func (c *Connection) IdleFor() time.Duration {
	last := c.lastActivityMS.Load()
	return time.Since(time.UnixMilli(last))
}

// SetCipher binds (or rebinds) the connection's opaque cipher
// capability. The core never inspects the cipher; rotation semantics
// belong entirely to the caller.
func (c *Connection) SetCipher(cipher Cipher) {
	c.cipherMu.Lock()
	c.cipher = cipher
	c.cipherMu.Unlock()
}

// Cipher returns the connection's currently bound cipher, or nil if
// none is set.
func (c *Connection) Cipher() Cipher {
	c.cipherMu.RLock()
	defer c.cipherMu.RUnlock()
	return c.cipher
}

// Send enqueues p for delivery on the tx queue. It fails ErrClosed if
// the connection is not Open. Send is safe for concurrent use; wire
// order equals enqueue order because the queue is a single channel
// drained by one writer goroutine.
func (c *Connection) Send(p *packet.Packet) error {
	if c.State() != Open {
		return ErrClosed
	}
	select {
	case c.txQueue <- p:
		return nil
	default:
		return ErrQueueFull
	}
}

// TxQueue exposes the tx channel for the listener's writer goroutine to
// drain. Not intended for handler use.
func (c *Connection) TxQueue() <-chan *packet.Packet {
	return c.txQueue
}

// TxLen reports the tx queue's current depth, consulted by the
// listener's backpressure controller.
func (c *Connection) TxLen() int {
	return len(c.txQueue)
}

// NetConn exposes the underlying net.Conn for the listener's read/write
// goroutines. Not intended for handler use.
func (c *Connection) NetConn() net.Conn {
	return c.conn
}

// BeginClosing transitions Open -> Closing. It is idempotent: calling
// it again (or calling it once already Closing/Closed) is a no-op.
// reason is forwarded to the disconnected hook as part of this
// Open -> Closing transition, before Finish moves it to Closed.
func (c *Connection) BeginClosing(reason DisconnectReason) {
	if !c.casState(Closing) {
		return
	}
	close(c.txDone)
	if c.hooks.OnDisconnected != nil {
		c.hooks.OnDisconnected(c, reason)
	}
}

// Finish transitions Closing -> Closed and closes the underlying
// socket. Idempotent.
func (c *Connection) Finish() {
	c.closeOnce.Do(func() {
		c.casState(Closed)
		_ = c.conn.Close()
	})
}

// Close requests an orderly shutdown: it transitions Open -> Closing
// and stops accepting new sends. It does not tear down the underlying
// socket itself — the owning listener's receive loop observes the
// transition (via Done, or the OnDisconnected hook it installed) and
// calls Finish once its own read and write goroutines have wound down,
// so a reply already enqueued before Close has a chance to flush.
// Safe to call more than once from any goroutine.
func (c *Connection) Close(reason DisconnectReason) error {
	c.BeginClosing(reason)
	return nil
}

// Done reports the channel closed when BeginClosing runs, letting the
// listener's writer goroutine notice a close request without polling
// State.
func (c *Connection) Done() <-chan struct{} {
	return c.txDone
}

// FireConnected invokes the connected hook. Called by the listener once
// admission has passed and the Connection has been constructed.
func (c *Connection) FireConnected() {
	if c.hooks.OnConnected != nil {
		c.hooks.OnConnected(c)
	}
}

// FirePacketReceived invokes the packet_received hook.
func (c *Connection) FirePacketReceived(p *packet.Packet) {
	if c.hooks.OnPacketReceived != nil {
		c.hooks.OnPacketReceived(c, p)
	}
}

// FireProtocolViolation invokes the protocol_violation hook.
func (c *Connection) FireProtocolViolation(kind ViolationKind) {
	if c.hooks.OnProtocolViolation != nil {
		c.hooks.OnProtocolViolation(c, kind)
	}
}
