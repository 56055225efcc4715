package listener

import (
	"sync"

	"github.com/phcnguyen/Nalix/conn"
	"github.com/phcnguyen/Nalix/packet"
)

// ActionKind discriminates the three outcomes a Handler may return.
type ActionKind int

const (
	// ActionNoReply dispatches no response; the connection stays Open.
	ActionNoReply ActionKind = iota
	// ActionReply encodes and sends Action.Packet back to the peer.
	ActionReply
	// ActionClose closes the connection after any reply is sent, with
	// Action.Reason recorded as the disconnect reason.
	ActionClose
)

// Action is what a Handler returns after processing one Packet.
type Action struct {
	Kind   ActionKind
	Packet *packet.Packet
	Reason conn.DisconnectReason
}

// NoReply is the zero-cost action: dispatch nothing, keep the
// connection open.
func NoReply() Action { return Action{Kind: ActionNoReply} }

// Reply sends p back to the peer on the same connection.
func Reply(p *packet.Packet) Action { return Action{Kind: ActionReply, Packet: p} }

// Close sends no reply and closes the connection with reason.
func Close(reason conn.DisconnectReason) Action {
	return Action{Kind: ActionClose, Reason: reason}
}

// ReplyAndClose sends p, then closes the connection with reason.
func ReplyAndClose(p *packet.Packet, reason conn.DisconnectReason) Action {
	return Action{Kind: ActionClose, Packet: p, Reason: reason}
}

// Handler processes one decoded Packet for c and decides the outcome.
// c is borrowed for the duration of this call only; a Handler must not
// retain it afterward.
type Handler func(c *conn.Connection, p *packet.Packet) Action

// HandlerRegistry maps opcodes to Handlers. It is write-once: Register
// fails with ErrRegistryLocked once the registry has been frozen (the
// listener freezes its registry at Start), matching the "write-once,
// read-only at runtime" discipline applied elsewhere in this module.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[uint16]Handler
	locked   bool
}

// NewHandlerRegistry creates an empty, unlocked registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[uint16]Handler)}
}

// Register binds h to opcode. Registering a second handler for the
// same opcode, or registering after Freeze, fails.
func (r *HandlerRegistry) Register(opcode uint16, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked {
		return ErrRegistryLocked
	}
	if _, exists := r.handlers[opcode]; exists {
		return ErrDuplicateHandler
	}
	r.handlers[opcode] = h
	return nil
}

// Freeze locks the registry against further Register calls. Called by
// Listener.Start.
func (r *HandlerRegistry) Freeze() {
	r.mu.Lock()
	r.locked = true
	r.mu.Unlock()
}

// Lookup returns the handler bound to opcode, if any.
func (r *HandlerRegistry) Lookup(opcode uint16) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[opcode]
	return h, ok
}
