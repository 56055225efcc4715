// Package listener binds a TCP endpoint, runs the accept loop, applies
// IP admission control to every incoming connection, and dispatches
// framed packets to opcode-registered handlers, enforcing backpressure
// and a bounded idle timeout per connection.
package listener

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/phcnguyen/Nalix/admission"
	"github.com/phcnguyen/Nalix/conn"
	"github.com/phcnguyen/Nalix/metrics"
	"github.com/phcnguyen/Nalix/netstream"
	"github.com/phcnguyen/Nalix/packet"
)

// Config controls accept-loop, backpressure, and idle-timeout policy.
type Config struct {
	// Bind is the local TCP endpoint, e.g. ":9000".
	Bind string

	// MaxConnections bounds concurrently Open connections; zero means
	// unbounded.
	MaxConnections int

	// IdleTimeout closes a connection that has delivered no complete,
	// valid frame for this long. Bytes of a partially received frame, or
	// of a frame dropped for a checksum mismatch, do not reset the idle
	// clock. Zero disables idle timeout.
	IdleTimeout time.Duration

	// TxHighWater is the tx queue depth above which the read loop pauses.
	TxHighWater int

	// TxLowWater is the tx queue depth at which a paused read loop
	// resumes.
	TxLowWater int

	// TxCapacity bounds each connection's tx channel. Defaults to
	// TxHighWater*2+1 when unset.
	TxCapacity int

	// BackpressureDrainTimeout bounds how long the read loop waits for
	// the tx queue to drain back to TxLowWater before giving up and
	// closing the connection with ReasonBackpressure.
	BackpressureDrainTimeout time.Duration

	// ShutdownDeadline bounds how long Stop waits for in-flight
	// connections to finish before forcing them Closed.
	ShutdownDeadline time.Duration
}

const (
	defaultBackpressureDrainTimeout = 5 * time.Second
	defaultShutdownDeadline         = 10 * time.Second
	backpressurePollInterval        = 20 * time.Millisecond
	idleCheckInterval               = time.Second
)

func (c *Config) setDefaults() {
	if c.BackpressureDrainTimeout <= 0 {
		c.BackpressureDrainTimeout = defaultBackpressureDrainTimeout
	}
	if c.ShutdownDeadline <= 0 {
		c.ShutdownDeadline = defaultShutdownDeadline
	}
	if c.TxCapacity <= 0 {
		c.TxCapacity = c.TxHighWater*2 + 1
	}
}

// session is the listener's bookkeeping for one active connection: the
// Connection itself, the cancel func that aborts its read loop, and the
// reason that cancellation should be attributed to once the read loop
// observes it.
type session struct {
	c      *conn.Connection
	cancel context.CancelFunc
	reason atomic.Int32
}

const reasonUnset int32 = -1

// Listener accepts TCP connections, admits them, and dispatches framed
// packets by opcode.
type Listener struct {
	cfg       Config
	codec     *packet.Codec
	admission *admission.Store
	registry  *HandlerRegistry
	metrics   *metrics.Collector

	ln net.Listener

	wg      sync.WaitGroup
	conns   sync.Map // string -> *session
	active  atomic.Int64
	started atomic.Bool

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New constructs a Listener. metricsCollector may be nil.
func New(cfg Config, codec *packet.Codec, store *admission.Store, registry *HandlerRegistry, metricsCollector *metrics.Collector) *Listener {
	cfg.setDefaults()
	return &Listener{
		cfg:       cfg,
		codec:     codec,
		admission: store,
		registry:  registry,
		metrics:   metricsCollector,
		shutdown:  make(chan struct{}),
	}
}

// Start binds the configured endpoint and begins accepting connections
// in a background goroutine. It freezes the handler registry and the
// admission store's criterion chain; registering either after Start
// fails.
func (l *Listener) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", l.cfg.Bind)
	if err != nil {
		return err
	}
	l.ln = ln

	l.registry.Freeze()
	l.admission.Start()

	l.wg.Add(1)
	go l.acceptLoop(ctx)

	log.Info().Str("bind", l.cfg.Bind).Msg("listener: started")
	return nil
}

// Addr returns the bound local address. Valid only after Start returns
// successfully.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// ActiveConnections reports the number of connections currently Open.
func (l *Listener) ActiveConnections() int64 {
	return l.active.Load()
}

func (l *Listener) acceptLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		netConn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("listener: accept error")
			continue
		}

		if l.cfg.MaxConnections > 0 && l.active.Load() >= int64(l.cfg.MaxConnections) {
			_ = netConn.Close()
			continue
		}

		host := hostOf(netConn.RemoteAddr())
		if err := l.admission.Check(ctx, host); err != nil {
			if l.metrics != nil {
				l.metrics.IncAdmissionRejected()
			}
			_ = netConn.Close()
			continue
		}

		l.wg.Add(1)
		go l.serve(ctx, netConn)
	}
}

func (l *Listener) serve(ctx context.Context, netConn net.Conn) {
	defer l.wg.Done()

	connCtx, cancel := context.WithCancel(ctx)
	sess := &session{cancel: cancel}
	sess.reason.Store(reasonUnset)

	hooks := conn.Hooks{
		OnProtocolViolation: func(c *conn.Connection, kind conn.ViolationKind) {
			log.Warn().Str("conn", c.ID).Int("kind", int(kind)).Msg("listener: protocol violation")
		},
		OnDisconnected: func(c *conn.Connection, reason conn.DisconnectReason) {
			log.Debug().Str("conn", c.ID).Str("reason", reason.String()).Msg("listener: disconnected")
			// A handler-requested Close reaches BeginClosing directly,
			// bypassing the read loop; cancel its context here so a
			// blocked reader.Next wakes up instead of waiting for the
			// peer. Listener-initiated closes (idle/backpressure/
			// shutdown) already hold this reason before cancelling,
			// so this CompareAndSwap is a no-op for them.
			sess.reason.CompareAndSwap(reasonUnset, int32(reason))
			sess.cancel()
		},
	}

	c := conn.New(netConn, l.codec, l.cfg.TxCapacity, hooks)
	sess.c = c

	l.conns.Store(c.ID, sess)
	l.active.Add(1)
	if l.metrics != nil {
		l.metrics.ConnectionOpened(netConn)
	}
	defer func() {
		l.conns.Delete(c.ID)
		l.active.Add(-1)
		if l.metrics != nil {
			l.metrics.ConnectionClosed(netConn)
		}
	}()

	c.FireConnected()
	log.Debug().Str("conn", c.ID).Str("remote", c.RemoteAddress).Msg("listener: connected")

	var idleWG sync.WaitGroup
	if l.cfg.IdleTimeout > 0 {
		idleWG.Add(1)
		go l.idleMonitor(connCtx, &idleWG, sess)
	}

	writerDone := make(chan struct{})
	go l.writeLoop(c, writerDone)

	l.readLoop(connCtx, sess)

	cancel()
	idleWG.Wait()

	c.BeginClosing(resolveReason(sess))
	// Bound the final flush: a peer that stopped reading (the
	// backpressure case) would otherwise block drainRemaining on a full
	// socket buffer indefinitely.
	_ = netConn.SetWriteDeadline(time.Now().Add(l.cfg.BackpressureDrainTimeout))
	<-writerDone
	c.Finish()
}

// idleMonitor cancels sess's connection context once no activity has
// been observed for the configured idle timeout.
func (l *Listener) idleMonitor(ctx context.Context, wg *sync.WaitGroup, sess *session) {
	defer wg.Done()

	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sess.c.IdleFor() >= l.cfg.IdleTimeout {
				sess.reason.CompareAndSwap(reasonUnset, int32(conn.ReasonIdleTimeout))
				sess.cancel()
				return
			}
		}
	}
}

// readLoop runs the framed receive loop for one connection until a
// fatal error, peer EOF, or ctx cancellation.
func (l *Listener) readLoop(ctx context.Context, sess *session) {
	c := sess.c
	reader := netstream.NewReader(c.NetConn(), l.codec)
	defer reader.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if l.cfg.TxHighWater > 0 && c.TxLen() > l.cfg.TxHighWater {
			if !l.waitForDrain(ctx, c) {
				sess.reason.CompareAndSwap(reasonUnset, int32(conn.ReasonBackpressure))
				if l.metrics != nil {
					l.metrics.IncBackpressureClose()
				}
				return
			}
		}

		p, err := reader.Next(ctx)
		if err != nil {
			if errors.Is(err, packet.ErrIntegrity) {
				// Recoverable: the offending frame has already been
				// discarded from the reader's buffer. Report the
				// violation and keep reading.
				c.FireProtocolViolation(conn.ViolationIntegrity)
				continue
			}
			l.handleReadError(sess, err)
			return
		}

		c.Touch()
		if l.metrics != nil {
			l.metrics.AddBytesRead(int(p.Length))
		}
		c.FirePacketReceived(p)
		l.dispatch(c, p)
	}
}

// waitForDrain blocks until the tx queue falls back to TxLowWater, ctx
// is cancelled, or BackpressureDrainTimeout elapses. It reports whether
// the queue drained in time.
func (l *Listener) waitForDrain(ctx context.Context, c *conn.Connection) bool {
	deadline := time.Now().Add(l.cfg.BackpressureDrainTimeout)
	ticker := time.NewTicker(backpressurePollInterval)
	defer ticker.Stop()

	for {
		if c.TxLen() <= l.cfg.TxLowWater {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (l *Listener) handleReadError(sess *session, err error) {
	c := sess.c

	if errors.Is(err, netstream.ErrProtocolViolation) {
		c.FireProtocolViolation(conn.ViolationShortFrame)
		sess.reason.CompareAndSwap(reasonUnset, int32(conn.ReasonFramingError))
		return
	}
	if errors.Is(err, io.EOF) {
		sess.reason.CompareAndSwap(reasonUnset, int32(conn.ReasonClosedByPeer))
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Already attributed by whoever cancelled (idle monitor,
		// Stop, or a handler-requested close); default to shutdown
		// if nothing claimed it.
		sess.reason.CompareAndSwap(reasonUnset, int32(conn.ReasonShutdown))
		return
	}

	sess.reason.CompareAndSwap(reasonUnset, int32(conn.ReasonFramingError))
}

func resolveReason(sess *session) conn.DisconnectReason {
	r := sess.reason.Load()
	if r == reasonUnset {
		return conn.ReasonClosedByPeer
	}
	return conn.DisconnectReason(r)
}

// dispatch routes p to its registered handler and applies the returned
// Action. An unregistered opcode is a recoverable protocol violation:
// the packet is dropped and the connection stays Open.
func (l *Listener) dispatch(c *conn.Connection, p *packet.Packet) {
	h, ok := l.registry.Lookup(p.OpCode)
	if !ok {
		c.FireProtocolViolation(conn.ViolationUnknownOpcode)
		l.codec.Release(p)
		return
	}

	if l.metrics != nil {
		l.metrics.IncDispatched(p.OpCode)
	}

	action := l.invoke(h, c, p)
	l.codec.Release(p)

	switch action.Kind {
	case ActionReply:
		l.send(c, action.Packet)
	case ActionClose:
		if action.Packet != nil {
			l.send(c, action.Packet)
		}
		c.Close(action.Reason)
	}
}

// invoke runs h, converting a handler panic into NoReply: a misbehaving
// handler is reported, but its connection stays Open unless the handler
// itself called Close on the connection before panicking.
func (l *Listener) invoke(h Handler, c *conn.Connection, p *packet.Packet) (action Action) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("conn", c.ID).Uint16("opcode", p.OpCode).Interface("panic", r).Msg("listener: handler panicked")
			action = NoReply()
		}
	}()
	return h(c, p)
}

func (l *Listener) send(c *conn.Connection, p *packet.Packet) {
	if err := c.Send(p); err != nil {
		log.Warn().Str("conn", c.ID).Err(err).Msg("listener: send failed")
	}
}

// writeLoop drains c's tx queue, encoding and writing each packet to
// the underlying socket, until the connection signals BeginClosing.
func (l *Listener) writeLoop(c *conn.Connection, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case p, ok := <-c.TxQueue():
			if !ok {
				return
			}
			err := l.codec.Encode(p, c.NetConn())
			length := p.Length
			l.codec.Release(p)
			if err != nil {
				log.Warn().Str("conn", c.ID).Err(err).Msg("listener: encode/write failed")
				return
			}
			if l.metrics != nil {
				l.metrics.AddBytesWritten(int(length))
			}
		case <-c.Done():
			l.drainRemaining(c)
			return
		}
	}
}

// drainRemaining flushes whatever is left in the tx queue once
// BeginClosing has fired, best-effort.
func (l *Listener) drainRemaining(c *conn.Connection) {
	for {
		select {
		case p, ok := <-c.TxQueue():
			if !ok {
				return
			}
			_ = l.codec.Encode(p, c.NetConn())
			l.codec.Release(p)
		default:
			return
		}
	}
}

// Stop signals every connection to close, waits up to
// ShutdownDeadline for them to finish, then force-closes whatever
// remains.
func (l *Listener) Stop(ctx context.Context) error {
	l.shutdownOnce.Do(func() { close(l.shutdown) })

	if l.ln != nil {
		_ = l.ln.Close()
	}

	l.conns.Range(func(_, v any) bool {
		sess := v.(*session)
		sess.reason.CompareAndSwap(reasonUnset, int32(conn.ReasonShutdown))
		sess.cancel()
		return true
	})

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	deadline := time.NewTimer(l.cfg.ShutdownDeadline)
	defer deadline.Stop()

	select {
	case <-done:
	case <-deadline.C:
		l.conns.Range(func(_, v any) bool {
			v.(*session).c.Finish()
			return true
		})
	case <-ctx.Done():
		l.conns.Range(func(_, v any) bool {
			v.(*session).c.Finish()
			return true
		})
	}

	log.Info().Msg("listener: stopped")
	return nil
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
