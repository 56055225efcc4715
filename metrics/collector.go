// Package metrics exposes a custom prometheus.Collector tracking
// listener and connection health: active connections (labeled by their
// OS file descriptor), admission rejections, bans issued, backpressure
// closes, bytes transferred, and packets dispatched per opcode.
//
// The collector's shape mirrors a lazy-computed, mutex-guarded
// per-connection tracking map the way a TCP-info exporter would, minus
// the syscall-level introspection.
package metrics

import (
	"net"
	"strconv"
	"sync"

	"github.com/higebu/netfd"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector is registered once, at process startup, into a
// prometheus.Registry and scraped over /metrics.
type Collector struct {
	mu    sync.Mutex
	conns map[net.Conn]int // net.Conn -> OS file descriptor

	activeDesc *prometheus.Desc

	dispatched        *prometheus.CounterVec
	bytesRead         prometheus.Counter
	bytesWritten      prometheus.Counter
	admissionRejected prometheus.Counter
	backpressureClose prometheus.Counter
	bansIssued        prometheus.Counter
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector constructs a Collector. namespace/subsystem prefix every
// metric name, e.g. NewCollector("nalix", "listener").
func NewCollector(namespace, subsystem string) *Collector {
	return &Collector{
		conns: make(map[net.Conn]int),
		activeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "connection_fd"),
			"Open connection, labeled by its OS file descriptor.",
			[]string{"fd"}, nil,
		),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dispatched_total",
			Help:      "Packets routed to a registered opcode handler.",
		}, []string{"opcode"}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "bytes_read_total", Help: "Bytes read from all connections.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "bytes_written_total", Help: "Bytes written to all connections.",
		}),
		admissionRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "admission_rejected_total", Help: "Connections refused by the admission store.",
		}),
		backpressureClose: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "backpressure_closed_total", Help: "Connections closed after their tx queue failed to drain.",
		}),
		bansIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "bans_issued_total", Help: "Bans issued by the admission store.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeDesc
	c.dispatched.Describe(ch)
	c.bytesRead.Describe(ch)
	c.bytesWritten.Describe(ch)
	c.admissionRejected.Describe(ch)
	c.backpressureClose.Describe(ch)
	c.bansIssued.Describe(ch)
}

// Collect implements prometheus.Collector, computing the active
// connection gauge lazily from the tracked set.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	fds := make([]int, 0, len(c.conns))
	for _, fd := range c.conns {
		fds = append(fds, fd)
	}
	c.mu.Unlock()

	for _, fd := range fds {
		ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, 1, strconv.Itoa(fd))
	}

	c.dispatched.Collect(ch)
	c.bytesRead.Collect(ch)
	c.bytesWritten.Collect(ch)
	c.admissionRejected.Collect(ch)
	c.backpressureClose.Collect(ch)
	c.bansIssued.Collect(ch)
}

// ConnectionOpened records a newly accepted connection, extracting its
// OS file descriptor for the active-connection label. netConn types
// that do not expose a raw fd (e.g. in tests using net.Pipe) are
// tracked with fd -1.
func (c *Collector) ConnectionOpened(netConn net.Conn) {
	fd := fdOf(netConn)
	c.mu.Lock()
	c.conns[netConn] = fd
	c.mu.Unlock()
}

// ConnectionClosed drops netConn from the active-connection set.
func (c *Collector) ConnectionClosed(netConn net.Conn) {
	c.mu.Lock()
	delete(c.conns, netConn)
	c.mu.Unlock()
}

// IncDispatched records one packet routed to opcode's handler.
func (c *Collector) IncDispatched(opcode uint16) {
	c.dispatched.WithLabelValues(strconv.Itoa(int(opcode))).Inc()
}

// AddBytesRead accumulates n bytes read across all connections.
func (c *Collector) AddBytesRead(n int) {
	c.bytesRead.Add(float64(n))
}

// AddBytesWritten accumulates n bytes written across all connections.
func (c *Collector) AddBytesWritten(n int) {
	c.bytesWritten.Add(float64(n))
}

// IncAdmissionRejected records one connection refused by the admission
// store.
func (c *Collector) IncAdmissionRejected() {
	c.admissionRejected.Inc()
}

// IncBackpressureClose records one connection closed after its tx
// queue failed to drain within the configured deadline.
func (c *Collector) IncBackpressureClose() {
	c.backpressureClose.Inc()
}

// IncBanIssued records one ban raised by the admission store, whether
// automatic (criterion violation) or explicit (operator-issued).
func (c *Collector) IncBanIssued() {
	c.bansIssued.Inc()
}

// fdOf extracts the OS file descriptor from netConn, falling back to
// -1 for connection types (e.g. net.Pipe, used in tests) that have
// none.
func fdOf(netConn net.Conn) (fd int) {
	fd = -1
	defer func() { _ = recover() }() // netfd panics on non-TCP/UDP conns

	if n := netfd.GetFdFromConn(netConn); n > 0 {
		fd = n
	}
	return fd
}
