// Package arena provides pooled byte buffers for packet payloads.
//
// Small payloads are served from a tiered set of sync.Pool size classes.
// Payloads larger than a configured heap-alloc threshold are allocated
// directly and registered with a background reclaimer, which periodically
// drops its own bookkeeping for buffers whose holder has released them.
// The reclaimer never frees Go memory itself (the garbage collector
// already does that); it bounds the size of the tracking set and surfaces
// long-held large payloads as a leak signal.
package arena

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// defaultSweepInterval is how often the reclaimer drops tracking entries
// for released large payloads when the caller does not specify one.
const defaultSweepInterval = 30 * time.Second

// leakSweeps is the number of consecutive sweeps a large payload may
// remain un-released before the reclaimer logs a suspected leak.
const leakSweeps = 4

// Payload is a reference to an owned, arena-acquired byte buffer.
//
// Payloads are immutable after construction from the caller's point of
// view: Bytes must not be mutated once handed to a Packet. Release
// returns the buffer to its pool (pooled tier) or simply marks it
// reclaimable (direct-heap tier).
type Payload struct {
	Bytes []byte

	large   bool
	class   int
	tracked *tracked
}

// tracked is the reclaimer's bookkeeping record for one direct-heap
// allocation.
type tracked struct {
	released atomic.Bool
	sweeps   int
}

// Arena acquires and releases packet payload buffers.
//
// Arena is safe for concurrent use. The background reclaimer runs on its
// own ticker, owned exclusively by the Arena and stopped by Close.
type Arena struct {
	threshold int
	classes   []int
	pools     map[int]*sync.Pool

	closed    atomic.Bool
	reclaimer *reclaimer
}

// New creates an Arena. heapAllocThreshold is the payload size above
// which buffers are allocated directly instead of drawn from a pool.
// sweepInterval controls how often the background reclaimer runs; zero
// selects defaultSweepInterval.
func New(heapAllocThreshold int, sweepInterval time.Duration) *Arena {
	if heapAllocThreshold <= 0 {
		heapAllocThreshold = 1024
	}
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	classes := sizeClasses(heapAllocThreshold)
	pools := make(map[int]*sync.Pool, len(classes))
	for _, c := range classes {
		c := c
		pools[c] = &sync.Pool{
			New: func() any { return make([]byte, c) },
		}
	}

	a := &Arena{
		threshold: heapAllocThreshold,
		classes:   classes,
		pools:     pools,
		reclaimer: newReclaimer(sweepInterval),
	}

	go a.reclaimer.run()

	return a
}

// sizeClasses returns the pooled size classes: powers of two from 64
// bytes while below threshold, followed by threshold itself (as given,
// not rounded) as the largest class.
func sizeClasses(threshold int) []int {
	classes := make([]int, 0, 8)
	for c := 64; c < threshold; c *= 2 {
		classes = append(classes, c)
	}
	classes = append(classes, threshold)
	return classes
}

// classFor returns the smallest pooled size class that can hold size.
func (a *Arena) classFor(size int) (int, bool) {
	for _, c := range a.classes {
		if size <= c {
			return c, true
		}
	}
	return 0, false
}

// Acquire returns size bytes of owned storage. Payloads at or below the
// heap-alloc threshold are drawn from a pooled size class; larger
// payloads are allocated directly and registered for deferred
// reclamation.
func (a *Arena) Acquire(size int) (*Payload, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}
	if size < 0 {
		return nil, ErrOversize
	}
	if size == 0 {
		return &Payload{Bytes: nil}, nil
	}

	if class, ok := a.classFor(size); ok {
		buf := a.pools[class].Get().([]byte)
		return &Payload{Bytes: buf[:size], class: class}, nil
	}

	buf := make([]byte, size)
	t := &tracked{}
	a.reclaimer.register(t)

	return &Payload{Bytes: buf, large: true, tracked: t}, nil
}

// Release returns a payload's storage to the arena. It is safe to call
// Release with a nil Payload or a Payload with a nil Bytes slice.
func (a *Arena) Release(p *Payload) {
	if p == nil || p.Bytes == nil {
		return
	}

	if p.large {
		p.tracked.released.Store(true)
		return
	}

	pool, ok := a.pools[p.class]
	if !ok {
		return
	}
	pool.Put(p.Bytes[:cap(p.Bytes)])
}

// Close stops the background reclaimer and fails further Acquire calls
// with ErrClosed. It does not invalidate outstanding payloads; those
// remain valid until their holder calls Release.
func (a *Arena) Close() {
	a.closed.Store(true)
	a.reclaimer.stop()
}

// reclaimer tracks direct-heap allocations and periodically drops
// bookkeeping for the ones that have been released.
type reclaimer struct {
	mu       sync.Mutex
	entries  map[*tracked]struct{}
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

func newReclaimer(interval time.Duration) *reclaimer {
	return &reclaimer{
		entries:  make(map[*tracked]struct{}),
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (r *reclaimer) register(t *tracked) {
	r.mu.Lock()
	r.entries[t] = struct{}{}
	r.mu.Unlock()
}

func (r *reclaimer) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.done:
			return
		}
	}
}

func (r *reclaimer) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for t := range r.entries {
		if t.released.Load() {
			delete(r.entries, t)
			continue
		}
		t.sweeps++
		if t.sweeps == leakSweeps {
			log.Warn().Int("sweeps", t.sweeps).Msg("arena: large payload held across multiple reclaim sweeps")
		}
	}
}

func (r *reclaimer) stop() {
	r.stopOnce.Do(func() { close(r.done) })
}
