// Package ratelimit implements a per-address sliding-window request
// counter with lockout, satisfying the admission.Criterion interface so
// it can be registered directly into an admission.Store's criterion
// chain.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/phcnguyen/Nalix/admission"
)

// nowMillis is a seam for deterministic tests.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// Config bounds a sliding window of requests per address.
type Config struct {
	// MaxRequests is how many requests may fall inside WindowMS before
	// the address is flagged as violating.
	MaxRequests int

	// WindowMS is the width of the sliding window, in milliseconds.
	WindowMS int64

	// LockoutSeconds is how long an address stays flagged once it
	// exceeds MaxRequests, independent of the window sliding clear.
	// Zero disables the lockout: only the window itself gates.
	LockoutSeconds int64
}

func (c Config) validate() error {
	if c.MaxRequests <= 0 || c.WindowMS <= 0 || c.LockoutSeconds < 0 {
		return ErrInvalidConfig
	}
	return nil
}

type addrState struct {
	mu            sync.Mutex
	timestampsMS  []int64
	lockedUntilMS int64
}

// Criterion is a sliding-window-with-lockout admission.Criterion. The
// zero value is not usable; construct with New.
type Criterion struct {
	cfg   Config
	state sync.Map // string -> *addrState
}

// New constructs a Criterion from cfg, returning ErrInvalidConfig if
// MaxRequests or WindowMS is non-positive or LockoutSeconds is negative.
func New(cfg Config) (*Criterion, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Criterion{cfg: cfg}, nil
}

var _ admission.Criterion = (*Criterion)(nil)

// Validate records a request from addr and reports whether it pushed
// the address over its sliding-window budget. Once flagged, the
// address stays flagged until LockoutSeconds elapses, even if the
// window would otherwise have cleared sooner.
func (c *Criterion) Validate(_ context.Context, addr string) (bool, error) {
	st := c.stateFor(addr)

	st.mu.Lock()
	defer st.mu.Unlock()

	now := nowMillis()

	if st.lockedUntilMS > now {
		return true, nil
	}

	cutoff := now - c.cfg.WindowMS
	i := 0
	for i < len(st.timestampsMS) && st.timestampsMS[i] < cutoff {
		i++
	}
	st.timestampsMS = st.timestampsMS[i:]
	st.timestampsMS = append(st.timestampsMS, now)

	if len(st.timestampsMS) > c.cfg.MaxRequests {
		st.lockedUntilMS = now + c.cfg.LockoutSeconds*1000
		return true, nil
	}

	return false, nil
}

// Clear drops addr's sliding window and lockout entirely.
func (c *Criterion) Clear(addr string) {
	c.state.Delete(addr)
}

// PurgeStale evicts state for addresses whose window is empty and
// whose lockout, if any, has expired.
func (c *Criterion) PurgeStale() {
	now := nowMillis()
	cutoff := now - c.cfg.WindowMS
	c.state.Range(func(key, value any) bool {
		st := value.(*addrState)
		st.mu.Lock()
		i := 0
		for i < len(st.timestampsMS) && st.timestampsMS[i] < cutoff {
			i++
		}
		st.timestampsMS = st.timestampsMS[i:]
		stale := len(st.timestampsMS) == 0 && st.lockedUntilMS <= now
		st.mu.Unlock()
		if stale {
			c.state.Delete(key)
		}
		return true
	})
}

func (c *Criterion) stateFor(addr string) *addrState {
	if v, ok := c.state.Load(addr); ok {
		return v.(*addrState)
	}
	v, _ := c.state.LoadOrStore(addr, &addrState{})
	return v.(*addrState)
}
