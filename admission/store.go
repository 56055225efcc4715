// Package admission controls which remote addresses may hold an open
// connection: a whitelist short-circuits every other check, an ordered
// chain of pluggable Criterion implementations flags abusive addresses,
// and a ban map enforces a timed lockout once a criterion fires.
//
// A Store's criterion chain is configured once at startup and locked on
// the first Check call (or an explicit Start), matching the pattern the
// rest of this module uses for frozen-after-start registries.
package admission

import (
	"context"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Store is the admission gate a listener consults before accepting a
// connection from a remote address.
type Store struct {
	banTime time.Duration

	mu                sync.RWMutex
	whitelist         map[string]struct{}
	whitelistPrefixes []netip.Prefix
	criteria          []Criterion

	bans sync.Map // string -> BanRecord

	locked atomic.Bool

	onBan func(BanRecord)
}

// NewStore creates a Store whose automatic bans (raised by a Criterion
// violation) last banTime.
func NewStore(banTime time.Duration) *Store {
	return &Store{
		banTime:   banTime,
		whitelist: make(map[string]struct{}),
	}
}

// OnBan registers a callback invoked synchronously whenever TryBan
// issues a fresh ban, automatic or explicit. Intended for wiring a
// metrics counter; must not block. Overwrites any previously set
// callback. Not safe to call once the store is serving Check calls.
func (s *Store) OnBan(fn func(BanRecord)) {
	s.onBan = fn
}

// RegisterCriterion appends c to the evaluation chain. It returns
// ErrLocked once the store has started serving Check calls.
func (s *Store) RegisterCriterion(c Criterion) error {
	if s.locked.Load() {
		return ErrLocked
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria = append(s.criteria, c)
	return nil
}

// Start locks the criterion chain against further registration. Check
// also locks the store on first use, so calling Start is optional but
// makes the configuration boundary explicit at listener startup.
func (s *Store) Start() {
	s.locked.Store(true)
}

// AddToWhitelist admits addr permanently, bypassing every Criterion and
// the ban map. addr may be a bare IPv4/IPv6 address (bracketed IPv6,
// e.g. "[::1]", is accepted) or a CIDR range. Resolution is eager: a
// malformed address is rejected immediately rather than at check time.
func (s *Store) AddToWhitelist(addr string) error {
	if strings.Contains(addr, "/") {
		prefix, err := netip.ParsePrefix(addr)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.whitelistPrefixes = append(s.whitelistPrefixes, prefix)
		s.mu.Unlock()
		return nil
	}

	parsed, err := netip.ParseAddr(trimBrackets(addr))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.whitelist[parsed.String()] = struct{}{}
	s.mu.Unlock()
	return nil
}

// IsWhitelisted reports whether addr matches the whitelist, either
// exactly or via a registered CIDR range. A malformed addr is never
// whitelisted.
func (s *Store) IsWhitelisted(addr string) bool {
	parsed, err := netip.ParseAddr(trimBrackets(addr))
	if err != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.whitelist[parsed.String()]; ok {
		return true
	}
	for _, p := range s.whitelistPrefixes {
		if p.Contains(parsed) {
			return true
		}
	}
	return false
}

// Check evaluates addr against the whitelist, the criterion chain, and
// the ban map, in that order, returning ErrForbidden if admission is
// denied. A criterion violation bans the address for the store's ban
// time before the ban map is consulted, so it resolves to ErrForbidden
// on the same call that raised it.
func (s *Store) Check(ctx context.Context, addr string) error {
	s.locked.Store(true)

	if s.IsWhitelisted(addr) {
		return nil
	}

	s.mu.RLock()
	criteria := s.criteria
	s.mu.RUnlock()

	for _, c := range criteria {
		violates, err := c.Validate(ctx, addr)
		if err != nil {
			return err
		}
		if violates {
			_ = s.TryBan(addr, false, time.Time{})
			break
		}
	}

	if v, ok := s.bans.Load(addr); ok {
		rec := v.(BanRecord)
		if time.Now().Before(rec.ExpiresAt) {
			return ErrForbidden
		}
		s.bans.Delete(addr)
	}

	return nil
}

// TryBan bans addr until `until`, or for the store's configured
// banTime if until is the zero Time. It refuses to ban a whitelisted
// address.
func (s *Store) TryBan(addr string, explicit bool, until time.Time) error {
	if s.IsWhitelisted(addr) {
		return ErrWhitelisted
	}
	if until.IsZero() {
		until = time.Now().Add(s.banTime)
	}
	rec := BanRecord{Address: addr, ExpiresAt: until, Explicit: explicit}
	s.bans.Store(addr, rec)
	if s.onBan != nil {
		s.onBan(rec)
	}
	return nil
}

// TryUnban clears any ban on addr and asks every criterion to drop its
// per-address state for it.
func (s *Store) TryUnban(addr string) error {
	s.bans.Delete(addr)

	s.mu.RLock()
	criteria := s.criteria
	s.mu.RUnlock()

	for _, c := range criteria {
		c.Clear(addr)
	}
	return nil
}

// Purge drops expired bans and asks every criterion to purge its own
// stale per-address state. Intended to run on a periodic ticker.
func (s *Store) Purge() {
	now := time.Now()
	s.bans.Range(func(key, value any) bool {
		if rec := value.(BanRecord); now.After(rec.ExpiresAt) {
			s.bans.Delete(key)
		}
		return true
	})

	s.mu.RLock()
	criteria := s.criteria
	s.mu.RUnlock()

	for _, c := range criteria {
		c.PurgeStale()
	}
}

func trimBrackets(addr string) string {
	return strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
}
