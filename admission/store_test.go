package admission

import (
	"context"
	"testing"
	"time"
)

// flagCriterion flags whichever addresses are listed in violators.
type flagCriterion struct {
	violators map[string]bool
	cleared   []string
	purged    int
}

func (f *flagCriterion) Validate(_ context.Context, addr string) (bool, error) {
	return f.violators[addr], nil
}

func (f *flagCriterion) Clear(addr string) {
	f.cleared = append(f.cleared, addr)
}

func (f *flagCriterion) PurgeStale() {
	f.purged++
}

func TestCheckAllowsUnknownAddress(t *testing.T) {
	s := NewStore(time.Minute)

	if err := s.Check(context.Background(), "10.0.0.1"); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestCheckWhitelistBypassesCriteria(t *testing.T) {
	s := NewStore(time.Minute)
	crit := &flagCriterion{violators: map[string]bool{"10.0.0.1": true}}
	if err := s.RegisterCriterion(crit); err != nil {
		t.Fatalf("RegisterCriterion: %v", err)
	}
	if err := s.AddToWhitelist("10.0.0.1"); err != nil {
		t.Fatalf("AddToWhitelist: %v", err)
	}

	if err := s.Check(context.Background(), "10.0.0.1"); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestCheckCriterionViolationBansImmediately(t *testing.T) {
	s := NewStore(time.Minute)
	crit := &flagCriterion{violators: map[string]bool{"10.0.0.2": true}}
	if err := s.RegisterCriterion(crit); err != nil {
		t.Fatalf("RegisterCriterion: %v", err)
	}

	if err := s.Check(context.Background(), "10.0.0.2"); err != ErrForbidden {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	// Second check, still within ban_time, must also be forbidden even
	// though the criterion no longer needs to fire.
	crit.violators["10.0.0.2"] = false
	if err := s.Check(context.Background(), "10.0.0.2"); err != ErrForbidden {
		t.Fatalf("err = %v, want ErrForbidden (active ban)", err)
	}
}

func TestCheckBanExpires(t *testing.T) {
	s := NewStore(time.Minute)
	if err := s.TryBan("10.0.0.3", true, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("TryBan: %v", err)
	}

	if err := s.Check(context.Background(), "10.0.0.3"); err != nil {
		t.Fatalf("Check after expiry: %v", err)
	}
}

func TestTryBanRefusesWhitelistedAddress(t *testing.T) {
	s := NewStore(time.Minute)
	if err := s.AddToWhitelist("10.0.0.4"); err != nil {
		t.Fatalf("AddToWhitelist: %v", err)
	}

	if err := s.TryBan("10.0.0.4", true, time.Time{}); err != ErrWhitelisted {
		t.Fatalf("err = %v, want ErrWhitelisted", err)
	}
}

func TestAddToWhitelistCIDR(t *testing.T) {
	s := NewStore(time.Minute)
	if err := s.AddToWhitelist("192.168.1.0/24"); err != nil {
		t.Fatalf("AddToWhitelist: %v", err)
	}

	if !s.IsWhitelisted("192.168.1.42") {
		t.Fatalf("192.168.1.42 should be whitelisted via CIDR")
	}
	if s.IsWhitelisted("192.168.2.1") {
		t.Fatalf("192.168.2.1 should not be whitelisted")
	}
}

func TestAddToWhitelistBracketedIPv6(t *testing.T) {
	s := NewStore(time.Minute)
	if err := s.AddToWhitelist("[::1]"); err != nil {
		t.Fatalf("AddToWhitelist: %v", err)
	}
	if !s.IsWhitelisted("[::1]") {
		t.Fatalf("::1 should be whitelisted")
	}
	if !s.IsWhitelisted("::1") {
		t.Fatalf("::1 should be whitelisted without brackets too")
	}
}

func TestRegisterCriterionAfterLockFails(t *testing.T) {
	s := NewStore(time.Minute)
	s.Start()

	if err := s.RegisterCriterion(&flagCriterion{}); err != ErrLocked {
		t.Fatalf("err = %v, want ErrLocked", err)
	}
}

func TestTryUnbanClearsCriteriaAndBan(t *testing.T) {
	s := NewStore(time.Minute)
	crit := &flagCriterion{violators: map[string]bool{"10.0.0.5": true}}
	_ = s.RegisterCriterion(crit)

	if err := s.Check(context.Background(), "10.0.0.5"); err != ErrForbidden {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	if err := s.TryUnban("10.0.0.5"); err != nil {
		t.Fatalf("TryUnban: %v", err)
	}
	crit.violators["10.0.0.5"] = false

	if err := s.Check(context.Background(), "10.0.0.5"); err != nil {
		t.Fatalf("Check after unban: %v", err)
	}
	if len(crit.cleared) != 1 || crit.cleared[0] != "10.0.0.5" {
		t.Fatalf("criterion Clear not invoked as expected: %v", crit.cleared)
	}
}

func TestOnBanFiresForAutomaticAndExplicitBans(t *testing.T) {
	s := NewStore(time.Minute)
	crit := &flagCriterion{violators: map[string]bool{"10.0.0.7": true}}
	_ = s.RegisterCriterion(crit)

	var fired []string
	s.OnBan(func(rec BanRecord) { fired = append(fired, rec.Address) })

	if err := s.Check(context.Background(), "10.0.0.7"); err != ErrForbidden {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if err := s.TryBan("10.0.0.8", true, time.Time{}); err != nil {
		t.Fatalf("TryBan: %v", err)
	}

	if len(fired) != 2 || fired[0] != "10.0.0.7" || fired[1] != "10.0.0.8" {
		t.Fatalf("OnBan callback fired for %v, want [10.0.0.7 10.0.0.8]", fired)
	}
}

func TestPurgeDropsExpiredBansAndCallsCriteria(t *testing.T) {
	s := NewStore(time.Minute)
	crit := &flagCriterion{}
	_ = s.RegisterCriterion(crit)
	_ = s.TryBan("10.0.0.6", true, time.Now().Add(-time.Second))

	s.Purge()

	if _, ok := s.bans.Load("10.0.0.6"); ok {
		t.Fatalf("expired ban should have been purged")
	}
	if crit.purged != 1 {
		t.Fatalf("PurgeStale called %d times, want 1", crit.purged)
	}
}
