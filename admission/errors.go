package admission

import "errors"

// Errors returned by the admission store.
var (
	// ErrForbidden indicates check rejected the address: it is either
	// currently banned or a criterion just flagged a violation.
	ErrForbidden = errors.New("admission: forbidden")

	// ErrLocked indicates RegisterCriterion was called after the store
	// locked (at Start, or at the first Check).
	ErrLocked = errors.New("admission: configuration locked")

	// ErrWhitelisted indicates TryBan was asked to ban an address that
	// is on the whitelist; whitelist membership always wins, so the
	// ban is refused rather than silently violating the invariant that
	// an address is never simultaneously whitelisted and banned.
	ErrWhitelisted = errors.New("admission: address is whitelisted")
)
