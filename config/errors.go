package config

import "errors"

// errNotPositive is the validation failure for every integer
// configuration key that must be strictly positive.
var errNotPositive = errors.New("config: value must be positive")

// errNegative is the validation failure for keys where zero is a
// meaningful "disabled" value but negatives are not.
var errNegative = errors.New("config: value must not be negative")
