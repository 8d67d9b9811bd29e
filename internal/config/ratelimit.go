package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

// LoginLimit configures the Redis token bucket in front of POST /api/login.
// Each client address gets Burst attempts; one attempt is restored every
// Every.
type LoginLimit struct {
	Enabled bool
	Burst   int
	Every   time.Duration
	Prefix  string // Redis key prefix
}

// TTL is how long an idle bucket is kept.  After that it would have refilled
// completely, so dropping it changes nothing.
func (l LoginLimit) TTL() time.Duration {
	return time.Duration(l.Burst+1) * l.Every
}

// LoadLoginLimit reads the limiter settings from the environment and exits
// on invalid values, like Load.
func LoadLoginLimit() LoginLimit {
	l, err := ParseLoginLimit(os.LookupEnv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return l
}

// ParseLoginLimit reads RATE_LIMIT_ENABLED, RATE_LIMIT_BURST,
// RATE_LIMIT_EVERY and RATE_LIMIT_PREFIX.  Defaults: enabled, 10 attempts,
// one restored every 6s, keys under "rl:login".
func ParseLoginLimit(lookup func(string) (string, bool)) (LoginLimit, error) {
	e := env{lookup: lookup}
	l := LoginLimit{
		Enabled: e.flag("RATE_LIMIT_ENABLED", true),
		Burst:   e.num("RATE_LIMIT_BURST", 10),
		Every:   e.dur("RATE_LIMIT_EVERY", 6*time.Second),
		Prefix:  e.str("RATE_LIMIT_PREFIX", "rl:login"),
	}
	if l.Burst < 1 {
		e.errs = append(e.errs, fmt.Errorf("RATE_LIMIT_BURST must be at least 1"))
	}
	if l.Every <= 0 {
		e.errs = append(e.errs, fmt.Errorf("RATE_LIMIT_EVERY must be positive"))
	}
	return l, errors.Join(e.errs...)
}
