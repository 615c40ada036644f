package models

import (
	"math"
	"strings"
	"time"

	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/errors"
)

// RateLimitPolicy is the fixed-window configuration applied to one endpoint class.
// Policies are built and validated at startup and never change afterwards.
type RateLimitPolicy struct {
	// Name identifies the policy in logs and metrics
	Name string `mapstructure:"name" json:"name"`
	// KeyPrefix separates this policy's counters from every other policy's
	KeyPrefix string `mapstructure:"key_prefix" json:"key_prefix"`
	// Window is the fixed window length
	Window time.Duration `mapstructure:"window" json:"window"`
	// MaxRequests is the number of admitted requests per window
	MaxRequests int64 `mapstructure:"max_requests" json:"max_requests"`
}

// Validate reports a malformed policy as ErrInvalidPolicy.
func (p RateLimitPolicy) Validate() error {
	switch {
	case p.Name == "":
		return errors.ErrInvalidPolicy(p.KeyPrefix, "name is required")
	case p.KeyPrefix == "":
		return errors.ErrInvalidPolicy(p.Name, "key prefix is required")
	case strings.ContainsAny(p.KeyPrefix, constants.KeySeparator+" \t\r\n"):
		return errors.ErrInvalidPolicy(p.Name, "key prefix must not contain ':' or whitespace")
	case p.Window < time.Second:
		return errors.ErrInvalidPolicy(p.Name, "window must be at least one second")
	case p.Window%time.Second != 0:
		return errors.ErrInvalidPolicy(p.Name, "window must be a whole number of seconds")
	case p.MaxRequests < 1:
		return errors.ErrInvalidPolicy(p.Name, "max requests must be positive")
	}
	return nil
}

// WindowSeconds returns the window length in seconds.
func (p RateLimitPolicy) WindowSeconds() int64 {
	return int64(p.Window / time.Second)
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	// Allowed reports whether the request is admitted
	Allowed bool
	// Limit is the policy's MaxRequests
	Limit int64
	// Remaining is max(0, Limit - count)
	Remaining int64
	// ResetAt is when the current window's counter expires
	ResetAt time.Time
	// RetryAfter is the counter's remaining TTL; zero when allowed
	RetryAfter time.Duration
	// FailedOpen marks a decision synthesized because the store was unreachable
	FailedOpen bool
}

// ResetAtEpochSeconds returns ResetAt as Unix seconds.
func (d Decision) ResetAtEpochSeconds() int64 {
	return d.ResetAt.Unix()
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, at least one
// when the request was denied.
func (d Decision) RetryAfterSeconds() int64 {
	if d.Allowed {
		return 0
	}
	secs := int64(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RateLimitUsage represents current usage statistics for one counter.
type RateLimitUsage struct {
	// Key is the store key of the counter
	Key string
	// Used is the number of requests counted in the current window
	Used int64
	// Limit is the maximum allowed
	Limit int64
	// Remaining is the number remaining
	Remaining int64
	// ResetAt is when the counter expires; zero when no window is open
	ResetAt time.Time
	// Percentage is the usage percentage, capped at 100
	Percentage float64
}
