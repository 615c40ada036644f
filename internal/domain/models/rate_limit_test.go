package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/turtacn/linkguard/pkg/errors"
)

func TestRateLimitPolicy_Validate(t *testing.T) {
	valid := RateLimitPolicy{Name: "auth", KeyPrefix: "auth", Window: time.Minute, MaxRequests: 5}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *RateLimitPolicy)
	}{
		{"missing name", func(p *RateLimitPolicy) { p.Name = "" }},
		{"missing prefix", func(p *RateLimitPolicy) { p.KeyPrefix = "" }},
		{"prefix with separator", func(p *RateLimitPolicy) { p.KeyPrefix = "auth:v2" }},
		{"prefix with space", func(p *RateLimitPolicy) { p.KeyPrefix = "auth v2" }},
		{"sub-second window", func(p *RateLimitPolicy) { p.Window = 500 * time.Millisecond }},
		{"fractional window", func(p *RateLimitPolicy) { p.Window = 1500 * time.Millisecond }},
		{"zero max requests", func(p *RateLimitPolicy) { p.MaxRequests = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			var appErr errors.AppError
			if assert.True(t, errors.As(err, &appErr)) {
				assert.Equal(t, errors.CodeInvalidPolicy, appErr.Code())
			}
		})
	}
}

func TestDecision_RetryAfterSeconds(t *testing.T) {
	assert.Equal(t, int64(0), Decision{Allowed: true, RetryAfter: time.Minute}.RetryAfterSeconds())
	assert.Equal(t, int64(2), Decision{RetryAfter: 1100 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, int64(1), Decision{RetryAfter: 0}.RetryAfterSeconds())
}

func TestDecision_ResetAtEpochSeconds(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	assert.Equal(t, int64(1_700_000_000), Decision{ResetAt: at}.ResetAtEpochSeconds())
}
