package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Response headers consulted on 403/429 responses.
const (
	HeaderRetryAfter    = "Retry-After"
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
)

// SafetyMargin is added to every header-derived wait.
const SafetyMargin = 2 * time.Second

// HeaderState is the rate-limit information carried by response headers.
// Absent or unparsable headers leave the corresponding Has* flag false.
type HeaderState struct {
	RetryAfter    time.Duration
	HasRetryAfter bool

	Remaining    int
	HasRemaining bool

	ResetAt  time.Time
	HasReset bool
}

// ParseHeaders extracts rate-limit headers. Retry-After accepts either delay
// seconds or an HTTP date; dates in the past yield a zero delay.
func ParseHeaders(h http.Header, now time.Time) HeaderState {
	var st HeaderState

	if v := strings.TrimSpace(h.Get(HeaderRetryAfter)); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			st.RetryAfter = time.Duration(secs) * time.Second
			st.HasRetryAfter = true
		} else if at, err := http.ParseTime(v); err == nil {
			st.RetryAfter = at.Sub(now)
			if st.RetryAfter < 0 {
				st.RetryAfter = 0
			}
			st.HasRetryAfter = true
		}
	}

	if v := h.Get(HeaderRateRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			st.Remaining = n
			st.HasRemaining = true
		}
	}

	if v := h.Get(HeaderRateReset); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			st.ResetAt = time.Unix(unix, 0)
			st.HasReset = true
		}
	}

	return st
}

// Wait returns the cooldown a 403/429 response asks for. Retry-After takes
// precedence over an exhausted quota with a reset time. The second result is
// false when neither signal applies and the caller must fall back to backoff.
func (st HeaderState) Wait(now time.Time) (time.Duration, bool) {
	if st.HasRetryAfter {
		return st.RetryAfter + SafetyMargin, true
	}

	if st.HasRemaining && st.Remaining == 0 && st.HasReset {
		if d := st.ResetAt.Sub(now) + SafetyMargin; d > 0 {
			return d, true
		}
	}

	return 0, false
}
