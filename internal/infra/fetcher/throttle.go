package fetcher

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultThrottleBackoff = 60 * time.Second
	defaultBlockBackoff    = 10 * time.Minute
)

var throttlePatterns = []string{
	"rate limit exceeded",
	"too many requests",
	"daily request count exceeded",
	"project rate limit",
	"monthly quota exceeded",
}

// throttleMonitor remembers when a host last rate limited or blocked us.
type throttleMonitor struct {
	mu      sync.RWMutex
	now     func() time.Time
	until   time.Time
	blocked bool
}

func newThrottleMonitor() *throttleMonitor {
	return &throttleMonitor{now: time.Now}
}

// record notes a 429 or 403 response. Retry-After may be seconds or an HTTP date.
func (m *throttleMonitor) record(statusCode int, retryAfter string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	wait := defaultThrottleBackoff
	if statusCode == http.StatusForbidden {
		wait = defaultBlockBackoff
	} else if d, ok := parseRetryAfter(retryAfter, now); ok {
		wait = d
	}

	m.blocked = statusCode == http.StatusForbidden
	m.until = now.Add(wait)
	return wait
}

// check returns the remaining backoff, or zero when requests may proceed.
func (m *throttleMonitor) check() (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	remaining := m.until.Sub(m.now())
	if remaining <= 0 {
		return 0, false
	}
	return remaining, m.blocked
}

func detectThrottlePattern(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range throttlePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
