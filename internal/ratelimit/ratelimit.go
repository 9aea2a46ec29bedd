// Package ratelimit enforces per-model call and token budgets over a fixed
// 60-second window.
//
// Acquire fails closed and never blocks: when either ceiling would be
// exceeded the caller gets an *Error and decides what to do. Window state is
// in-memory only and does not survive restarts.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Window is the fixed budget window length.
const Window = 60 * time.Second

// Limits are the per-model ceilings for one window. A zero or negative value
// means that dimension is unlimited.
type Limits struct {
	CallsPerMinute  int
	TokensPerMinute int
}

// Error reports an exhausted budget for a model.
type Error struct {
	ModelID string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded for model %q: %s", e.ModelID, e.Reason)
}

type window struct {
	start  time.Time
	calls  int
	tokens int
}

// Limiter tracks per-model windows. Safe for concurrent use; two runs calling
// the same model contend on a single mutex.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limits
	windows map[string]*window
	now     func() time.Time
}

// NewLimiter creates a limiter with the given per-model ceilings.
func NewLimiter(limits map[string]Limits) *Limiter {
	l := &Limiter{
		limits:  make(map[string]Limits, len(limits)),
		windows: make(map[string]*window),
		now:     time.Now,
	}
	for id, lim := range limits {
		l.limits[id] = lim
	}
	return l
}

// Acquire debits one call and estimatedTokens from the model's current window.
// Both counters are incremented atomically with respect to concurrent callers
// on the same model. Returns an *Error when either ceiling would be exceeded;
// nothing is debited in that case.
func (l *Limiter) Acquire(modelID string, estimatedTokens int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[modelID]
	if !ok || now.Sub(w.start) >= Window {
		w = &window{start: now}
		l.windows[modelID] = w
	}

	lim := l.limits[modelID]
	if lim.CallsPerMinute > 0 && w.calls+1 > lim.CallsPerMinute {
		return &Error{ModelID: modelID, Reason: fmt.Sprintf("%d calls per minute", lim.CallsPerMinute)}
	}
	if lim.TokensPerMinute > 0 && w.tokens+estimatedTokens > lim.TokensPerMinute {
		return &Error{ModelID: modelID, Reason: fmt.Sprintf("%d tokens per minute", lim.TokensPerMinute)}
	}

	w.calls++
	w.tokens += estimatedTokens
	return nil
}
