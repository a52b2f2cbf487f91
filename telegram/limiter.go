package telegram

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long a user's limiter is kept after their last update.
const limiterIdle = 10 * time.Minute

// userLimiter throttles updates per Telegram user. Idle entries are pruned on
// access, at most once per limiterIdle.
type userLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	visitors  map[int64]*visitor
	lastPrune time.Time
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newUserLimiter returns nil, which allows everything, when perSecond is not positive.
func newUserLimiter(perSecond float64, burst int) *userLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &userLimiter{
		limit:    rate.Limit(perSecond),
		burst:    max(burst, 1),
		visitors: make(map[int64]*visitor),
		now:      time.Now,
	}
}

func (l *userLimiter) allow(userID int64) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[userID] = v
	}
	v.lastSeen = now

	if now.Sub(l.lastPrune) >= limiterIdle {
		for id, other := range l.visitors {
			if now.Sub(other.lastSeen) > limiterIdle {
				delete(l.visitors, id)
			}
		}
		l.lastPrune = now
	}

	return v.limiter.AllowN(now, 1)
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
