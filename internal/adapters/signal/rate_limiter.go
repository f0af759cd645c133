package signal

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/dkeye/Conference/internal/domain"
)

// RoomRateLimiter caps chat per user over a sliding window. A non-positive limit disables it.
type RoomRateLimiter struct {
	mu       sync.Mutex
	sent     map[domain.UserID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		sent:     make(map[domain.UserID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RoomRateLimiter) Allow(uid domain.UserID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	since := now.Add(-rl.interval)
	window := lo.Filter(rl.sent[uid], func(t time.Time, _ int) bool { return t.After(since) })
	if len(window) >= rl.limit {
		rl.sent[uid] = window
		return false
	}
	rl.sent[uid] = append(window, now)
	return true
}

// Forget drops the user's window once they leave.
func (rl *RoomRateLimiter) Forget(uid domain.UserID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.sent, uid)
}
