package ratelimit

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"
)

type bucketState struct {
	tokens float64
	ts     time.Time
}

// MemoryBucket is the single-replica limiter used when Redis is absent.
type MemoryBucket struct {
	mu      sync.Mutex
	buckets map[string]bucketState
	now     func() time.Time
}

func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{
		buckets: map[string]bucketState{},
		now:     time.Now,
	}
}

func (m *MemoryBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*Result, error) {
	if err := validate(key, rate, burst); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	state, ok := m.buckets[key]
	if !ok {
		state = bucketState{tokens: float64(burst), ts: now}
	} else if elapsed := now.Sub(state.ts); elapsed > 0 {
		state.tokens = math.Min(float64(burst), state.tokens+elapsed.Seconds()*rate)
		state.ts = now
	}

	allowed := state.tokens >= 1
	if allowed {
		state.tokens--
	}
	m.buckets[key] = state
	return newResult(allowed, state.tokens, rate, burst), nil
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case int:
		return float64(val)
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
