package recovery

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/partnerpay/internal/clock"
	obsmetrics "github.com/smallbiznis/partnerpay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/partnerpay/internal/payment/domain"
	"github.com/smallbiznis/partnerpay/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type replayCall struct {
	before      time.Time
	maxAttempts int
	limit       int
}

type fakeReplayer struct {
	mu     sync.Mutex
	calls  []replayCall
	result paymentdomain.ReplayResult
	err    error
	onCall func(ctx context.Context)
}

func (f *fakeReplayer) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	return nil
}

func (f *fakeReplayer) ReplayPending(ctx context.Context, before time.Time, maxAttempts int, limit int) (paymentdomain.ReplayResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, replayCall{before: before, maxAttempts: maxAttempts, limit: limit})
	onCall := f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall(ctx)
	}
	if err := ctx.Err(); err != nil {
		return f.result, err
	}
	return f.result, f.err
}

func (f *fakeReplayer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newWorker(replayer *fakeReplayer, locker *ratelimit.Locker, metrics *obsmetrics.RecoveryMetrics) *Worker {
	return New(Params{
		Log: zap.NewNop(),
		Config: Config{
			Interval:    10 * time.Millisecond,
			Threshold:   5 * time.Minute,
			MaxAttempts: 3,
			BatchSize:   7,
		},
		Clock:    clock.NewFakeClock(now),
		Replayer: replayer,
		Locker:   locker,
		Metrics:  metrics,
	})
}

func TestRunOnceReplaysStaleEvents(t *testing.T) {
	replayer := &fakeReplayer{result: paymentdomain.ReplayResult{Picked: 3, Succeeded: 2, Failed: 1}}
	metrics := obsmetrics.NewRecoveryMetrics(prometheus.NewRegistry(), obsmetrics.Config{})

	result, err := newWorker(replayer, nil, metrics).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayer.result, result)

	require.Len(t, replayer.calls, 1)
	assert.Equal(t, replayCall{before: now.Add(-5 * time.Minute), maxAttempts: 3, limit: 7}, replayer.calls[0])
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	locker := ratelimit.NewLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	registry := prometheus.NewRegistry()
	metrics := obsmetrics.NewRecoveryMetrics(registry, obsmetrics.Config{})
	replayer := &fakeReplayer{}
	worker := newWorker(replayer, locker, metrics)

	require.NoError(t, mr.Set(lockKey, "other-instance"))

	_, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, replayer.count())

	mr.Del(lockKey)
	_, err = worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, replayer.count())
	assert.False(t, mr.Exists(lockKey), "lock released after sweep")

	count, err := testutil.GatherAndCount(registry, "partnerpay_recovery_sweep_skipped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunOnceReturnsReplayError(t *testing.T) {
	replayer := &fakeReplayer{err: errors.New("db down")}

	_, err := newWorker(replayer, nil, nil).RunOnce(context.Background())
	assert.EqualError(t, err, "db down")
}

func newLockedWorker(t *testing.T, replayer *fakeReplayer, lockTTL time.Duration) (*miniredis.Miniredis, *Worker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, New(Params{
		Log: zap.NewNop(),
		Config: Config{
			Interval:    time.Minute,
			Threshold:   5 * time.Minute,
			MaxAttempts: 3,
			BatchSize:   7,
			LockTTL:     lockTTL,
		},
		Clock:    clock.NewFakeClock(now),
		Replayer: replayer,
		Locker:   ratelimit.NewLocker(client),
	})
}

func TestRunOnceExtendsLockDuringLongSweep(t *testing.T) {
	const lockTTL = 90 * time.Millisecond
	replayer := &fakeReplayer{result: paymentdomain.ReplayResult{Picked: 1, Succeeded: 1}}
	mr, worker := newLockedWorker(t, replayer, lockTTL)

	var extended bool
	replayer.onCall = func(context.Context) {
		// most of the TTL is spent before the first heartbeat
		mr.FastForward(80 * time.Millisecond)
		time.Sleep(4 * lockTTL / 3)
		// without a heartbeat the remaining 10ms would have run out
		mr.FastForward(50 * time.Millisecond)
		extended = mr.Exists(lockKey)
	}

	result, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.True(t, extended)
	assert.False(t, mr.Exists(lockKey), "lock released after sweep")
}

func TestRunOnceStopsWhenLockIsLost(t *testing.T) {
	const lockTTL = 60 * time.Millisecond
	replayer := &fakeReplayer{}
	mr, worker := newLockedWorker(t, replayer, lockTTL)

	var sweepCancelled bool
	replayer.onCall = func(ctx context.Context) {
		require.NoError(t, mr.Set(lockKey, "other-instance"))
		select {
		case <-ctx.Done():
			sweepCancelled = true
		case <-time.After(time.Second):
		}
	}

	_, err := worker.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, sweepCancelled)

	held, err := mr.Get(lockKey)
	require.NoError(t, err)
	assert.Equal(t, "other-instance", held, "release leaves another holder's lock alone")
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	replayer := &fakeReplayer{}
	replayer.onCall = func(context.Context) {
		if replayer.count() >= 2 {
			cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		newWorker(replayer, nil, nil).RunForever(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.GreaterOrEqual(t, replayer.count(), 2)
}

func TestProvideConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Threshold)
	assert.Equal(t, 10, cfg.MaxAttempts)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 2*time.Minute, cfg.LockTTL)
}
