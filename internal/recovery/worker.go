package recovery

import (
	"context"
	"time"

	"github.com/smallbiznis/partnerpay/internal/clock"
	"github.com/smallbiznis/partnerpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/partnerpay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/partnerpay/internal/payment/domain"
	"github.com/smallbiznis/partnerpay/internal/ratelimit"
	"github.com/smallbiznis/partnerpay/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lockKey = "partnerpay:recovery:sweep"

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   Config
	Clock    clock.Clock
	Replayer paymentdomain.Service
	Locker   *ratelimit.Locker           `optional:"true"`
	Metrics  *obsmetrics.RecoveryMetrics `optional:"true"`
}

// Worker replays stored webhook events that were never marked processed.
type Worker struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	replayer paymentdomain.Service
	locker   *ratelimit.Locker
	metrics  *obsmetrics.RecoveryMetrics
}

func New(p Params) *Worker {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Worker{
		log:      p.Log.Named("recovery").With(zap.String("component", "recovery")),
		cfg:      p.Config.withDefaults(),
		clock:    clk,
		replayer: p.Replayer,
		locker:   p.Locker,
		metrics:  p.Metrics,
	}
}

// RunOnce performs a single sweep. With a locker configured only the instance
// holding the lock sweeps; the others return a zero result.
func (w *Worker) RunOnce(ctx context.Context) (paymentdomain.ReplayResult, error) {
	ctx, _ = correlation.Ensure(ctx)
	log := logger.WithContext(ctx, w.log)

	if w.locker != nil {
		token, ok, err := w.locker.TryLock(ctx, lockKey, w.cfg.LockTTL)
		if err != nil {
			w.metrics.IncSweepSkipped(obsmetrics.SweepSkippedLockErr)
			return paymentdomain.ReplayResult{}, err
		}
		if !ok {
			w.metrics.IncSweepSkipped(obsmetrics.SweepSkippedLockHeld)
			log.Debug("recovery sweep skipped, lock held elsewhere")
			return paymentdomain.ReplayResult{}, nil
		}

		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			w.keepLock(ctx, cancel, log, token)
		}()
		defer func() {
			cancel()
			<-done
			releaseCtx, cancelRelease := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancelRelease()
			if err := w.locker.Release(releaseCtx, lockKey, token); err != nil {
				log.Warn("release recovery lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	before := w.clock.Now().Add(-w.cfg.Threshold)
	result, err := w.replayer.ReplayPending(ctx, before, w.cfg.MaxAttempts, w.cfg.BatchSize)
	w.metrics.ObserveSweep(time.Since(start), result.Picked)
	for i := 0; i < result.Succeeded; i++ {
		w.metrics.IncReplayed("succeeded")
	}
	for i := 0; i < result.Failed; i++ {
		w.metrics.IncReplayed("failed")
	}
	if err != nil {
		w.metrics.IncReplayError(err)
		return result, err
	}

	if result.Picked > 0 {
		log.Info("recovery sweep finished",
			zap.Int("picked", result.Picked),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

// keepLock extends the sweep lock every third of its TTL. Losing the lock
// cancels the sweep, which stops before the next event.
func (w *Worker) keepLock(ctx context.Context, cancel context.CancelFunc, log *zap.Logger, token string) {
	ticker := time.NewTicker(max(w.cfg.LockTTL/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ok, err := w.locker.Extend(ctx, lockKey, token, w.cfg.LockTTL)
		if ctx.Err() != nil {
			return
		}
		if err != nil || !ok {
			log.Warn("recovery lock lost, stopping sweep", zap.Bool("extended", ok), zap.Error(err))
			cancel()
			return
		}
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("recovery sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
