package recovery

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("recovery",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(StartWorker),
)

func StartWorker(lc fx.Lifecycle, cfg Config, worker *Worker) {
	if !cfg.Enabled {
		return
	}

	var cancel context.CancelFunc
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go func() {
				defer close(done)
				worker.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
