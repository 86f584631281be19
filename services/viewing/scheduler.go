package viewing

import (
	"context"
	"time"

	"streampay-controlplane/pkg/config"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler enqueues a stale-session sweep every Metering.SweepInterval.
type Scheduler struct {
	client *asynq.Client
	cfg    *config.Config
	cancel context.CancelFunc
}

func NewScheduler(client *asynq.Client, cfg *config.Config) *Scheduler {
	return &Scheduler{client: client, cfg: cfg}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			s.cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	interval := s.cfg.Metering.SweepInterval
	zap.L().Info("[Scheduler] started stale session sweep scheduler",
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := EnqueueSweep(s.client, s.cfg.Metering.StaleSessionAfter); err != nil {
				zap.L().Error("[Scheduler] failed to enqueue stale session sweep", zap.Error(err))
			}
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stale session sweep scheduler stopped")
			return
		}
	}
}
