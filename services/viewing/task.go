package viewing

import (
	"context"
	"encoding/json"
	"time"

	"streampay-controlplane/pkg/config"
	"streampay-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Task owns the background side of session metering. The sweep reclaims
// stakes from sessions whose player stopped checkpointing.
type Task struct {
	service *Service
	cfg     *config.Config
}

func NewTask(svc *Service, cfg *config.Config) *Task {
	return &Task{service: svc, cfg: cfg}
}

func (t *Task) HandleSweepStale(ctx context.Context, task *asynq.Task) error {
	var payload SweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	staleAfter := payload.StaleAfter
	if staleAfter <= 0 {
		staleAfter = t.cfg.Metering.StaleSessionAfter
	}

	start := time.Now()
	closed, err := t.service.SweepStale(ctx, staleAfter)
	if err != nil {
		return err
	}

	zap.L().Info("stale session sweep finished",
		zap.Int("closed", closed),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// EnqueueSweep schedules one sweep run on the default queue.
func EnqueueSweep(client *asynq.Client, staleAfter time.Duration) error {
	payload, err := json.Marshal(SweepPayload{StaleAfter: staleAfter})
	if err != nil {
		return err
	}
	_, err = client.Enqueue(asynq.NewTask(taskname.ViewingSweepStale, payload), asynq.Queue("default"))
	return err
}
