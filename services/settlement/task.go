package settlement

import (
	"context"
	"encoding/json"
	"time"

	"streampay-controlplane/pkg/config"
	"streampay-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Task struct {
	processor *Processor
	cfg       *config.Config
}

func NewTask(processor *Processor, cfg *config.Config) *Task {
	return &Task{processor: processor, cfg: cfg}
}

func (t *Task) HandleProcessPending(ctx context.Context, task *asynq.Task) error {
	var payload ProcessPendingPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	batchSize := payload.BatchSize
	if batchSize <= 0 {
		batchSize = t.cfg.Settlement.BatchSize
	}

	start := time.Now()
	completed, err := t.processor.ProcessPending(ctx, batchSize)
	if err != nil {
		return err
	}

	zap.L().Info("settlement dispatch run finished",
		zap.Int("completed", completed),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// EnqueueProcessPending schedules one dispatch run. Payouts move real money,
// so the task rides the critical queue.
func EnqueueProcessPending(client *asynq.Client, batchSize int) error {
	payload, err := json.Marshal(ProcessPendingPayload{BatchSize: batchSize})
	if err != nil {
		return err
	}
	_, err = client.Enqueue(asynq.NewTask(taskname.SettlementProcessPending, payload), asynq.Queue("critical"))
	return err
}
