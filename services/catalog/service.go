package catalog

import (
	"context"
	"encoding/json"
	"time"

	"streampay-controlplane/pkg/db/option"
	"streampay-controlplane/pkg/errutil"
	"streampay-controlplane/pkg/repository"
	"streampay-controlplane/pkg/taskname"
	"streampay-controlplane/services/ledger"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	asynq  *asynq.Client
	ledger *ledger.Service

	videos repository.Repository[Video]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Asynq  *asynq.Client `optional:"true"`
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		asynq:  p.Asynq,
		ledger: p.Ledger,

		videos: repository.ProvideStore[Video](p.DB),
	}
}

type PublishInput struct {
	CreatorWallet   string
	Title           string
	PricePerSecond  decimal.Decimal
	DurationSeconds int64
	SourcePath      string
}

// Publish registers a video for metering. The creator account is created
// lazily; transcoding is handed to the pipeline workers via asynq.
func (s *Service) Publish(ctx context.Context, in PublishInput) (*Video, error) {
	if in.Title == "" {
		return nil, errutil.ValidationFailed("title is required", nil)
	}
	if !in.PricePerSecond.IsPositive() {
		return nil, errutil.ValidationFailed("price_per_second must be positive", nil)
	}
	if in.DurationSeconds <= 0 {
		return nil, errutil.ValidationFailed("duration_seconds must be positive", nil)
	}

	creator, err := s.ledger.EnsureAccount(ctx, in.CreatorWallet)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	video := &Video{
		ID:               s.node.Generate().String(),
		CreatorAccountID: creator.ID,
		Title:            in.Title,
		PricePerSecond:   in.PricePerSecond,
		DurationSeconds:  in.DurationSeconds,
		TotalEarnings:    decimal.Zero,
		Status:           VideoStatusProcessing,
		SourcePath:       in.SourcePath,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.videos.Create(ctx, video); err != nil {
		return nil, err
	}

	if s.asynq != nil {
		payload, _ := json.Marshal(TranscodePayload{VideoID: video.ID, InputPath: in.SourcePath})
		if _, err := s.asynq.EnqueueContext(ctx, asynq.NewTask(taskname.VideoTranscode, payload), asynq.Queue("low")); err != nil {
			// Metering does not depend on renditions; the pipeline has its own
			// reconciliation for missed enqueues.
			zap.L().Warn("failed to enqueue transcode task", zap.String("video_id", video.ID), zap.Error(err))
		}
	}

	return video, nil
}

func (s *Service) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	video, err := s.videos.FindOne(ctx, &Video{ID: videoID})
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, errutil.NotFound("video not found", nil)
	}
	return video, nil
}

// GetVideoTx reads the video through the caller's transaction.
func (s *Service) GetVideoTx(ctx context.Context, tx *gorm.DB, videoID string) (*Video, error) {
	video, err := s.videos.WithTrx(tx).FindOne(ctx, &Video{ID: videoID})
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, errutil.NotFound("video not found", nil)
	}
	return video, nil
}

func (s *Service) ListByCreator(ctx context.Context, creatorAccountID string) ([]*Video, error) {
	return s.videos.Find(ctx, &Video{CreatorAccountID: creatorAccountID})
}

// ListByCreatorTx is the transactional form of ListByCreator.
func (s *Service) ListByCreatorTx(ctx context.Context, tx *gorm.DB, creatorAccountID string) ([]*Video, error) {
	return s.videos.WithTrx(tx).Find(ctx, &Video{CreatorAccountID: creatorAccountID})
}

func (s *Service) MarkReady(ctx context.Context, videoID string) error {
	return s.videos.Update(ctx, videoID, map[string]any{
		"status":     VideoStatusReady,
		"updated_at": time.Now().UTC(),
	})
}

// AccrueEarningsTx adds amount to the video's earnings accumulator inside the
// caller's transaction, with the row locked so concurrent closes serialize.
func (s *Service) AccrueEarningsTx(ctx context.Context, tx *gorm.DB, videoID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}

	video, err := s.videos.WithTrx(tx).FindOne(ctx, &Video{ID: videoID}, option.WithLockingUpdate())
	if err != nil {
		return err
	}
	if video == nil {
		return errutil.NotFound("video not found", nil)
	}

	return s.videos.WithTrx(tx).Update(ctx, videoID, map[string]any{
		"total_earnings": video.TotalEarnings.Add(amount),
		"updated_at":     time.Now().UTC(),
	})
}
