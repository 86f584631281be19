package viewing

import (
	"context"
	"time"

	"streampay-controlplane/pkg/db/option"
	"streampay-controlplane/pkg/errutil"
	"streampay-controlplane/pkg/repository"
	"streampay-controlplane/pkg/sequence"
	"streampay-controlplane/services/catalog"
	"streampay-controlplane/services/ledger"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	tokens   sequence.Generator
	ledger   *ledger.Service
	catalog  *catalog.Service
	sessions repository.Repository[ViewSession]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Tokens  sequence.Generator
	Ledger  *ledger.Service
	Catalog *catalog.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		tokens:   p.Tokens,
		ledger:   p.Ledger,
		catalog:  p.Catalog,
		sessions: repository.ProvideStore[ViewSession](p.DB),
	}
}

type StakeResult struct {
	Session      *ViewSession
	StakedAmount decimal.Decimal
}

// Stake debits the full possible cost of the video from the viewer and opens
// an ACTIVE session. On insufficient funds nothing is written: the debit is a
// precondition, not a side effect.
func (s *Service) Stake(ctx context.Context, viewerWallet, videoID string) (*StakeResult, error) {
	viewer, err := s.ledger.EnsureAccount(ctx, viewerWallet)
	if err != nil {
		return nil, err
	}

	video, err := s.catalog.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	maxStake := video.PricePerSecond.Mul(decimal.NewFromInt(video.DurationSeconds))
	if !maxStake.IsPositive() {
		return nil, errutil.ValidationFailed("video has no meterable duration", nil)
	}

	token, err := s.tokens.NextSessionToken(ctx)
	if err != nil {
		return nil, err
	}

	sessionID := s.node.Generate().String()
	now := time.Now().UTC()
	session := &ViewSession{
		ID:               sessionID,
		SessionToken:     token,
		ViewerAccountID:  viewer.ID,
		VideoID:          videoID,
		StakedAmount:     maxStake,
		WatchedSeconds:   0,
		AmountCharged:    decimal.Zero,
		Status:           SessionStatusActive,
		StartTime:        now,
		LastCheckpointAt: now,
		UpdatedAt:        now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		entry, err := s.ledger.DebitTx(ctx, tx, viewer.ID, maxStake, ledger.KindStake, ledger.Ref{
			VideoID:   videoID,
			SessionID: sessionID,
		})
		if err != nil {
			return err
		}

		session.FundingEntryID = entry.ID
		return s.sessions.WithTrx(tx).Create(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("session staked",
		zap.String("session_id", session.ID),
		zap.String("video_id", videoID),
		zap.String("staked_amount", maxStake.String()),
	)

	return &StakeResult{Session: session, StakedAmount: maxStake}, nil
}

// Checkpoint records watch progress. Watched seconds are monotonic
// non-decreasing for the life of the session; a regression is a client bug and
// gets rejected rather than silently shrinking the eventual charge.
func (s *Service) Checkpoint(ctx context.Context, sessionToken string, watchedSeconds int64) (*ViewSession, error) {
	if watchedSeconds < 0 {
		return nil, errutil.ValidationFailed("watched_seconds cannot be negative", nil)
	}

	var session *ViewSession
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.lockByToken(ctx, tx, sessionToken)
		if err != nil {
			return err
		}
		if session.Status != SessionStatusActive {
			return errutil.InvalidState("session is not active")
		}
		if watchedSeconds < session.WatchedSeconds {
			return errutil.InvalidState("watched_seconds regressed")
		}

		now := time.Now().UTC()
		session.WatchedSeconds = watchedSeconds
		session.LastCheckpointAt = now
		session.UpdatedAt = now
		return s.sessions.WithTrx(tx).Update(ctx, session.ID, map[string]any{
			"watched_seconds":    watchedSeconds,
			"last_checkpoint_at": now,
			"updated_at":         now,
		})
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

type CloseResult struct {
	Session       *ViewSession
	AmountCharged decimal.Decimal
	RefundAmount  decimal.Decimal
}

// Close settles an ACTIVE session: charge for the watched seconds, refund the
// rest of the stake, accrue the charge to the video. One transaction; a second
// Close is rejected, never re-applied.
func (s *Service) Close(ctx context.Context, sessionToken string, watchedSeconds int64) (*CloseResult, error) {
	if watchedSeconds < 0 {
		return nil, errutil.ValidationFailed("watched_seconds cannot be negative", nil)
	}

	var result *CloseResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		session, err := s.lockByToken(ctx, tx, sessionToken)
		if err != nil {
			return err
		}

		var cerr error
		result, cerr = s.closeLocked(ctx, tx, session, watchedSeconds, SessionStatusCompleted)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// closeLocked expects the session row to be locked by the surrounding
// transaction.
func (s *Service) closeLocked(ctx context.Context, tx *gorm.DB, session *ViewSession, watchedSeconds int64, finalStatus SessionStatus) (*CloseResult, error) {
	if session.Status != SessionStatusActive {
		return nil, errutil.InvalidState("session already closed")
	}

	// Monotonicity holds through Close: a report below the last checkpoint
	// cannot shrink the charge.
	if watchedSeconds < session.WatchedSeconds {
		watchedSeconds = session.WatchedSeconds
	}

	video, err := s.catalog.GetVideoTx(ctx, tx, session.VideoID)
	if err != nil {
		return nil, err
	}

	// The staked amount comes from the funding entry, not from a "latest
	// stake for this viewer/video" lookup.
	fundingEntry, err := s.ledger.GetEntryTx(ctx, tx, session.FundingEntryID)
	if err != nil {
		return nil, err
	}
	stakedAmount := fundingEntry.Amount

	charge := video.PricePerSecond.Mul(decimal.NewFromInt(watchedSeconds))
	if charge.GreaterThan(stakedAmount) {
		charge = stakedAmount
	}
	if charge.IsNegative() {
		charge = decimal.Zero
	}
	refund := stakedAmount.Sub(charge)

	if refund.IsPositive() {
		if _, err := s.ledger.CreditTx(ctx, tx, session.ViewerAccountID, refund, ledger.KindRefund, ledger.Ref{
			VideoID:   session.VideoID,
			SessionID: session.ID,
		}); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	if err := s.sessions.WithTrx(tx).Update(ctx, session.ID, map[string]any{
		"status":          finalStatus,
		"watched_seconds": watchedSeconds,
		"amount_charged":  charge,
		"end_time":        now,
		"updated_at":      now,
	}); err != nil {
		return nil, err
	}

	if err := s.catalog.AccrueEarningsTx(ctx, tx, session.VideoID, charge); err != nil {
		return nil, err
	}

	session.Status = finalStatus
	session.WatchedSeconds = watchedSeconds
	session.AmountCharged = charge
	session.EndTime = &now
	session.UpdatedAt = now

	return &CloseResult{
		Session:       session,
		AmountCharged: charge,
		RefundAmount:  refund,
	}, nil
}

// SettleViewerToCreator moves settled value between two ledger accounts and
// accrues it to the video, all-or-nothing.
func (s *Service) SettleViewerToCreator(ctx context.Context, viewerAccountID, creatorAccountID string, amount decimal.Decimal, videoID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, _, err := s.ledger.AtomicTransferTx(ctx, tx, viewerAccountID, creatorAccountID, amount, ledger.Ref{
			VideoID: videoID,
		}); err != nil {
			return err
		}
		return s.catalog.AccrueEarningsTx(ctx, tx, videoID, amount)
	})
}

// SweepStale closes ACTIVE sessions whose last checkpoint is older than
// staleAfter, charging the last checkpointed progress. This is the abort path:
// staked funds never stay stranded behind a crashed player.
func (s *Service) SweepStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)

	stale, err := s.sessions.Find(ctx, &ViewSession{Status: SessionStatusActive},
		option.ApplyOperator(option.Condition{Field: "last_checkpoint_at", Operator: option.LT, Value: cutoff}),
		option.WithSortBy(option.QuerySortBy{SortBy: "last_checkpoint_at", OrderBy: "asc", Allow: map[string]bool{"last_checkpoint_at": true}}),
	)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, candidate := range stale {
		swept, err := s.sweepOne(ctx, candidate.SessionToken)
		if err != nil {
			zap.L().Error("failed to sweep stale session",
				zap.String("session_id", candidate.ID),
				zap.Error(err),
			)
			continue
		}
		if swept {
			closed++
		}
	}

	if closed > 0 {
		zap.L().Info("swept stale sessions", zap.Int("closed", closed))
	}
	return closed, nil
}

// sweepOne aborts a single session under lock. It reports false when the
// session was closed by the viewer between the scan and the lock, so the
// caller counts only sessions this sweep actually closed.
func (s *Service) sweepOne(ctx context.Context, sessionToken string) (bool, error) {
	swept := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		session, err := s.lockByToken(ctx, tx, sessionToken)
		if err != nil {
			return err
		}
		if session.Status != SessionStatusActive {
			return nil
		}
		if _, err := s.closeLocked(ctx, tx, session, session.WatchedSeconds, SessionStatusAborted); err != nil {
			return err
		}
		swept = true
		return nil
	})
	return swept, err
}

func (s *Service) GetByToken(ctx context.Context, sessionToken string) (*ViewSession, error) {
	session, err := s.sessions.FindOne(ctx, &ViewSession{SessionToken: sessionToken})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errutil.NotFound("session not found", nil)
	}
	return session, nil
}

func (s *Service) lockByToken(ctx context.Context, tx *gorm.DB, sessionToken string) (*ViewSession, error) {
	session, err := s.sessions.WithTrx(tx).FindOne(ctx, &ViewSession{SessionToken: sessionToken}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errutil.NotFound("session not found", nil)
	}
	return session, nil
}
