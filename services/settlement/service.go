package settlement

import (
	"context"
	"fmt"
	"time"

	"streampay-controlplane/pkg/db/option"
	"streampay-controlplane/pkg/errutil"
	"streampay-controlplane/pkg/repository"
	"streampay-controlplane/pkg/sequence"
	"streampay-controlplane/services/catalog"
	"streampay-controlplane/services/ledger"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const requestGuardTTL = 10 * time.Second

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	rdb     *redis.Client
	codes   sequence.Generator
	ledger  *ledger.Service
	catalog *catalog.Service

	settlements repository.Repository[Settlement]
	earningsSF  singleflight.Group
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Redis   *redis.Client `optional:"true"`
	Codes   sequence.Generator
	Ledger  *ledger.Service
	Catalog *catalog.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		rdb:     p.Redis,
		codes:   p.Codes,
		ledger:  p.Ledger,
		catalog: p.Catalog,

		settlements: repository.ProvideStore[Settlement](p.DB),
	}
}

// Earnings is the creator's earnings position at one point in time.
type Earnings struct {
	CreatorAccountID string
	TotalEarnings    decimal.Decimal
	Reserved         decimal.Decimal
	Available        decimal.Decimal
}

// AvailableEarnings computes total accrued earnings minus everything reserved
// by non-FAILED settlements. Concurrent reads for the same creator collapse
// into one computation. The shared computation runs detached from the first
// caller's context so its cancellation cannot fail the collapsed readers.
func (s *Service) AvailableEarnings(ctx context.Context, creatorAccountID string) (*Earnings, error) {
	v, err, _ := s.earningsSF.Do(creatorAccountID, func() (any, error) {
		return s.computeEarnings(context.WithoutCancel(ctx), nil, creatorAccountID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Earnings), nil
}

func (s *Service) computeEarnings(ctx context.Context, tx *gorm.DB, creatorAccountID string) (*Earnings, error) {
	videos, err := s.catalog.ListByCreatorTx(ctx, tx, creatorAccountID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, video := range videos {
		total = total.Add(video.TotalEarnings)
	}

	rows, err := s.settlements.WithTrx(tx).Find(ctx, &Settlement{CreatorAccountID: creatorAccountID})
	if err != nil {
		return nil, err
	}

	reserved := decimal.Zero
	for _, row := range rows {
		if row.Status.Reserves() {
			reserved = reserved.Add(row.Amount)
		}
	}

	return &Earnings{
		CreatorAccountID: creatorAccountID,
		TotalEarnings:    total,
		Reserved:         reserved,
		Available:        total.Sub(reserved),
	}, nil
}

// RequestSettlement reserves the creator's full available earnings and records
// a PENDING settlement for that amount. The amount is recomputed inside the
// transaction with the creator's account row locked, never taken from the
// caller, so two concurrent requests cannot both reserve the same earnings and
// a stale earlier read cannot inflate the reservation. A short redis guard
// sheds obvious duplicate submissions before they reach the database.
func (s *Service) RequestSettlement(ctx context.Context, creatorAccountID string) (*Settlement, error) {
	if s.rdb != nil {
		guardKey := fmt.Sprintf("settlement:request:%s", creatorAccountID)
		ok, err := s.rdb.SetNX(ctx, guardKey, 1, requestGuardTTL).Result()
		if err == nil && !ok {
			return nil, errutil.Conflict("a settlement request for this creator is already in flight", nil)
		}
		defer s.rdb.Del(context.WithoutCancel(ctx), guardKey)
	}

	code, err := s.codes.NextSettlementCode(ctx, creatorAccountID)
	if err != nil {
		return nil, err
	}

	var settlement *Settlement
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.LockAccountTx(ctx, tx, creatorAccountID); err != nil {
			return err
		}

		earnings, err := s.computeEarnings(ctx, tx, creatorAccountID)
		if err != nil {
			return err
		}
		if !earnings.Available.IsPositive() {
			return errutil.NoFundsAvailable("no earnings available to settle")
		}

		now := time.Now().UTC()
		settlement = &Settlement{
			ID:               s.node.Generate().String(),
			Code:             code,
			CreatorAccountID: creatorAccountID,
			Amount:           earnings.Available,
			Status:           StatusPending,
			RequestedAt:      now,
			UpdatedAt:        now,
		}
		return s.settlements.WithTrx(tx).Create(ctx, settlement)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("settlement requested",
		zap.String("settlement_id", settlement.ID),
		zap.String("code", settlement.Code),
		zap.String("creator_account_id", creatorAccountID),
		zap.String("amount", settlement.Amount.String()),
	)
	return settlement, nil
}

func (s *Service) GetSettlement(ctx context.Context, settlementID string) (*Settlement, error) {
	settlement, err := s.settlements.FindOne(ctx, &Settlement{ID: settlementID})
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, errutil.NotFound("settlement not found", nil)
	}
	return settlement, nil
}

func (s *Service) ListByCreator(ctx context.Context, creatorAccountID string) ([]*Settlement, error) {
	return s.settlements.Find(ctx, &Settlement{CreatorAccountID: creatorAccountID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "requested_at",
		OrderBy: "desc",
		Allow:   map[string]bool{"requested_at": true},
	}))
}
