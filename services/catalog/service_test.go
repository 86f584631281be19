package catalog

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"streampay-controlplane/pkg/errutil"
	"streampay-controlplane/services/ledger"
	"streampay-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *ledger.Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &ledger.Account{}, &ledger.LedgerEntry{}, &Video{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	svc := NewService(ServiceParams{DB: db, Node: node, Ledger: ledgerSvc})
	return svc, ledgerSvc, db
}

func TestPublishCreatesCreatorAccountLazily(t *testing.T) {
	svc, ledgerSvc, _ := newTestService(t)
	ctx := context.Background()

	video, err := svc.Publish(ctx, PublishInput{
		CreatorWallet:   "0xCreator",
		Title:           "intro",
		PricePerSecond:  decimal.RequireFromString("0.01"),
		DurationSeconds: 600,
	})
	require.NoError(t, err)
	require.Equal(t, VideoStatusProcessing, video.Status)
	require.True(t, video.TotalEarnings.IsZero())

	creator, err := ledgerSvc.GetAccountByWallet(ctx, "0xcreator")
	require.NoError(t, err)
	require.Equal(t, creator.ID, video.CreatorAccountID)
}

func TestPublishRejectsNonPositivePrice(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Publish(context.Background(), PublishInput{
		CreatorWallet:   "0xcreator",
		Title:           "intro",
		PricePerSecond:  decimal.Zero,
		DurationSeconds: 600,
	})
	require.Error(t, err)
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestAccrueEarningsAccumulates(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	video, err := svc.Publish(ctx, PublishInput{
		CreatorWallet:   "0xcreator",
		Title:           "intro",
		PricePerSecond:  decimal.RequireFromString("0.01"),
		DurationSeconds: 600,
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.AccrueEarningsTx(ctx, tx, video.ID, decimal.RequireFromString("1.25"))
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.AccrueEarningsTx(ctx, tx, video.ID, decimal.RequireFromString("0.75"))
	})
	require.NoError(t, err)

	video, err = svc.GetVideo(ctx, video.ID)
	require.NoError(t, err)
	require.True(t, video.TotalEarnings.Equal(decimal.NewFromInt(2)))
}

func TestMarkReady(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	video, err := svc.Publish(ctx, PublishInput{
		CreatorWallet:   "0xcreator",
		Title:           "intro",
		PricePerSecond:  decimal.RequireFromString("0.01"),
		DurationSeconds: 600,
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkReady(ctx, video.ID))

	video, err = svc.GetVideo(ctx, video.ID)
	require.NoError(t, err)
	require.Equal(t, VideoStatusReady, video.Status)
}
