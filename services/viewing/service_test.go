package viewing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"streampay-controlplane/pkg/errutil"
	"streampay-controlplane/services/catalog"
	"streampay-controlplane/services/ledger"
	"streampay-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type stubGenerator struct {
	n int
}

func (g *stubGenerator) NextSettlementCode(ctx context.Context, creatorID string) (string, error) {
	g.n++
	return fmt.Sprintf("STL-TEST-%03d", g.n), nil
}

func (g *stubGenerator) NextSessionToken(ctx context.Context) (string, error) {
	g.n++
	return fmt.Sprintf("vs_test%03d", g.n), nil
}

type fixture struct {
	viewing *Service
	ledger  *ledger.Service
	catalog *catalog.Service
	viewer  *ledger.Account
	video   *catalog.Video
}

// newFixture seeds a viewer with balance 10 and a video priced 0.01/s for 600s.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &ledger.Account{}, &ledger.LedgerEntry{}, &catalog.Video{}, &ViewSession{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	catalogSvc := catalog.NewService(catalog.ServiceParams{DB: db, Node: node, Ledger: ledgerSvc})
	viewingSvc := NewService(ServiceParams{DB: db, Node: node, Tokens: &stubGenerator{}, Ledger: ledgerSvc, Catalog: catalogSvc})

	ctx := context.Background()
	viewer, err := ledgerSvc.EnsureAccount(ctx, "0xviewer")
	require.NoError(t, err)
	_, err = ledgerSvc.Credit(ctx, viewer.ID, decimal.NewFromInt(10), ledger.KindDeposit, ledger.Ref{})
	require.NoError(t, err)

	video, err := catalogSvc.Publish(ctx, catalog.PublishInput{
		CreatorWallet:   "0xcreator",
		Title:           "intro",
		PricePerSecond:  decimal.RequireFromString("0.01"),
		DurationSeconds: 600,
	})
	require.NoError(t, err)

	return &fixture{
		viewing: viewingSvc,
		ledger:  ledgerSvc,
		catalog: catalogSvc,
		viewer:  viewer,
		video:   video,
	}
}

func (f *fixture) viewerBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	account, err := f.ledger.GetAccount(context.Background(), f.viewer.ID)
	require.NoError(t, err)
	return account.Balance
}

func TestStakeDebitsMaxCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.viewing.Stake(ctx, "0xviewer", f.video.ID)
	require.NoError(t, err)
	require.Equal(t, SessionStatusActive, result.Session.Status)
	require.True(t, result.StakedAmount.Equal(decimal.NewFromInt(6)))
	require.NotEmpty(t, result.Session.FundingEntryID)
	require.True(t, f.viewerBalance(t).Equal(decimal.NewFromInt(4)))
}

func TestStakeInsufficientFundsCreatesNoSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Price 0.02/s over 600s needs 12, viewer holds 10.
	expensive, err := f.catalog.Publish(ctx, catalog.PublishInput{
		CreatorWallet:   "0xcreator",
		Title:           "premium",
		PricePerSecond:  decimal.RequireFromString("0.02"),
		DurationSeconds: 600,
	})
	require.NoError(t, err)

	_, err = f.viewing.Stake(ctx, "0xviewer", expensive.ID)
	require.Error(t, err)
	require.Equal(t, errutil.StatusInsufficientFunds, errutil.StatusOf(err))

	sessions, err := f.viewing.sessions.Find(ctx, &ViewSession{ViewerAccountID: f.viewer.ID})
	require.NoError(t, err)
	require.Empty(t, sessions)
	require.True(t, f.viewerBalance(t).Equal(decimal.NewFromInt(10)))
}

func TestCloseChargesWatchedAndRefundsRest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staked, err := f.viewing.Stake(ctx, "0xviewer", f.video.ID)
	require.NoError(t, err)
	token := staked.Session.SessionToken

	_, err = f.viewing.Checkpoint(ctx, token, 120)
	require.NoError(t, err)
	_, err = f.viewing.Checkpoint(ctx, token, 240)
	require.NoError(t, err)

	result, err := f.viewing.Close(ctx, token, 300)
	require.NoError(t, err)
	require.True(t, result.AmountCharged.Equal(decimal.NewFromInt(3)))
	require.True(t, result.RefundAmount.Equal(decimal.NewFromInt(3)))
	require.True(t, result.AmountCharged.Add(result.RefundAmount).Equal(staked.StakedAmount))
	require.Equal(t, SessionStatusCompleted, result.Session.Status)
	require.NotNil(t, result.Session.EndTime)

	require.True(t, f.viewerBalance(t).Equal(decimal.NewFromInt(7)))

	video, err := f.catalog.GetVideo(ctx, f.video.ID)
	require.NoError(t, err)
	require.True(t, video.TotalEarnings.Equal(decimal.NewFromInt(3)))

	require.NoError(t, f.ledger.VerifyChain(ctx, f.viewer.ID))
}

func TestCloseZeroWatchedRefundsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staked, err := f.viewing.Stake(ctx, "0xviewer", f.video.ID)
	require.NoError(t, err)

	result, err := f.viewing.Close(ctx, staked.Session.SessionToken, 0)
	require.NoError(t, err)
	require.True(t, result.AmountCharged.IsZero())
	require.True(t, result.RefundAmount.Equal(decimal.NewFromInt(6)))
	require.True(t, f.viewerBalance(t).Equal(decimal.NewFromInt(10)))
}

func TestCloseClampsChargeToStake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staked, err := f.viewing.Stake(ctx, "0xviewer", f.video.ID)
	require.NoError(t, err)

	// Reported seconds beyond the video duration cannot charge more than the
	// stake, and a zero refund writes no refund entry.
	result, err := f.viewing.Close(ctx, staked.Session.SessionToken, 10_000)
	require.NoError(t, err)
	require.True(t, result.AmountCharged.Equal(decimal.NewFromInt(6)))
	require.True(t, result.RefundAmount.IsZero())
	require.True(t, f.viewerBalance(t).Equal(decimal.NewFromInt(4)))

	entries, err := f.ledger.ListEntries(ctx, f.viewer.ID)
	require.NoError(t, err)
	for _, entry := range entries {
		require.NotEqual(t, ledger.KindRefund, entry.Kind)
	}
}

func TestDoubleCloseRejectedWithoutBalanceChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staked, err := f.viewing.Stake(ctx, "0xviewer", f.video.ID)
	require.NoError(t, err)
	token := staked.Session.SessionToken

	_, err = f.viewing.Close(ctx, token, 100)
	require.NoError(t, err)
	balanceAfterFirst := f.viewerBalance(t)

	_, err = f.viewing.Close(ctx, token, 100)
	require.Error(t, err)
	require.Equal(t, errutil.StatusInvalidState, errutil.StatusOf(err))
	require.True(t, f.viewerBalance(t).Equal(balanceAfterFirst))
}

func TestCheckpointRegressionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staked, err := f.viewing.Stake(ctx, "0xviewer", f.video.ID)
	require.NoError(t, err)
	token := staked.Session.SessionToken

	_, err = f.viewing.Checkpoint(ctx, token, 200)
	require.NoError(t, err)

	_, err = f.viewing.Checkpoint(ctx, token, 150)
	require.Error(t, err)
	require.Equal(t, errutil.StatusInvalidState, errutil.StatusOf(err))
}

func TestCloseBelowLastCheckpointChargesCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staked, err := f.viewing.Stake(ctx, "0xviewer", f.video.ID)
	require.NoError(t, err)
	token := staked.Session.SessionToken

	_, err = f.viewing.Checkpoint(ctx, token, 200)
	require.NoError(t, err)

	result, err := f.viewing.Close(ctx, token, 50)
	require.NoError(t, err)
	require.Equal(t, int64(200), result.Session.WatchedSeconds)
	require.True(t, result.AmountCharged.Equal(decimal.NewFromInt(2)))
}

func TestSweepStaleClosesWithCheckpointedSeconds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staked, err := f.viewing.Stake(ctx, "0xviewer", f.video.ID)
	require.NoError(t, err)
	token := staked.Session.SessionToken

	_, err = f.viewing.Checkpoint(ctx, token, 100)
	require.NoError(t, err)

	// Age the checkpoint past the cutoff.
	require.NoError(t, f.viewing.sessions.Update(ctx, staked.Session.ID, map[string]any{
		"last_checkpoint_at": time.Now().UTC().Add(-time.Hour),
	}))

	closed, err := f.viewing.SweepStale(ctx, 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, closed)

	session, err := f.viewing.GetByToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, SessionStatusAborted, session.Status)
	require.True(t, session.AmountCharged.Equal(decimal.NewFromInt(1)))
	require.True(t, f.viewerBalance(t).Equal(decimal.NewFromInt(9)))
}

func TestSweepCountsOnlySessionsItClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staked, err := f.viewing.Stake(ctx, "0xviewer", f.video.ID)
	require.NoError(t, err)
	token := staked.Session.SessionToken

	_, err = f.viewing.Close(ctx, token, 100)
	require.NoError(t, err)
	balance := f.viewerBalance(t)

	// The session left ACTIVE before the sweep could lock it is not a close.
	swept, err := f.viewing.sweepOne(ctx, token)
	require.NoError(t, err)
	require.False(t, swept)

	session, err := f.viewing.GetByToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, SessionStatusCompleted, session.Status)
	require.True(t, f.viewerBalance(t).Equal(balance))
}

func TestSweepStaleSkipsFreshSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.viewing.Stake(ctx, "0xviewer", f.video.ID)
	require.NoError(t, err)

	closed, err := f.viewing.SweepStale(ctx, 15*time.Minute)
	require.NoError(t, err)
	require.Zero(t, closed)
}

func TestSettleViewerToCreatorMovesFundsAndAccrues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creator, err := f.ledger.GetAccountByWallet(ctx, "0xcreator")
	require.NoError(t, err)

	err = f.viewing.SettleViewerToCreator(ctx, f.viewer.ID, creator.ID, decimal.RequireFromString("2.5"), f.video.ID)
	require.NoError(t, err)

	require.True(t, f.viewerBalance(t).Equal(decimal.RequireFromString("7.5")))

	creator, err = f.ledger.GetAccount(ctx, creator.ID)
	require.NoError(t, err)
	require.True(t, creator.Balance.Equal(decimal.RequireFromString("2.5")))

	video, err := f.catalog.GetVideo(ctx, f.video.ID)
	require.NoError(t, err)
	require.True(t, video.TotalEarnings.Equal(decimal.RequireFromString("2.5")))
}
