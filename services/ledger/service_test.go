package ledger

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"streampay-controlplane/pkg/errutil"
	"streampay-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Account{}, &LedgerEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestEnsureAccountNormalizesAndReuses(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.EnsureAccount(ctx, "  0xABCDef  ")
	require.NoError(t, err)
	require.Equal(t, "0xabcdef", first.WalletAddress)
	require.True(t, first.Balance.IsZero())

	second, err := svc.EnsureAccount(ctx, "0xAbCdEf")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestCreditRecordsBalanceChain(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	account, err := svc.EnsureAccount(ctx, "0xviewer")
	require.NoError(t, err)

	entry, err := svc.Credit(ctx, account.ID, decimal.RequireFromString("10.5"), KindDeposit, Ref{})
	require.NoError(t, err)
	require.True(t, entry.BalanceBefore.IsZero())
	require.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("10.5")))

	account, err = svc.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, account.Balance.Equal(decimal.RequireFromString("10.5")))
}

func TestDebitInsufficientFundsLeavesNoTrace(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	account, err := svc.EnsureAccount(ctx, "0xviewer")
	require.NoError(t, err)

	_, err = svc.Credit(ctx, account.ID, decimal.NewFromInt(5), KindDeposit, Ref{})
	require.NoError(t, err)

	_, err = svc.Debit(ctx, account.ID, decimal.NewFromInt(6), KindStake, Ref{})
	require.Error(t, err)
	require.Equal(t, errutil.StatusInsufficientFunds, errutil.StatusOf(err))

	entries, err := svc.ListEntries(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	account, err = svc.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, account.Balance.Equal(decimal.NewFromInt(5)))
}

func TestAtomicTransferMovesBothSides(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	from, err := svc.EnsureAccount(ctx, "0xviewer")
	require.NoError(t, err)
	to, err := svc.EnsureAccount(ctx, "0xcreator")
	require.NoError(t, err)

	_, err = svc.Credit(ctx, from.ID, decimal.NewFromInt(20), KindDeposit, Ref{})
	require.NoError(t, err)

	out, in, err := svc.AtomicTransfer(ctx, from.ID, to.ID, decimal.RequireFromString("7.25"), Ref{VideoID: "v1"})
	require.NoError(t, err)
	require.Equal(t, KindTransferOut, out.Kind)
	require.Equal(t, KindTransferIn, in.Kind)

	from, err = svc.GetAccount(ctx, from.ID)
	require.NoError(t, err)
	require.True(t, from.Balance.Equal(decimal.RequireFromString("12.75")))

	to, err = svc.GetAccount(ctx, to.ID)
	require.NoError(t, err)
	require.True(t, to.Balance.Equal(decimal.RequireFromString("7.25")))
}

func TestAtomicTransferInsufficientFundsRollsBack(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	from, err := svc.EnsureAccount(ctx, "0xviewer")
	require.NoError(t, err)
	to, err := svc.EnsureAccount(ctx, "0xcreator")
	require.NoError(t, err)

	_, _, err = svc.AtomicTransfer(ctx, from.ID, to.ID, decimal.NewFromInt(1), Ref{})
	require.Error(t, err)
	require.Equal(t, errutil.StatusInsufficientFunds, errutil.StatusOf(err))

	toEntries, err := svc.ListEntries(ctx, to.ID)
	require.NoError(t, err)
	require.Empty(t, toEntries)
}

func TestDuplicateExternalRefRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	account, err := svc.EnsureAccount(ctx, "0xviewer")
	require.NoError(t, err)

	_, err = svc.Credit(ctx, account.ID, decimal.NewFromInt(10), KindDeposit, Ref{ExternalRef: "pay-1"})
	require.NoError(t, err)

	_, err = svc.Credit(ctx, account.ID, decimal.NewFromInt(10), KindDeposit, Ref{ExternalRef: "pay-1"})
	require.Error(t, err)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	account, err = svc.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, account.Balance.Equal(decimal.NewFromInt(10)))
}

func TestVerifyChainValid(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	account, err := svc.EnsureAccount(ctx, "0xviewer")
	require.NoError(t, err)

	_, err = svc.Credit(ctx, account.ID, decimal.NewFromInt(100), KindDeposit, Ref{})
	require.NoError(t, err)
	_, err = svc.Debit(ctx, account.ID, decimal.NewFromInt(40), KindStake, Ref{})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, account.ID, decimal.NewFromInt(15), KindRefund, Ref{})
	require.NoError(t, err)

	require.NoError(t, svc.VerifyChain(ctx, account.ID))
}

func TestVerifyChainViolationFreezesAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	account, err := svc.EnsureAccount(ctx, "0xviewer")
	require.NoError(t, err)

	entry, err := svc.Credit(ctx, account.ID, decimal.NewFromInt(100), KindDeposit, Ref{})
	require.NoError(t, err)

	// Corrupt the log behind the service's back.
	require.NoError(t, svc.entries.Update(ctx, entry.ID, map[string]any{
		"balance_after": decimal.NewFromInt(150),
	}))

	err = svc.VerifyChain(ctx, account.ID)
	require.Error(t, err)
	require.Equal(t, errutil.StatusConsistencyViolation, errutil.StatusOf(err))

	account, err = svc.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, account.Frozen)

	_, err = svc.Credit(ctx, account.ID, decimal.NewFromInt(1), KindDeposit, Ref{})
	require.Error(t, err)
	require.Equal(t, errutil.StatusConsistencyViolation, errutil.StatusOf(err))
}

func TestListEntriesReconstructsBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	account, err := svc.EnsureAccount(ctx, "0xviewer")
	require.NoError(t, err)

	amounts := []string{"3.000001", "1.5", "0.499999"}
	for _, a := range amounts {
		_, err = svc.Credit(ctx, account.ID, decimal.RequireFromString(a), KindDeposit, Ref{})
		require.NoError(t, err)
	}
	_, err = svc.Debit(ctx, account.ID, decimal.NewFromInt(2), KindStake, Ref{})
	require.NoError(t, err)

	entries, err := svc.ListEntries(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	running := decimal.Zero
	for _, entry := range entries {
		require.True(t, entry.BalanceBefore.Equal(running))
		if entry.Kind.Credits() {
			running = running.Add(entry.Amount)
		} else {
			running = running.Sub(entry.Amount)
		}
		require.True(t, entry.BalanceAfter.Equal(running))
		require.False(t, running.IsNegative())
	}

	account, err = svc.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, account.Balance.Equal(running))
	require.True(t, running.Equal(decimal.RequireFromString("3.000000")))
}
