package ledger

import (
	"context"
	"strings"
	"time"

	"streampay-controlplane/pkg/db/option"
	"streampay-controlplane/pkg/errutil"
	"streampay-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("streampay-controlplane/services/ledger")

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	accounts repository.Repository[Account]
	entries  repository.Repository[LedgerEntry]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		accounts: repository.ProvideStore[Account](p.DB),
		entries:  repository.ProvideStore[LedgerEntry](p.DB),
	}
}

// EnsureAccount returns the account for walletAddress, creating it with a zero
// balance on first sight. Addresses are case-normalized.
func (s *Service) EnsureAccount(ctx context.Context, walletAddress string) (*Account, error) {
	walletAddress = strings.ToLower(strings.TrimSpace(walletAddress))
	if walletAddress == "" {
		return nil, errutil.BadRequest("wallet address is required", nil)
	}

	account, err := s.accounts.FindOne(ctx, &Account{WalletAddress: walletAddress})
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	now := time.Now().UTC()
	account = &Account{
		ID:            s.node.Generate().String(),
		WalletAddress: walletAddress,
		Balance:       decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		// Lost a race against a concurrent first deposit; the unique index on
		// wallet_address makes the loser re-read.
		existing, ferr := s.accounts.FindOne(ctx, &Account{WalletAddress: walletAddress})
		if ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	account, err := s.accounts.FindOne(ctx, &Account{ID: accountID})
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errutil.NotFound("account not found", nil)
	}
	return account, nil
}

func (s *Service) GetAccountByWallet(ctx context.Context, walletAddress string) (*Account, error) {
	walletAddress = strings.ToLower(strings.TrimSpace(walletAddress))
	account, err := s.accounts.FindOne(ctx, &Account{WalletAddress: walletAddress})
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errutil.NotFound("account not found", nil)
	}
	return account, nil
}

// Credit appends a credit entry and bumps the balance in one transaction.
func (s *Service) Credit(ctx context.Context, accountID string, amount decimal.Decimal, kind EntryKind, ref Ref) (*LedgerEntry, error) {
	var entry *LedgerEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.CreditTx(ctx, tx, accountID, amount, kind, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit appends a debit entry and lowers the balance in one transaction. It
// fails with insufficient-funds when the balance cannot cover amount; nothing
// is written in that case.
func (s *Service) Debit(ctx context.Context, accountID string, amount decimal.Decimal, kind EntryKind, ref Ref) (*LedgerEntry, error) {
	var entry *LedgerEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.DebitTx(ctx, tx, accountID, amount, kind, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// AtomicTransfer moves amount between two accounts. Both sides commit or
// neither does.
func (s *Service) AtomicTransfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, ref Ref) (*LedgerEntry, *LedgerEntry, error) {
	ctx, span := tracer.Start(ctx, "ledger.AtomicTransfer")
	defer span.End()

	var out, in *LedgerEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		out, in, err = s.AtomicTransferTx(ctx, tx, fromID, toID, amount, ref)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

// CreditTx is the composable form of Credit for callers that own the
// surrounding transaction.
func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, accountID string, amount decimal.Decimal, kind EntryKind, ref Ref) (*LedgerEntry, error) {
	if !kind.Credits() {
		return nil, errutil.BadRequest("entry kind does not credit", nil)
	}
	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	return s.appendEntry(ctx, tx, account, amount, kind, ref, account.Balance.Add(amount))
}

// DebitTx is the composable form of Debit.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, accountID string, amount decimal.Decimal, kind EntryKind, ref Ref) (*LedgerEntry, error) {
	if kind.Credits() {
		return nil, errutil.BadRequest("entry kind does not debit", nil)
	}
	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Balance.LessThan(amount) {
		return nil, errutil.InsufficientFunds("balance cannot cover debit")
	}
	return s.appendEntry(ctx, tx, account, amount, kind, ref, account.Balance.Sub(amount))
}

// AtomicTransferTx locks both accounts in ID order so two opposing transfers
// cannot deadlock, then debits the source and credits the destination.
func (s *Service) AtomicTransferTx(ctx context.Context, tx *gorm.DB, fromID, toID string, amount decimal.Decimal, ref Ref) (*LedgerEntry, *LedgerEntry, error) {
	if fromID == toID {
		return nil, nil, errutil.BadRequest("cannot transfer to the same account", nil)
	}

	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}
	if _, err := s.lockAccount(ctx, tx, first); err != nil {
		return nil, nil, err
	}
	if _, err := s.lockAccount(ctx, tx, second); err != nil {
		return nil, nil, err
	}

	out, err := s.DebitTx(ctx, tx, fromID, amount, KindTransferOut, ref)
	if err != nil {
		return nil, nil, err
	}
	in, err := s.CreditTx(ctx, tx, toID, amount, KindTransferIn, ref)
	if err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

// LockAccountTx takes the account's row lock for the caller's transaction.
// Callers use it as a per-account serialization point for multi-table
// invariants that hang off the account.
func (s *Service) LockAccountTx(ctx context.Context, tx *gorm.DB, accountID string) (*Account, error) {
	return s.lockAccount(ctx, tx, accountID)
}

func (s *Service) lockAccount(ctx context.Context, tx *gorm.DB, accountID string) (*Account, error) {
	account, err := s.accounts.WithTrx(tx).FindOne(ctx, &Account{ID: accountID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errutil.NotFound("account not found", nil)
	}
	if account.Frozen {
		return nil, errutil.ConsistencyViolation("account is frozen pending operator review")
	}
	return account, nil
}

func (s *Service) appendEntry(ctx context.Context, tx *gorm.DB, account *Account, amount decimal.Decimal, kind EntryKind, ref Ref, balanceAfter decimal.Decimal) (*LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, errutil.BadRequest("amount must be positive", nil)
	}

	var externalRef *string
	if ref.ExternalRef != "" {
		// Pre-check for a replayed oracle confirmation; the unique index on
		// external_ref is the hard guarantee behind it.
		existing, err := s.entries.WithTrx(tx).FindOne(ctx, &LedgerEntry{ExternalRef: &ref.ExternalRef})
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, errutil.Conflict("external reference already recorded", nil)
		}
		externalRef = &ref.ExternalRef
	}

	entry := &LedgerEntry{
		ID:            s.node.Generate().String(),
		AccountID:     account.ID,
		Kind:          kind,
		Amount:        amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  balanceAfter,
		VideoID:       ref.VideoID,
		SessionID:     ref.SessionID,
		ExternalRef:   externalRef,
		Metadata:      ref.Metadata,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.entries.WithTrx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.accounts.WithTrx(tx).Update(ctx, account.ID, map[string]any{
		"balance":    balanceAfter,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	account.Balance = balanceAfter

	return entry, nil
}

func (s *Service) GetEntry(ctx context.Context, entryID string) (*LedgerEntry, error) {
	return s.GetEntryTx(ctx, nil, entryID)
}

// GetEntryTx reads the entry through the caller's transaction when given one.
func (s *Service) GetEntryTx(ctx context.Context, tx *gorm.DB, entryID string) (*LedgerEntry, error) {
	entry, err := s.entries.WithTrx(tx).FindOne(ctx, &LedgerEntry{ID: entryID})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errutil.NotFound("ledger entry not found", nil)
	}
	return entry, nil
}

func (s *Service) ListEntries(ctx context.Context, accountID string) ([]*LedgerEntry, error) {
	return s.entries.Find(ctx, &LedgerEntry{AccountID: accountID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "id",
		OrderBy: "asc",
		Allow:   map[string]bool{"id": true},
	}))
}

// VerifyChain replays the account's entries and checks the balance chain. On a
// violation the account is frozen so no further mutation can compound the
// damage; recovery is an operator decision.
func (s *Service) VerifyChain(ctx context.Context, accountID string) error {
	ctx, span := tracer.Start(ctx, "ledger.VerifyChain")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	entries, err := s.ListEntries(ctx, accountID)
	if err != nil {
		return err
	}

	running := decimal.Zero
	for i, entry := range entries {
		if !entry.BalanceBefore.Equal(running) {
			return s.freeze(ctx, account, i, "balance chain broken")
		}
		if entry.Kind.Credits() {
			running = running.Add(entry.Amount)
		} else {
			running = running.Sub(entry.Amount)
		}
		if !entry.BalanceAfter.Equal(running) {
			return s.freeze(ctx, account, i, "entry arithmetic does not match recorded balance_after")
		}
		if running.IsNegative() {
			return s.freeze(ctx, account, i, "reconstructed balance went negative")
		}
	}

	if !account.Balance.Equal(running) {
		return s.freeze(ctx, account, len(entries)-1, "materialized balance diverges from log")
	}

	return nil
}

func (s *Service) freeze(ctx context.Context, account *Account, entryIndex int, reason string) error {
	zap.L().Error("ledger chain verification failed",
		zap.String("account_id", account.ID),
		zap.Int("entry_index", entryIndex),
		zap.String("reason", reason),
	)

	if err := s.accounts.Update(ctx, account.ID, map[string]any{
		"frozen":     true,
		"updated_at": time.Now().UTC(),
	}); err != nil {
		zap.L().Error("failed to freeze account", zap.String("account_id", account.ID), zap.Error(err))
	}

	return errutil.ConsistencyViolation(reason)
}
