package funding

import (
	"context"

	"streampay-controlplane/pkg/errutil"
	"streampay-controlplane/services/ledger"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	oracle PaymentOracle
	ledger *ledger.Service
}

type ServiceParams struct {
	fx.In
	Oracle PaymentOracle
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		oracle: p.Oracle,
		ledger: p.Ledger,
	}
}

// Deposit credits a wallet from an externally settled payment. The oracle is
// consulted first; a payment that is not both verified and settled creates no
// ledger state at all. The payment reference is recorded as the entry's
// external_ref, whose unique index makes replays of the same payment fail
// instead of double-crediting.
func (s *Service) Deposit(ctx context.Context, walletAddress, paymentRef string, amount decimal.Decimal) (*ledger.LedgerEntry, error) {
	if paymentRef == "" {
		return nil, errutil.BadRequest("payment_ref is required", nil)
	}
	if !amount.IsPositive() {
		return nil, errutil.ValidationFailed("amount must be positive", nil)
	}

	verification, err := s.oracle.VerifyPayment(ctx, paymentRef)
	if err != nil {
		return nil, errutil.VerificationFailed("payment oracle unavailable", err)
	}
	if !verification.Verified || !verification.Settled {
		return nil, errutil.VerificationFailed("payment is not verified and settled", nil)
	}
	if !verification.Amount.Equal(amount) {
		return nil, errutil.VerificationFailed("payment amount does not match settled amount", nil)
	}

	account, err := s.ledger.EnsureAccount(ctx, walletAddress)
	if err != nil {
		return nil, err
	}

	entry, err := s.ledger.Credit(ctx, account.ID, amount, ledger.KindDeposit, ledger.Ref{
		ExternalRef: paymentRef,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("deposit credited",
		zap.String("account_id", account.ID),
		zap.String("payment_ref", paymentRef),
		zap.String("amount", amount.String()),
	)
	return entry, nil
}
