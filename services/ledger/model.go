package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Account is one row per participant wallet. Rows are created lazily on first
// deposit or first publish and never deleted; Balance only moves through the
// service's transactional operations.
type Account struct {
	ID            string          `gorm:"column:id;primaryKey"`
	WalletAddress string          `gorm:"column:wallet_address;uniqueIndex"`
	Balance       decimal.Decimal `gorm:"column:balance;type:decimal(38,18)"`
	Frozen        bool            `gorm:"column:frozen"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
}

type EntryKind string

const (
	KindDeposit     EntryKind = "DEPOSIT"
	KindStake       EntryKind = "STAKE"
	KindRefund      EntryKind = "REFUND"
	KindTransferOut EntryKind = "TRANSFER_OUT"
	KindTransferIn  EntryKind = "TRANSFER_IN"
)

// Credits reports whether the kind increases the account balance.
func (k EntryKind) Credits() bool {
	switch k {
	case KindDeposit, KindRefund, KindTransferIn:
		return true
	default:
		return false
	}
}

// LedgerEntry is append-only. BalanceBefore/BalanceAfter chain per account:
// entry[i].BalanceAfter == entry[i+1].BalanceBefore, so the log reconstructs
// the balance independently of the materialized Account.Balance.
type LedgerEntry struct {
	ID            string          `gorm:"column:id;primaryKey"`
	AccountID     string          `gorm:"column:account_id;index"`
	Kind          EntryKind       `gorm:"column:kind"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(38,18)"`
	BalanceBefore decimal.Decimal `gorm:"column:balance_before;type:decimal(38,18)"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:decimal(38,18)"`
	VideoID       string          `gorm:"column:video_id"`
	SessionID     string          `gorm:"column:session_id"`
	ExternalRef   *string         `gorm:"column:external_ref;uniqueIndex"`
	Metadata      datatypes.JSON  `gorm:"column:metadata"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
}

// Ref carries the optional context recorded on an entry.
type Ref struct {
	VideoID     string
	SessionID   string
	ExternalRef string
	Metadata    datatypes.JSON
}
