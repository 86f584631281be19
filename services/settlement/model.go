package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

type SettlementStatus string

const (
	StatusPending    SettlementStatus = "PENDING"
	StatusProcessing SettlementStatus = "PROCESSING"
	StatusCompleted  SettlementStatus = "COMPLETED"
	StatusFailed     SettlementStatus = "FAILED"
)

// Reserves reports whether a settlement in this status still holds earnings.
// FAILED is the only terminal status that releases its amount back to the
// creator's available pool.
func (s SettlementStatus) Reserves() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted:
		return true
	}
	return false
}

// Settlement is one payout request for a creator's accrued earnings. Amount is
// reserved against the creator's available earnings from the moment the row
// exists in PENDING until it lands in FAILED.
type Settlement struct {
	ID               string           `gorm:"column:id;primaryKey"`
	Code             string           `gorm:"column:code;uniqueIndex"`
	CreatorAccountID string           `gorm:"column:creator_account_id;index"`
	Amount           decimal.Decimal  `gorm:"column:amount;type:decimal(38,18)"`
	Status           SettlementStatus `gorm:"column:status;index"`
	TxReference      string           `gorm:"column:tx_reference"`
	ErrorMessage     string           `gorm:"column:error_message"`
	RequestedAt      time.Time        `gorm:"column:requested_at"`
	ProcessedAt      *time.Time       `gorm:"column:processed_at"`
	CompletedAt      *time.Time       `gorm:"column:completed_at"`
	UpdatedAt        time.Time        `gorm:"column:updated_at"`
}

type ProcessPendingPayload struct {
	BatchSize int `json:"batch_size"`
}
