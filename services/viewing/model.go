package viewing

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusAborted   SessionStatus = "ABORTED"
)

// ViewSession is one watch attempt. It is created only after the stake debit
// succeeds, and FundingEntryID pins the exact STAKE ledger entry that funded
// it, so Close never has to guess which stake to refund against even when the
// same viewer has overlapping sessions on one video.
type ViewSession struct {
	ID               string          `gorm:"column:id;primaryKey"`
	SessionToken     string          `gorm:"column:session_token;uniqueIndex"`
	ViewerAccountID  string          `gorm:"column:viewer_account_id;index"`
	VideoID          string          `gorm:"column:video_id;index"`
	FundingEntryID   string          `gorm:"column:funding_entry_id"`
	StakedAmount     decimal.Decimal `gorm:"column:staked_amount;type:decimal(38,18)"`
	WatchedSeconds   int64           `gorm:"column:watched_seconds"`
	AmountCharged    decimal.Decimal `gorm:"column:amount_charged;type:decimal(38,18)"`
	Status           SessionStatus   `gorm:"column:status;index"`
	StartTime        time.Time       `gorm:"column:start_time"`
	EndTime          *time.Time      `gorm:"column:end_time"`
	LastCheckpointAt time.Time       `gorm:"column:last_checkpoint_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
}

type SweepPayload struct {
	StaleAfter time.Duration `json:"stale_after"`
}
