package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type VideoStatus string

const (
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusReady      VideoStatus = "ready"
)

// Video is the pricing/ownership record the metering core reads. Rendition
// storage and playback live with the transcoding pipeline, not here.
// TotalEarnings is the per-video accumulator; it only ever grows, and only
// inside the viewing close / transfer transactions.
type Video struct {
	ID               string          `gorm:"column:id;primaryKey"`
	CreatorAccountID string          `gorm:"column:creator_account_id;index"`
	Title            string          `gorm:"column:title"`
	PricePerSecond   decimal.Decimal `gorm:"column:price_per_second;type:decimal(38,18)"`
	DurationSeconds  int64           `gorm:"column:duration_seconds"`
	TotalEarnings    decimal.Decimal `gorm:"column:total_earnings;type:decimal(38,18)"`
	Status           VideoStatus     `gorm:"column:status"`
	SourcePath       string          `gorm:"column:source_path"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
}

type TranscodePayload struct {
	VideoID   string `json:"video_id"`
	InputPath string `json:"input_path"`
}
