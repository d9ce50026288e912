package model

import (
	"time"

	"github.com/google/uuid"
)

// Click is one recorded visit on a short link. Rows are append-only and are
// removed only as a cascade of their parent link's expiry sweep.
type Click struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	LinkID      uuid.UUID `gorm:"type:uuid;not null;index:idx_clicks_link_id"`
	ClickedAt   time.Time `gorm:"not null"`
	IPAddress   string    `gorm:"size:45;not null"`
	UserAgent   string    `gorm:"type:text"`
	Referer     string    `gorm:"type:text"`
	CountryCode string    `gorm:"size:2"`
	DeviceType  string    `gorm:"size:32"`
}

// ClickEvent is the raw, pre-enrichment visit event published to JetStream
// by the redirect path. Country and device are derived by the consumer.
type ClickEvent struct {
	ID         string    `json:"id"`
	LinkID     uuid.UUID `json:"link_id"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	Referer    string    `json:"referer"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.events"
	ClickConsumerName   = "click-ingest"
	ClickStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)

// DayCount is one point of the trailing-30-day time series. Days with no
// activity are omitted; callers needing a dense series zero-fill themselves.
type DayCount struct {
	Date   time.Time `json:"date"`
	Clicks int64     `json:"clicks"`
}

// FieldCount is one entry of a top-N breakdown (referrer, device, country).
type FieldCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// LinkAnalytics is the aggregate view computed on demand from clicks.
type LinkAnalytics struct {
	TotalClicks  int64        `json:"total_clicks"`
	ClicksPerDay []DayCount   `json:"clicks_per_day"`
	TopReferrers []FieldCount `json:"top_referrers"`
	TopDevices   []FieldCount `json:"top_devices"`
	TopCountries []FieldCount `json:"top_countries"`
}
