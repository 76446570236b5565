package models

import "time"

// Click event types.
const (
	EventTypeClick      = "click"
	EventTypeConversion = "conversion"
	EventTypeCustom     = "custom"
)

// ClickEvent represents one redirect stored in the "analytics" table.
// Rows are append-only except for the engagement columns the journey tracker updates.
type ClickEvent struct {
	// ID is the primary key and doubles as the public event id
	ID uint `gorm:"primaryKey" json:"event_id"`

	// ShortCode references urls.short_code; deleting a campaign deletes its events
	ShortCode string `gorm:"size:16;not null;index:idx_analytics_short_code" json:"short_code"`

	// ClickedAt is set once at ingestion, always in UTC
	ClickedAt time.Time `gorm:"not null;index:idx_analytics_clicked_at" json:"clicked_at"`

	// IPAddress may be empty when the client address could not be determined
	IPAddress string `gorm:"size:64;index:idx_analytics_ip_address" json:"ip_address"`
	UserAgent string `gorm:"type:text" json:"user_agent"`
	Referrer  string `gorm:"type:text" json:"referrer"`

	Country string `gorm:"size:128" json:"country"`
	State   string `gorm:"size:128" json:"state"`
	City    string `gorm:"size:128" json:"city"`
	ISP     string `gorm:"column:isp;size:255" json:"isp"`

	DeviceType     string `gorm:"size:32" json:"device_type"`
	Browser        string `gorm:"size:64" json:"browser"`
	BrowserVersion string `gorm:"size:64" json:"browser_version"`
	OS             string `gorm:"column:os;size:64" json:"os"`
	OSVersion      string `gorm:"column:os_version;size:64" json:"os_version"`

	EventType string `gorm:"size:32;not null" json:"event_type"`
	// EventData is opaque JSON text
	EventData string `gorm:"type:text" json:"event_data,omitempty"`
	SessionID string `gorm:"size:64;index:idx_analytics_session_id" json:"session_id"`

	TimeOnPage      int     `gorm:"not null;default:0" json:"time_on_page"`
	IsBounce        bool    `gorm:"not null" json:"is_bounce"`
	IsConversion    bool    `gorm:"not null" json:"is_conversion"`
	EngagementScore float64 `gorm:"not null;default:0" json:"engagement_score"`
}

func (ClickEvent) TableName() string { return "analytics" }
