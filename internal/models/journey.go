package models

import "time"

// Journey event types.
const (
	JourneyLinkClick      = "link_click"
	JourneyAppOpen        = "app_open"
	JourneyAppInstall     = "app_install"
	JourneyPageView       = "page_view"
	JourneyConversion     = "conversion"
	JourneyAppEngagement  = "app_engagement"
	JourneyDeepLink       = "deep_link"
	JourneyAttribution    = "attribution"
	JourneyFunnelProgress = "funnel_progress"
	JourneyButtonClick    = "button_click"
	JourneyExport         = "export"
	JourneyRefresh        = "refresh"
	JourneyFeatureUse     = "feature_use"
	JourneyView           = "view"
	JourneyError          = "error"
	JourneyFormSubmit     = "form_submit"
)

var journeyEventTypes = map[string]struct{}{
	JourneyLinkClick: {}, JourneyAppOpen: {}, JourneyAppInstall: {}, JourneyPageView: {},
	JourneyConversion: {}, JourneyAppEngagement: {}, JourneyDeepLink: {}, JourneyAttribution: {},
	JourneyFunnelProgress: {}, JourneyButtonClick: {}, JourneyExport: {}, JourneyRefresh: {},
	JourneyFeatureUse: {}, JourneyView: {}, JourneyError: {}, JourneyFormSubmit: {},
}

// IsJourneyEventType reports whether t is a known journey event type.
func IsJourneyEventType(t string) bool {
	_, ok := journeyEventTypes[t]
	return ok
}

// JourneyEvent is one step of a session's journey, linked to the step before it.
type JourneyEvent struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	EventID   string `gorm:"size:36;uniqueIndex;not null" json:"event_id"`
	SessionID string `gorm:"size:64;index:idx_journey_events_session_id;not null" json:"session_id"`
	ShortCode string `gorm:"size:16;index" json:"short_code"`

	EventType string    `gorm:"size:32;not null" json:"event_type"`
	EventName string    `gorm:"size:255" json:"event_name"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`

	Device   string `gorm:"size:32" json:"device"`
	Location string `gorm:"size:255" json:"location"`

	// JSON text
	CampaignData     string `gorm:"type:text" json:"campaign_data,omitempty"`
	CustomParameters string `gorm:"type:text" json:"custom_parameters,omitempty"`

	PreviousEventID *string `gorm:"size:36" json:"previous_event_id"`
}

func (JourneyEvent) TableName() string { return "journey_events" }

// EngagementMetric is the per-session rollup refreshed after each journey event.
type EngagementMetric struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	SessionID       string    `gorm:"size:64;uniqueIndex;not null" json:"session_id"`
	ShortCode       string    `gorm:"size:16;index" json:"short_code"`
	PageViews       int       `gorm:"not null;default:0" json:"page_views"`
	TimeSpent       int       `gorm:"not null;default:0" json:"time_spent"`
	ActionsTaken    int       `gorm:"not null;default:0" json:"actions_taken"`
	LastInteraction time.Time `json:"last_interaction"`
	IsConverted     bool      `gorm:"not null" json:"is_converted"`
	EngagementScore float64   `gorm:"not null;default:0" json:"engagement_score"`
}

func (EngagementMetric) TableName() string { return "engagement_metrics" }
