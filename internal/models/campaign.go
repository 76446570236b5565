package models

import (
	"strings"
	"time"
)

// Campaign types accepted by the registry.
const (
	CampaignTypeSocialMedia = "Social Media"
	CampaignTypeEmail       = "Email"
	CampaignTypePaidAds     = "Paid Ads"
	CampaignTypeBlog        = "Blog"
	CampaignTypeAffiliate   = "Affiliate"
	CampaignTypeOther       = "Other"
)

var CampaignTypes = []string{
	CampaignTypeSocialMedia,
	CampaignTypeEmail,
	CampaignTypePaidAds,
	CampaignTypeBlog,
	CampaignTypeAffiliate,
	CampaignTypeOther,
}

// IsValidCampaignType reports whether t is one of CampaignTypes.
func IsValidCampaignType(t string) bool {
	for _, known := range CampaignTypes {
		if t == known {
			return true
		}
	}
	return false
}

// UTMKeys lists the query keys in the order they are appended to a destination URL.
var UTMKeys = []string{"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term"}

// UTM holds the five tracking parameters of a campaign.
type UTM struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Content  string `json:"utm_content,omitempty"`
	Term     string `json:"utm_term,omitempty"`
}

// Get returns the value for one of UTMKeys.
func (u UTM) Get(key string) string {
	switch key {
	case "utm_source":
		return u.Source
	case "utm_medium":
		return u.Medium
	case "utm_campaign":
		return u.Campaign
	case "utm_content":
		return u.Content
	case "utm_term":
		return u.Term
	}
	return ""
}

// IsZero reports whether no parameter is set.
func (u UTM) IsZero() bool {
	return u == UTM{}
}

// Campaign represents a named short link stored in the "urls" table.
type Campaign struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// ShortCode is the public identifier, 6 alphanumeric characters
	ShortCode string `gorm:"uniqueIndex:idx_urls_short_code;size:16;not null" json:"short_code"`

	// OriginalURL is the destination with the campaign's UTM parameters already merged in
	OriginalURL string `gorm:"type:text;not null" json:"original_url"`

	CampaignName string `gorm:"uniqueIndex:idx_urls_campaign_name;size:255;not null" json:"campaign_name"`
	CampaignType string `gorm:"size:32;not null" json:"campaign_type"`

	UTMSource   string `gorm:"column:utm_source;size:255" json:"utm_source"`
	UTMMedium   string `gorm:"column:utm_medium;size:255" json:"utm_medium"`
	UTMCampaign string `gorm:"column:utm_campaign;size:255" json:"utm_campaign"`
	UTMContent  string `gorm:"column:utm_content;size:255" json:"utm_content"`
	UTMTerm     string `gorm:"column:utm_term;size:255" json:"utm_term"`

	Notes string `gorm:"type:text" json:"notes"`
	// Tags is a comma separated list
	Tags string `gorm:"size:512" json:"tags"`

	// ExpiryDate, when set and in the past, makes the campaign resolve as inactive
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	OrganizationID *uint      `gorm:"index" json:"organization_id,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastClickedAt *time.Time `json:"last_clicked_at,omitempty"`

	// Counters are only written by the click transaction and the reconciler
	TotalClicks    int64 `gorm:"not null;default:0" json:"total_clicks"`
	UniqueVisitors int64 `gorm:"not null;default:0" json:"unique_visitors"`

	// IsActive has no column default: gorm would replace an explicit false by the default
	IsActive bool `gorm:"not null" json:"is_active"`

	// Clicks owns the analytics.short_code foreign key
	Clicks []ClickEvent `gorm:"foreignKey:ShortCode;references:ShortCode;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

func (Campaign) TableName() string { return "urls" }

// UTM returns the campaign's tracking parameters.
func (c *Campaign) UTM() UTM {
	return UTM{
		Source:   c.UTMSource,
		Medium:   c.UTMMedium,
		Campaign: c.UTMCampaign,
		Content:  c.UTMContent,
		Term:     c.UTMTerm,
	}
}

// SetUTM copies u into the campaign columns.
func (c *Campaign) SetUTM(u UTM) {
	c.UTMSource = u.Source
	c.UTMMedium = u.Medium
	c.UTMCampaign = u.Campaign
	c.UTMContent = u.Content
	c.UTMTerm = u.Term
}

// IsLive reports whether the campaign should redirect at time now.
func (c *Campaign) IsLive(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	return c.ExpiryDate == nil || now.Before(*c.ExpiryDate)
}

// TagList splits Tags, dropping blanks.
func (c *Campaign) TagList() []string {
	out := []string{}
	for _, t := range strings.Split(c.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
