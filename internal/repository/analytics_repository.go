package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/models"
)

// Dimension identifie la colonne de regroupement d'une ventilation.
type Dimension string

const (
	DimensionDevice   Dimension = "device_type"
	DimensionBrowser  Dimension = "browser"
	DimensionOS       Dimension = "os"
	DimensionState    Dimension = "state"
	DimensionCountry  Dimension = "country"
	DimensionCity     Dimension = "city"
	DimensionCampaign Dimension = "campaign"
	DimensionSource   Dimension = "source"
)

// dimensionColumns is the only place a dimension becomes SQL.
var dimensionColumns = map[Dimension]string{
	DimensionDevice:   "analytics.device_type",
	DimensionBrowser:  "analytics.browser",
	DimensionOS:       "analytics.os",
	DimensionState:    "analytics.state",
	DimensionCountry:  "analytics.country",
	DimensionCity:     "analytics.city",
	DimensionCampaign: "urls.campaign_name",
	DimensionSource:   "analytics.referrer",
}

// ParseDimension valide un nom de dimension venant d'une requête.
func ParseDimension(s string) (Dimension, bool) {
	d := Dimension(s)
	_, ok := dimensionColumns[d]
	return d, ok
}

// AnalyticsFilter restreint toutes les lectures analytiques. End est exclusif.
type AnalyticsFilter struct {
	Start      *time.Time
	End        *time.Time
	Campaigns  []string
	States     []string
	ShortCodes []string
	// OrganizationID, quand il est défini, limite le périmètre aux campagnes de l'organisation
	OrganizationID *uint
}

// Totals regroupe les compteurs d'un périmètre.
type Totals struct {
	TotalClicks    int64
	UniqueVisitors int64
	Conversions    int64
	Bounces        int64
	AvgTimeOnPage  float64
}

// Bucket est une ligne de ventilation.
type Bucket struct {
	Key      string `gorm:"column:bucket_key" json:"key"`
	Clicks   int64  `json:"clicks"`
	Visitors int64  `json:"unique_visitors"`
}

// BucketVisitor est un couple distinct (valeur de dimension, adresse IP).
type BucketVisitor struct {
	Key       string `gorm:"column:bucket_key"`
	IPAddress string `gorm:"column:ip_address"`
}

// CampaignRow porte les agrégats d'une campagne sur le périmètre.
type CampaignRow struct {
	CampaignName   string
	ShortCode      string
	TotalClicks    int64
	UniqueVisitors int64
	Conversions    int64
	Bounces        int64
	AvgTimeOnPage  float64
}

// Activity est un clic récent enrichi du nom de campagne.
type Activity struct {
	ID           uint      `json:"event_id"`
	ShortCode    string    `json:"short_code"`
	CampaignName string    `json:"campaign_name"`
	ClickedAt    time.Time `json:"clicked_at"`
	IPAddress    string    `json:"ip_address"`
	DeviceType   string    `json:"device_type"`
	Browser      string    `json:"browser"`
	OS           string    `json:"os"`
	Country      string    `json:"country"`
	State        string    `json:"state"`
	City         string    `json:"city"`
	Referrer     string    `json:"referrer"`
	EventType    string    `json:"event_type"`
}

// AnalyticsRepository est une interface qui définit les lectures analytiques
type AnalyticsRepository interface {
	Totals(ctx context.Context, f AnalyticsFilter) (Totals, error)
	ClickTimes(ctx context.Context, f AnalyticsFilter) ([]time.Time, error)
	Breakdown(ctx context.Context, f AnalyticsFilter, dim Dimension) ([]Bucket, error)
	BucketVisitors(ctx context.Context, f AnalyticsFilter, dim Dimension) ([]BucketVisitor, error)
	CampaignRows(ctx context.Context, f AnalyticsFilter) ([]CampaignRow, error)
	Recent(ctx context.Context, f AnalyticsFilter, limit int) ([]Activity, error)
	CampaignCounts(ctx context.Context, activeSince time.Time, organizationID *uint) (total int64, active int64, err error)
	TopCampaigns(ctx context.Context, limit int, organizationID *uint) ([]models.Campaign, error)
}

// GormAnalyticsRepository est l'implémentation de AnalyticsRepository utilisant GORM.
type GormAnalyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository crée et retourne une nouvelle instance de GormAnalyticsRepository.
func NewAnalyticsRepository(db *gorm.DB) *GormAnalyticsRepository {
	return &GormAnalyticsRepository{db: db}
}

const uniqueVisitorsExpr = "COUNT(DISTINCT CASE WHEN analytics.ip_address <> '' THEN analytics.ip_address END)"

// scope construit la requête commune à toutes les lectures: analytics joint à urls,
// restreint par le filtre.
func (r *GormAnalyticsRepository) scope(ctx context.Context, f AnalyticsFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Table("analytics").
		Joins("JOIN urls ON urls.short_code = analytics.short_code")
	if f.Start != nil {
		q = q.Where("analytics.clicked_at >= ?", f.Start.UTC())
	}
	if f.End != nil {
		q = q.Where("analytics.clicked_at < ?", f.End.UTC())
	}
	if len(f.Campaigns) > 0 {
		q = q.Where("urls.campaign_name IN ?", f.Campaigns)
	}
	if len(f.States) > 0 {
		q = q.Where("analytics.state IN ?", f.States)
	}
	if len(f.ShortCodes) > 0 {
		q = q.Where("analytics.short_code IN ?", f.ShortCodes)
	}
	if f.OrganizationID != nil {
		q = q.Where("urls.organization_id = ?", *f.OrganizationID)
	}
	return q
}

func (r *GormAnalyticsRepository) Totals(ctx context.Context, f AnalyticsFilter) (Totals, error) {
	var t Totals
	err := r.scope(ctx, f).Select(`COUNT(*) AS total_clicks, ` + uniqueVisitorsExpr + ` AS unique_visitors,
		COALESCE(SUM(CASE WHEN analytics.is_conversion THEN 1 ELSE 0 END), 0) AS conversions,
		COALESCE(SUM(CASE WHEN analytics.is_bounce THEN 1 ELSE 0 END), 0) AS bounces,
		COALESCE(AVG(CASE WHEN analytics.time_on_page > 0 THEN analytics.time_on_page END), 0) AS avg_time_on_page`).
		Scan(&t).Error
	if err != nil {
		return Totals{}, apperrors.E(apperrors.Transient, "repository.Totals", err)
	}
	return t, nil
}

// ClickTimes renvoie les horodatages bruts; le regroupement par jour se fait dans le fuseau
// du serveur, côté Go.
func (r *GormAnalyticsRepository) ClickTimes(ctx context.Context, f AnalyticsFilter) ([]time.Time, error) {
	times := []time.Time{}
	if err := r.scope(ctx, f).Order("analytics.clicked_at").Pluck("analytics.clicked_at", &times).Error; err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.ClickTimes", err)
	}
	return times, nil
}

func (r *GormAnalyticsRepository) Breakdown(ctx context.Context, f AnalyticsFilter, dim Dimension) ([]Bucket, error) {
	col, ok := dimensionColumns[dim]
	if !ok {
		return nil, apperrors.Validationf("repository.Breakdown", "unknown dimension %q", dim)
	}
	buckets := []Bucket{}
	err := r.scope(ctx, f).
		Select(fmt.Sprintf("COALESCE(%s, '') AS bucket_key, COUNT(*) AS clicks, %s AS visitors", col, uniqueVisitorsExpr)).
		Group(col).
		Order("clicks DESC, bucket_key").
		Scan(&buckets).Error
	if err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.Breakdown", err)
	}
	return buckets, nil
}

// BucketVisitors liste les adresses IP non vides de chaque valeur de la dimension, sans doublon.
// Les ventilations qui fusionnent plusieurs valeurs comptent ainsi leurs visiteurs une seule fois.
func (r *GormAnalyticsRepository) BucketVisitors(ctx context.Context, f AnalyticsFilter, dim Dimension) ([]BucketVisitor, error) {
	col, ok := dimensionColumns[dim]
	if !ok {
		return nil, apperrors.Validationf("repository.BucketVisitors", "unknown dimension %q", dim)
	}
	pairs := []BucketVisitor{}
	err := r.scope(ctx, f).
		Select(fmt.Sprintf("DISTINCT COALESCE(%s, '') AS bucket_key, analytics.ip_address AS ip_address", col)).
		Where("analytics.ip_address <> ''").
		Scan(&pairs).Error
	if err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.BucketVisitors", err)
	}
	return pairs, nil
}

func (r *GormAnalyticsRepository) CampaignRows(ctx context.Context, f AnalyticsFilter) ([]CampaignRow, error) {
	rows := []CampaignRow{}
	err := r.scope(ctx, f).Select(`urls.campaign_name AS campaign_name, urls.short_code AS short_code,
		COUNT(*) AS total_clicks, ` + uniqueVisitorsExpr + ` AS unique_visitors,
		COALESCE(SUM(CASE WHEN analytics.is_conversion THEN 1 ELSE 0 END), 0) AS conversions,
		COALESCE(SUM(CASE WHEN analytics.is_bounce THEN 1 ELSE 0 END), 0) AS bounces,
		COALESCE(AVG(CASE WHEN analytics.time_on_page > 0 THEN analytics.time_on_page END), 0) AS avg_time_on_page`).
		Group("urls.campaign_name, urls.short_code").
		Order("total_clicks DESC, urls.campaign_name").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.CampaignRows", err)
	}
	return rows, nil
}

func (r *GormAnalyticsRepository) Recent(ctx context.Context, f AnalyticsFilter, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 10
	}
	rows := []Activity{}
	err := r.scope(ctx, f).Select(`analytics.id AS id, analytics.short_code AS short_code,
		urls.campaign_name AS campaign_name, analytics.clicked_at AS clicked_at,
		COALESCE(analytics.ip_address, '') AS ip_address, COALESCE(analytics.device_type, '') AS device_type,
		COALESCE(analytics.browser, '') AS browser, COALESCE(analytics.os, '') AS os,
		COALESCE(analytics.country, '') AS country, COALESCE(analytics.state, '') AS state,
		COALESCE(analytics.city, '') AS city, COALESCE(analytics.referrer, '') AS referrer,
		analytics.event_type AS event_type`).
		Order("analytics.clicked_at DESC, analytics.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.Recent", err)
	}
	return rows, nil
}

// campaigns restreint la table urls à une organisation quand organizationID est défini.
func (r *GormAnalyticsRepository) campaigns(ctx context.Context, organizationID *uint) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Campaign{})
	if organizationID != nil {
		q = q.Where("organization_id = ?", *organizationID)
	}
	return q
}

// CampaignCounts compte toutes les campagnes et celles cliquées depuis activeSince.
func (r *GormAnalyticsRepository) CampaignCounts(ctx context.Context, activeSince time.Time, organizationID *uint) (int64, int64, error) {
	var total, active int64
	if err := r.campaigns(ctx, organizationID).Count(&total).Error; err != nil {
		return 0, 0, apperrors.E(apperrors.Transient, "repository.CampaignCounts", err)
	}
	if err := r.campaigns(ctx, organizationID).
		Where("last_clicked_at IS NOT NULL AND last_clicked_at >= ?", activeSince.UTC()).
		Count(&active).Error; err != nil {
		return 0, 0, apperrors.E(apperrors.Transient, "repository.CampaignCounts", err)
	}
	return total, active, nil
}

func (r *GormAnalyticsRepository) TopCampaigns(ctx context.Context, limit int, organizationID *uint) ([]models.Campaign, error) {
	campaigns := []models.Campaign{}
	if err := r.campaigns(ctx, organizationID).Order("total_clicks DESC, campaign_name").Limit(limit).Find(&campaigns).Error; err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.TopCampaigns", err)
	}
	return campaigns, nil
}
