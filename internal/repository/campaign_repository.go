package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/models"
)

// MaxCodeAttempts borne le nombre de codes tirés pour une seule création.
const MaxCodeAttempts = 10

// CodeGenerator fournit un code court candidat.
type CodeGenerator func() (string, error)

// CampaignFilter restreint ListCampaigns. Status accepte "active", "inactive" ou vide.
type CampaignFilter struct {
	Type           string
	Status         string
	Search         string
	OrganizationID *uint
	Limit          int
	Offset         int
}

// CampaignRepository est une interface qui définit les méthodes d'accès aux campagnes
type CampaignRepository interface {
	CreateCampaign(ctx context.Context, campaign *models.Campaign, next CodeGenerator) (string, error)
	LookupCampaign(ctx context.Context, shortCode string) (*models.Campaign, error)
	GetCampaign(ctx context.Context, shortCode string) (*models.Campaign, error)
	GetCampaignByName(ctx context.Context, name string) (*models.Campaign, error)
	UpdateCampaign(ctx context.Context, shortCode string, updates map[string]any) (*models.Campaign, error)
	DeleteCampaign(ctx context.Context, shortCode string) error
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]models.Campaign, error)
	AllShortCodes(ctx context.Context) ([]string, error)
	ReconcileUniqueVisitors(ctx context.Context) (int, error)
}

// GormCampaignRepository est l'implémentation de CampaignRepository utilisant GORM.
type GormCampaignRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCampaignRepository crée et retourne une nouvelle instance de GormCampaignRepository.
func NewCampaignRepository(db *gorm.DB) *GormCampaignRepository {
	return &GormCampaignRepository{db: db, now: time.Now}
}

// CreateCampaign insère la campagne en tirant des codes jusqu'à ce que l'insertion réussisse.
// A collision on short_code draws another code; a collision on campaign_name is final.
func (r *GormCampaignRepository) CreateCampaign(ctx context.Context, campaign *models.Campaign, next CodeGenerator) (string, error) {
	const op = "repository.CreateCampaign"

	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		code, err := next()
		if err != nil {
			return "", apperrors.E(apperrors.Transient, op, fmt.Errorf("failed to generate short code: %w", err))
		}

		row := *campaign
		row.ID = 0
		row.ShortCode = code

		err = r.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			*campaign = row
			return code, nil
		}
		if !isUniqueViolation(err) {
			return "", apperrors.E(apperrors.Transient, op, fmt.Errorf("failed to create campaign: %w", err))
		}
		if violatesColumn(err, "campaign_name") {
			return "", apperrors.E(apperrors.Conflict, op, apperrors.ErrDuplicateName)
		}
	}
	return "", apperrors.E(apperrors.Conflict, op, apperrors.ErrShortCodeGenerationFailed)
}

// LookupCampaign renvoie la campagne seulement si elle est active et non expirée.
func (r *GormCampaignRepository) LookupCampaign(ctx context.Context, shortCode string) (*models.Campaign, error) {
	c, err := r.GetCampaign(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if !c.IsLive(r.now()) {
		return nil, apperrors.E(apperrors.NotFound, "repository.LookupCampaign", apperrors.ErrShortCodeNotFound)
	}
	return c, nil
}

// GetCampaign récupère une campagne quel que soit son état.
func (r *GormCampaignRepository) GetCampaign(ctx context.Context, shortCode string) (*models.Campaign, error) {
	var c models.Campaign
	if err := r.db.WithContext(ctx).Where("short_code = ?", shortCode).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.E(apperrors.NotFound, "repository.GetCampaign", apperrors.ErrShortCodeNotFound)
		}
		return nil, apperrors.E(apperrors.Transient, "repository.GetCampaign", fmt.Errorf("failed to get campaign %s: %w", shortCode, err))
	}
	return &c, nil
}

func (r *GormCampaignRepository) GetCampaignByName(ctx context.Context, name string) (*models.Campaign, error) {
	var c models.Campaign
	if err := r.db.WithContext(ctx).Where("campaign_name = ?", name).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.E(apperrors.NotFound, "repository.GetCampaignByName", apperrors.ErrShortCodeNotFound)
		}
		return nil, apperrors.E(apperrors.Transient, "repository.GetCampaignByName", err)
	}
	return &c, nil
}

// UpdateCampaign applique une mise à jour partielle et renvoie la campagne relue.
func (r *GormCampaignRepository) UpdateCampaign(ctx context.Context, shortCode string, updates map[string]any) (*models.Campaign, error) {
	const op = "repository.UpdateCampaign"
	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&models.Campaign{}).Where("short_code = ?", shortCode).Updates(updates)
		if res.Error != nil {
			if isUniqueViolation(res.Error) && violatesColumn(res.Error, "campaign_name") {
				return nil, apperrors.E(apperrors.Conflict, op, apperrors.ErrDuplicateName)
			}
			return nil, apperrors.E(apperrors.Transient, op, fmt.Errorf("failed to update campaign %s: %w", shortCode, res.Error))
		}
		if res.RowsAffected == 0 {
			return nil, apperrors.E(apperrors.NotFound, op, apperrors.ErrShortCodeNotFound)
		}
	}
	return r.GetCampaign(ctx, shortCode)
}

// DeleteCampaign supprime la campagne; ses clics partent en cascade.
func (r *GormCampaignRepository) DeleteCampaign(ctx context.Context, shortCode string) error {
	const op = "repository.DeleteCampaign"
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Explicit delete so engines without enforced foreign keys stay consistent.
		if err := tx.Where("short_code = ?", shortCode).Delete(&models.ClickEvent{}).Error; err != nil {
			return err
		}
		res := tx.Where("short_code = ?", shortCode).Delete(&models.Campaign{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrShortCodeNotFound
		}
		return nil
	})
	if errors.Is(err, apperrors.ErrShortCodeNotFound) {
		return apperrors.E(apperrors.NotFound, op, err)
	}
	if err != nil {
		return apperrors.E(apperrors.Transient, op, fmt.Errorf("failed to delete campaign %s: %w", shortCode, err))
	}
	return nil
}

// ListCampaigns récupère les campagnes, les plus récentes d'abord.
func (r *GormCampaignRepository) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]models.Campaign, error) {
	q := r.db.WithContext(ctx).Model(&models.Campaign{})
	if filter.Type != "" {
		q = q.Where("campaign_type = ?", filter.Type)
	}
	switch strings.ToLower(filter.Status) {
	case "active":
		q = q.Where("is_active = ?", true)
	case "inactive":
		q = q.Where("is_active = ?", false)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(campaign_name) LIKE ? OR LOWER(original_url) LIKE ? OR LOWER(tags) LIKE ?", like, like, like)
	}
	if filter.OrganizationID != nil {
		q = q.Where("organization_id = ?", *filter.OrganizationID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	campaigns := []models.Campaign{}
	if err := q.Order("created_at DESC, id DESC").Find(&campaigns).Error; err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.ListCampaigns", fmt.Errorf("failed to retrieve campaigns: %w", err))
	}
	return campaigns, nil
}

// AllShortCodes sert à amorcer le filtre de Bloom au démarrage.
func (r *GormCampaignRepository) AllShortCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).Model(&models.Campaign{}).Pluck("short_code", &codes).Error; err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.AllShortCodes", err)
	}
	return codes, nil
}

// ReconcileUniqueVisitors recalcule unique_visitors depuis les événements et renvoie le nombre
// de campagnes corrigées.
func (r *GormCampaignRepository) ReconcileUniqueVisitors(ctx context.Context) (int, error) {
	type row struct {
		ShortCode      string
		UniqueVisitors int64
		Actual         int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Table("urls").
		Select(`urls.short_code, urls.unique_visitors,
			(SELECT COUNT(DISTINCT a.ip_address) FROM analytics a
			 WHERE a.short_code = urls.short_code AND a.ip_address <> '') AS actual`).
		Scan(&rows).Error
	if err != nil {
		return 0, apperrors.E(apperrors.Transient, "repository.ReconcileUniqueVisitors", err)
	}

	fixed := 0
	for _, rw := range rows {
		if rw.UniqueVisitors == rw.Actual {
			continue
		}
		if err := r.db.WithContext(ctx).Model(&models.Campaign{}).
			Where("short_code = ?", rw.ShortCode).
			UpdateColumn("unique_visitors", rw.Actual).Error; err != nil {
			return fixed, apperrors.E(apperrors.Transient, "repository.ReconcileUniqueVisitors", err)
		}
		fixed++
	}
	return fixed, nil
}
