// Package services contains the business logic layer: campaign registry, redirect path,
// analytics aggregation, journey tracking and dashboard authentication.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/axellelanca/campaignshortener/internal/cache"
	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/metrics"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
)

// CreateCampaignInput is what a caller supplies to create a campaign.
type CreateCampaignInput struct {
	URL          string `json:"url" validate:"required,max=2048"`
	CampaignName string `json:"campaign_name" validate:"required,max=255"`
	CampaignType string `json:"campaign_type" validate:"max=32"`
	models.UTM
	Notes          string     `json:"notes" validate:"max=4000"`
	Tags           []string   `json:"tags" validate:"max=20,dive,max=64"`
	ExpiryDate     *time.Time `json:"expiry_date"`
	OrganizationID *uint      `json:"-"`
}

// CampaignPatch lists the fields UpdateCampaign may change; nil means unchanged.
type CampaignPatch struct {
	CampaignName    *string    `json:"campaign_name" validate:"omitempty,max=255"`
	CampaignType    *string    `json:"campaign_type"`
	UTMSource       *string    `json:"utm_source"`
	UTMMedium       *string    `json:"utm_medium"`
	UTMCampaign     *string    `json:"utm_campaign"`
	UTMContent      *string    `json:"utm_content"`
	UTMTerm         *string    `json:"utm_term"`
	IsActive        *bool      `json:"is_active"`
	ExpiryDate      *time.Time `json:"expiry_date"`
	ClearExpiryDate bool       `json:"clear_expiry_date"`
	Notes           *string    `json:"notes" validate:"omitempty,max=4000"`
	Tags            []string   `json:"tags" validate:"omitempty,max=20,dive,max=64"`
}

// CampaignService provides business logic methods for managing campaigns.
// It acts as an intermediary between the HTTP handlers and the data repositories.
type CampaignService struct {
	repo      repository.CampaignRepository
	clicks    repository.ClickRepository
	cache     cache.CampaignCache
	filter    *cache.CodeFilter
	allocator *ShortCodeAllocator
	validate  *validator.Validate
	baseURL   string
	logger    *zap.Logger
	now       func() time.Time
}

// NewCampaignService wires the registry. A nil cache disables cache-aside; a nil filter gets
// a fresh empty one (call WarmFilter before serving redirects).
func NewCampaignService(repo repository.CampaignRepository, clicks repository.ClickRepository, campaignCache cache.CampaignCache, filter *cache.CodeFilter, baseURL string, logger *zap.Logger) *CampaignService {
	if campaignCache == nil {
		campaignCache = cache.NoopCache{}
	}
	if filter == nil {
		filter = cache.NewCodeFilter(0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignService{
		repo:      repo,
		clicks:    clicks,
		cache:     campaignCache,
		filter:    filter,
		allocator: NewShortCodeAllocator(filter),
		validate:  validator.New(),
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger,
		now:       time.Now,
	}
}

// WarmFilter loads every existing short code into the bloom filter.
func (s *CampaignService) WarmFilter(ctx context.Context) (int, error) {
	codes, err := s.repo.AllShortCodes(ctx)
	if err != nil {
		return 0, err
	}
	s.filter.AddBatch(codes)
	return len(codes), nil
}

// CreateShortURL normalizes the destination, merges the UTMs and persists a new campaign.
func (s *CampaignService) CreateShortURL(ctx context.Context, in CreateCampaignInput) (*models.Campaign, error) {
	const op = "services.CreateShortURL"

	in.CampaignName = strings.TrimSpace(in.CampaignName)
	in.CampaignType = strings.TrimSpace(in.CampaignType)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(op, err)
	}
	if in.CampaignType == "" {
		in.CampaignType = models.CampaignTypeOther
	}
	if !models.IsValidCampaignType(in.CampaignType) {
		return nil, apperrors.E(apperrors.Validation, op, apperrors.ErrInvalidCampaignType)
	}

	normalized, err := NormalizeURL(in.URL)
	if err != nil {
		return nil, apperrors.E(apperrors.Validation, op, err)
	}
	destination, err := MergeUTM(normalized, in.UTM)
	if err != nil {
		return nil, apperrors.E(apperrors.Validation, op, err)
	}

	campaign := &models.Campaign{
		OriginalURL:    destination,
		CampaignName:   in.CampaignName,
		CampaignType:   in.CampaignType,
		Notes:          in.Notes,
		Tags:           joinTags(in.Tags),
		ExpiryDate:     utcPtr(in.ExpiryDate),
		OrganizationID: in.OrganizationID,
		IsActive:       true,
	}
	campaign.SetUTM(in.UTM)

	code, err := s.repo.CreateCampaign(ctx, campaign, s.allocator.Next)
	if err != nil {
		return nil, err
	}
	s.filter.Add(code)

	s.logger.Info("Campaign created",
		zap.String("short_code", code),
		zap.String("campaign_name", campaign.CampaignName),
		zap.String("campaign_type", campaign.CampaignType))
	return campaign, nil
}

// Lookup resolves a code for the redirect path: shape check, cache, store.
// Inactive and expired campaigns are reported as not found.
func (s *CampaignService) Lookup(ctx context.Context, shortCode string) (*models.Campaign, error) {
	const op = "services.Lookup"
	if !IsValidShortCode(shortCode) {
		return nil, apperrors.E(apperrors.NotFound, op, apperrors.ErrShortCodeNotFound)
	}
	// The filter only knows codes this process allocated or warmed; a miss still goes to the store.
	known := s.filter.MightContain(shortCode)
	if !known {
		metrics.CacheLookupsTotal.WithLabelValues("bloom_miss").Inc()
	}

	cached, err := s.cache.Get(ctx, shortCode)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Campaign cache read failed", zap.String("short_code", shortCode), zap.Error(err))
	}
	if cached != nil {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		if !cached.IsLive(s.now()) {
			return nil, apperrors.E(apperrors.NotFound, op, apperrors.ErrShortCodeNotFound)
		}
		return cached, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	campaign, err := s.repo.LookupCampaign(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	if !known {
		s.filter.Add(shortCode)
	}
	if err := s.cache.Set(ctx, campaign); err != nil {
		s.logger.Warn("Campaign cache write failed", zap.String("short_code", shortCode), zap.Error(err))
	}
	return campaign, nil
}

// GetCampaign returns a campaign in any state.
func (s *CampaignService) GetCampaign(ctx context.Context, shortCode string) (*models.Campaign, error) {
	return s.repo.GetCampaign(ctx, shortCode)
}

// GetCampaignStats returns the campaign and the number of click events stored for it.
func (s *CampaignService) GetCampaignStats(ctx context.Context, shortCode string) (*models.Campaign, int64, error) {
	campaign, err := s.repo.GetCampaign(ctx, shortCode)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.clicks.CountClicks(ctx, shortCode)
	if err != nil {
		return nil, 0, err
	}
	return campaign, total, nil
}

func (s *CampaignService) ListCampaigns(ctx context.Context, filter repository.CampaignFilter) ([]models.Campaign, error) {
	return s.repo.ListCampaigns(ctx, filter)
}

// UpdateCampaign applies patch. Changing any UTM parameter rewrites original_url accordingly.
func (s *CampaignService) UpdateCampaign(ctx context.Context, shortCode string, patch CampaignPatch) (*models.Campaign, error) {
	const op = "services.UpdateCampaign"
	if err := s.validate.Struct(patch); err != nil {
		return nil, validationError(op, err)
	}

	current, err := s.repo.GetCampaign(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if patch.CampaignName != nil {
		name := strings.TrimSpace(*patch.CampaignName)
		if name == "" {
			return nil, apperrors.Validationf(op, "campaign_name must not be empty")
		}
		if name != current.CampaignName {
			updates["campaign_name"] = name
		}
	}
	if patch.CampaignType != nil {
		t := strings.TrimSpace(*patch.CampaignType)
		if t == "" {
			t = models.CampaignTypeOther
		}
		if !models.IsValidCampaignType(t) {
			return nil, apperrors.E(apperrors.Validation, op, apperrors.ErrInvalidCampaignType)
		}
		updates["campaign_type"] = t
	}

	prev := current.UTM()
	next := prev
	applyString(&next.Source, patch.UTMSource)
	applyString(&next.Medium, patch.UTMMedium)
	applyString(&next.Campaign, patch.UTMCampaign)
	applyString(&next.Content, patch.UTMContent)
	applyString(&next.Term, patch.UTMTerm)
	if next != prev {
		destination, err := ApplyUTMChange(current.OriginalURL, prev, next)
		if err != nil {
			return nil, apperrors.E(apperrors.Validation, op, err)
		}
		updates["original_url"] = destination
		updates["utm_source"] = next.Source
		updates["utm_medium"] = next.Medium
		updates["utm_campaign"] = next.Campaign
		updates["utm_content"] = next.Content
		updates["utm_term"] = next.Term
	}

	if patch.IsActive != nil {
		updates["is_active"] = *patch.IsActive
	}
	if patch.ClearExpiryDate {
		updates["expiry_date"] = nil
	} else if patch.ExpiryDate != nil {
		updates["expiry_date"] = patch.ExpiryDate.UTC()
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if patch.Tags != nil {
		updates["tags"] = joinTags(patch.Tags)
	}

	updated, err := s.repo.UpdateCampaign(ctx, shortCode, updates)
	if err != nil {
		return nil, err
	}
	s.evict(ctx, shortCode)
	s.logger.Info("Campaign updated", zap.String("short_code", shortCode), zap.Int("fields", len(updates)))
	return updated, nil
}

// DeleteCampaign removes the campaign and its click events.
func (s *CampaignService) DeleteCampaign(ctx context.Context, shortCode string) error {
	if err := s.repo.DeleteCampaign(ctx, shortCode); err != nil {
		return err
	}
	s.evict(ctx, shortCode)
	s.logger.Info("Campaign deleted", zap.String("short_code", shortCode))
	return nil
}

// ShortURL renders the public short URL of a code.
func (s *CampaignService) ShortURL(shortCode string) string {
	return s.baseURL + "/?r=" + shortCode
}

func (s *CampaignService) evict(ctx context.Context, shortCode string) {
	if err := s.cache.Delete(ctx, shortCode); err != nil {
		s.logger.Warn("Campaign cache eviction failed", zap.String("short_code", shortCode), zap.Error(err))
	}
}

func validationError(op string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperrors.Validationf(op, "field %s failed on the '%s' rule", strings.ToLower(fe.Field()), fe.Tag())
	}
	return apperrors.E(apperrors.Validation, op, fmt.Errorf("invalid input: %w", err))
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func joinTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	return strings.Join(clean, ",")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
