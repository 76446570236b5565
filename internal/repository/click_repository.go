package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/models"
)

// SessionEngagement décrit la mise à jour des clics d'une session par le suivi de parcours.
type SessionEngagement struct {
	TimeOnPage      int
	Engaged         bool
	Converted       bool
	EngagementScore float64
}

// ClickRepository est une interface qui définit les méthodes d'accès aux clics
type ClickRepository interface {
	RecordClick(ctx context.Context, event *models.ClickEvent, delta int64) error
	ListByShortCode(ctx context.Context, shortCode string, limit int) ([]models.ClickEvent, error)
	UpdateSessionEngagement(ctx context.Context, sessionID string, e SessionEngagement) (int64, error)
	CountClicks(ctx context.Context, shortCode string) (int64, error)
}

// GormClickRepository est l'implémentation de l'interface ClickRepository utilisant GORM.
type GormClickRepository struct {
	db *gorm.DB
}

// NewClickRepository crée et retourne une nouvelle instance de GormClickRepository.
func NewClickRepository(db *gorm.DB) *GormClickRepository {
	return &GormClickRepository{db: db}
}

// RecordClick insère le clic et met à jour les compteurs de la campagne dans une seule
// transaction. total_clicks grows by delta; unique_visitors is recomputed from the events so
// a retried click never inflates it.
func (r *GormClickRepository) RecordClick(ctx context.Context, event *models.ClickEvent, delta int64) error {
	const op = "repository.RecordClick"
	if delta <= 0 {
		delta = 1
	}
	event.ClickedAt = event.ClickedAt.UTC()

	var opts []*sql.TxOptions
	if !isSQLite(r.db) {
		// SQLite already serializes writers through its single connection.
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			if isForeignKeyViolation(err) {
				return apperrors.ErrShortCodeNotFound
			}
			return err
		}

		var uniques int64
		if err := tx.Model(&models.ClickEvent{}).
			Where("short_code = ? AND ip_address <> ''", event.ShortCode).
			Distinct("ip_address").
			Count(&uniques).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Campaign{}).
			Where("short_code = ?", event.ShortCode).
			UpdateColumns(map[string]any{
				"total_clicks":    gorm.Expr("total_clicks + ?", delta),
				"last_clicked_at": event.ClickedAt,
				"unique_visitors": uniques,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrShortCodeNotFound
		}
		return nil
	}, opts...)

	if errors.Is(err, apperrors.ErrShortCodeNotFound) {
		return apperrors.E(apperrors.NotFound, op, err)
	}
	if err != nil {
		return apperrors.E(apperrors.Transient, op, apperrors.ErrClickRecordingFailed{ShortCode: event.ShortCode, Reason: err.Error()})
	}
	return nil
}

// ListByShortCode renvoie les derniers clics d'une campagne.
func (r *GormClickRepository) ListByShortCode(ctx context.Context, shortCode string, limit int) ([]models.ClickEvent, error) {
	q := r.db.WithContext(ctx).Where("short_code = ?", shortCode).Order("clicked_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	clicks := []models.ClickEvent{}
	if err := q.Find(&clicks).Error; err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.ListByShortCode", fmt.Errorf("failed to list clicks for %s: %w", shortCode, err))
	}
	return clicks, nil
}

// UpdateSessionEngagement marque les clics d'une session comme engagés (ou convertis).
func (r *GormClickRepository) UpdateSessionEngagement(ctx context.Context, sessionID string, e SessionEngagement) (int64, error) {
	updates := map[string]any{
		"time_on_page":     e.TimeOnPage,
		"engagement_score": e.EngagementScore,
	}
	if e.Engaged {
		updates["is_bounce"] = false
	}
	if e.Converted {
		updates["is_conversion"] = true
	}
	res := r.db.WithContext(ctx).Model(&models.ClickEvent{}).
		Where("session_id = ?", sessionID).
		UpdateColumns(updates)
	if res.Error != nil {
		return 0, apperrors.E(apperrors.Transient, "repository.UpdateSessionEngagement", res.Error)
	}
	return res.RowsAffected, nil
}

// CountClicks compte le nombre total de clics enregistrés pour une campagne.
func (r *GormClickRepository) CountClicks(ctx context.Context, shortCode string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ClickEvent{}).Where("short_code = ?", shortCode).Count(&count).Error; err != nil {
		return 0, apperrors.E(apperrors.Transient, "repository.CountClicks", fmt.Errorf("failed to count clicks for %s: %w", shortCode, err))
	}
	return count, nil
}
