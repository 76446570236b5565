package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/models"
)

// JourneyRepository est une interface qui définit l'accès aux parcours de session
type JourneyRepository interface {
	AppendEvent(ctx context.Context, event *models.JourneyEvent) error
	SessionEvents(ctx context.Context, sessionID string) ([]models.JourneyEvent, error)
	LastEvent(ctx context.Context, sessionID string) (*models.JourneyEvent, error)
	EventsInRange(ctx context.Context, start, end *time.Time, shortCodes []string) ([]models.JourneyEvent, error)
	UpsertEngagement(ctx context.Context, metric *models.EngagementMetric) error
	GetEngagement(ctx context.Context, sessionID string) (*models.EngagementMetric, error)
}

// GormJourneyRepository est l'implémentation de JourneyRepository utilisant GORM.
type GormJourneyRepository struct {
	db *gorm.DB
}

// NewJourneyRepository crée et retourne une nouvelle instance de GormJourneyRepository.
func NewJourneyRepository(db *gorm.DB) *GormJourneyRepository {
	return &GormJourneyRepository{db: db}
}

func (r *GormJourneyRepository) AppendEvent(ctx context.Context, event *models.JourneyEvent) error {
	event.Timestamp = event.Timestamp.UTC()
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return apperrors.E(apperrors.Transient, "repository.AppendEvent", err)
	}
	return nil
}

// SessionEvents renvoie les événements de la session dans l'ordre chronologique.
func (r *GormJourneyRepository) SessionEvents(ctx context.Context, sessionID string) ([]models.JourneyEvent, error) {
	events := []models.JourneyEvent{}
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("timestamp ASC, id ASC").Find(&events).Error
	if err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.SessionEvents", err)
	}
	return events, nil
}

// LastEvent renvoie nil, nil quand la session n'a aucun événement.
func (r *GormJourneyRepository) LastEvent(ctx context.Context, sessionID string) (*models.JourneyEvent, error) {
	events := []models.JourneyEvent{}
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("timestamp DESC, id DESC").Limit(1).Find(&events).Error
	if err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.LastEvent", err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// EventsInRange alimente l'entonnoir agrégé, trié par session puis par date.
func (r *GormJourneyRepository) EventsInRange(ctx context.Context, start, end *time.Time, shortCodes []string) ([]models.JourneyEvent, error) {
	q := r.db.WithContext(ctx).Model(&models.JourneyEvent{})
	if start != nil {
		q = q.Where("timestamp >= ?", start.UTC())
	}
	if end != nil {
		q = q.Where("timestamp < ?", end.UTC())
	}
	if shortCodes != nil {
		q = q.Where("session_id IN (?)",
			r.db.Model(&models.JourneyEvent{}).Select("session_id").Where("short_code IN ?", shortCodes))
	}
	events := []models.JourneyEvent{}
	if err := q.Order("session_id, timestamp ASC, id ASC").Find(&events).Error; err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.EventsInRange", err)
	}
	return events, nil
}

// UpsertEngagement remplace le cumul d'engagement de la session.
func (r *GormJourneyRepository) UpsertEngagement(ctx context.Context, metric *models.EngagementMetric) error {
	metric.LastInteraction = metric.LastInteraction.UTC()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"short_code", "page_views", "time_spent", "actions_taken",
			"last_interaction", "is_converted", "engagement_score",
		}),
	}).Create(metric).Error
	if err != nil {
		return apperrors.E(apperrors.Transient, "repository.UpsertEngagement", err)
	}
	return nil
}

func (r *GormJourneyRepository) GetEngagement(ctx context.Context, sessionID string) (*models.EngagementMetric, error) {
	metrics := []models.EngagementMetric{}
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Limit(1).Find(&metrics).Error; err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.GetEngagement", err)
	}
	if len(metrics) == 0 {
		return nil, apperrors.E(apperrors.NotFound, "repository.GetEngagement", apperrors.ErrSessionNotFound)
	}
	return &metrics[0], nil
}
