package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/models"
)

// UserRepository est une interface qui définit l'accès aux comptes et aux sessions d'authentification
type UserRepository interface {
	FindOrCreateOrganization(ctx context.Context, name, domain string) (*models.Organization, error)
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	TouchLogin(ctx context.Context, userID uint, at time.Time) error
	CreateSession(ctx context.Context, session *models.AuthSession) error
	GetSession(ctx context.Context, token string) (*models.AuthSession, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// GormUserRepository est l'implémentation de UserRepository utilisant GORM.
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository crée et retourne une nouvelle instance de GormUserRepository.
func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) FindOrCreateOrganization(ctx context.Context, name, domain string) (*models.Organization, error) {
	org := models.Organization{Name: name, Domain: domain}
	err := r.db.WithContext(ctx).Where(models.Organization{Name: name}).Attrs(models.Organization{Domain: domain}).FirstOrCreate(&org).Error
	if err != nil {
		return nil, apperrors.E(apperrors.Transient, "repository.FindOrCreateOrganization", fmt.Errorf("failed to find or create organization %s: %w", name, err))
	}
	return &org, nil
}

func (r *GormUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return apperrors.E(apperrors.Conflict, "repository.CreateUser", apperrors.ErrDuplicateUsername)
		}
		return apperrors.E(apperrors.Transient, "repository.CreateUser", fmt.Errorf("failed to create user: %w", err))
	}
	return nil
}

// GetUserByUsername charge l'utilisateur avec son organisation.
func (r *GormUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Preload("Organization").Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.E(apperrors.Validation, "repository.GetUserByUsername", apperrors.ErrInvalidCredentials)
		}
		return nil, apperrors.E(apperrors.Transient, "repository.GetUserByUsername", err)
	}
	return &u, nil
}

func (r *GormUserRepository) TouchLogin(ctx context.Context, userID uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).UpdateColumn("last_login_at", at.UTC()).Error
	if err != nil {
		return apperrors.E(apperrors.Transient, "repository.TouchLogin", err)
	}
	return nil
}

func (r *GormUserRepository) CreateSession(ctx context.Context, session *models.AuthSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return apperrors.E(apperrors.Transient, "repository.CreateSession", fmt.Errorf("failed to create auth session: %w", err))
	}
	return nil
}

// GetSession charge la session et son utilisateur (avec l'organisation).
func (r *GormUserRepository) GetSession(ctx context.Context, token string) (*models.AuthSession, error) {
	var s models.AuthSession
	err := r.db.WithContext(ctx).Preload("User.Organization").Where("token = ?", token).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.E(apperrors.Validation, "repository.GetSession", apperrors.ErrUnauthorized)
		}
		return nil, apperrors.E(apperrors.Transient, "repository.GetSession", err)
	}
	return &s, nil
}

func (r *GormUserRepository) DeleteSession(ctx context.Context, token string) error {
	if err := r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.AuthSession{}).Error; err != nil {
		return apperrors.E(apperrors.Transient, "repository.DeleteSession", err)
	}
	return nil
}

func (r *GormUserRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now.UTC()).Delete(&models.AuthSession{})
	if res.Error != nil {
		return 0, apperrors.E(apperrors.Transient, "repository.DeleteExpiredSessions", res.Error)
	}
	return res.RowsAffected, nil
}
