package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/axellelanca/campaignshortener/internal/errors"
	"github.com/axellelanca/campaignshortener/internal/models"
	"github.com/axellelanca/campaignshortener/internal/repository"
)

// MinPasswordLength applies to accounts created through CreateUser.
const MinPasswordLength = 8

// UserContext identifies the authenticated dashboard user.
type UserContext struct {
	UserID         uint      `json:"user_id"`
	Username       string    `json:"username"`
	Role           string    `json:"role"`
	OrganizationID uint      `json:"organization_id"`
	Organization   string    `json:"organization"`
	Token          string    `json:"token,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type AuthService struct {
	users      repository.UserRepository
	ttl        time.Duration
	bcryptCost int
	logger     *zap.Logger
	now        func() time.Time
	compare    func(hash, password []byte) error

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService issues tokens valid for ttl (24h when zero). A cost of 0 uses bcrypt's default.
func NewAuthService(users repository.UserRepository, ttl time.Duration, bcryptCost int, logger *zap.Logger) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      users,
		ttl:        ttl,
		bcryptCost: bcryptCost,
		logger:     logger,
		now:        time.Now,
		compare:    bcrypt.CompareHashAndPassword,
	}
}

// fallbackHash is a bcrypt hash at the configured cost that no password is expected to match.
func (s *AuthService) fallbackHash() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.bcryptCost)
		if err != nil {
			s.logger.Warn("Failed to build fallback password hash", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// CreateUser provisions an account, creating its organization on first use.
func (s *AuthService) CreateUser(ctx context.Context, username, password, organization, role string) (*models.User, error) {
	const op = "services.CreateUser"

	username = strings.TrimSpace(username)
	organization = strings.TrimSpace(organization)
	if username == "" {
		return nil, apperrors.Validationf(op, "username is required")
	}
	if len(password) < MinPasswordLength {
		return nil, apperrors.Validationf(op, "password must be at least %d characters", MinPasswordLength)
	}
	if organization == "" {
		organization = "default"
	}
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleAdmin && role != models.RoleUser {
		return nil, apperrors.Validationf(op, "unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, apperrors.E(apperrors.Validation, op, err)
	}
	org, err := s.users.FindOrCreateOrganization(ctx, organization, "")
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:       username,
		PasswordHash:   string(hash),
		OrganizationID: org.ID,
		Organization:   org,
		Role:           role,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("User created", zap.String("username", username), zap.String("organization", org.Name), zap.String("role", role))
	return user, nil
}

// Login checks the password and issues a bearer token. Unknown users and wrong passwords
// return the same error.
func (s *AuthService) Login(ctx context.Context, username, password string) (*UserContext, error) {
	const op = "services.Login"

	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperrors.KindOf(err) == apperrors.NotFound {
			// Unknown users pay for a hash comparison too, so timing does not reveal which names exist.
			_ = s.compare(s.fallbackHash(), []byte(password))
			return nil, apperrors.E(apperrors.Validation, op, apperrors.ErrInvalidCredentials)
		}
		return nil, err
	}
	if err := s.compare([]byte(user.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.Warn("Unreadable password hash", zap.String("username", user.Username), zap.Error(err))
		}
		return nil, apperrors.E(apperrors.Validation, op, apperrors.ErrInvalidCredentials)
	}

	now := s.now()
	session := &models.AuthSession{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.ttl).UTC(),
	}
	if err := s.users.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("Failed to record login time", zap.String("username", user.Username), zap.Error(err))
	}

	uc := userContext(user)
	uc.Token = session.Token
	uc.ExpiresAt = session.ExpiresAt
	return uc, nil
}

// IsAuthenticated resolves a bearer token. Expired tokens are deleted on sight.
func (s *AuthService) IsAuthenticated(ctx context.Context, token string) (*UserContext, error) {
	const op = "services.IsAuthenticated"

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.E(apperrors.Validation, op, apperrors.ErrUnauthorized)
	}
	session, err := s.users.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(session.ExpiresAt) {
		if err := s.users.DeleteSession(ctx, token); err != nil {
			s.logger.Warn("Failed to delete expired session", zap.Error(err))
		}
		return nil, apperrors.E(apperrors.Validation, op, apperrors.ErrUnauthorized)
	}
	if session.User == nil {
		return nil, apperrors.E(apperrors.Validation, op, apperrors.ErrUnauthorized)
	}
	uc := userContext(session.User)
	uc.ExpiresAt = session.ExpiresAt
	return uc, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.users.DeleteSession(ctx, strings.TrimSpace(token))
}

// PurgeExpiredSessions removes tokens past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.users.DeleteExpiredSessions(ctx, s.now())
}

func userContext(u *models.User) *UserContext {
	uc := &UserContext{
		UserID:         u.ID,
		Username:       u.Username,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
	}
	if u.Organization != nil {
		uc.Organization = u.Organization.Name
	}
	return uc
}
