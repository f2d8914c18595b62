package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/server/models"
)

const (
	minUsernameLen = 3
	minPasswordLen = 8
)

// Service is the authentication collaborator consumed by the dispatcher:
// it validates credentials, API keys, and resume tokens, and manages the
// API keys of an account.
type Service struct {
	users            UserRepository
	keys             ApiKeyRepository
	jwtSecret        []byte
	resumeTokenValid time.Duration
	logger           logging.Logger
	now              func() time.Time
}

func NewService(users UserRepository, keys ApiKeyRepository, secretKey string, resumeTokenValid time.Duration, logger logging.Logger) *Service {
	return &Service{
		users:            users,
		keys:             keys,
		jwtSecret:        []byte(secretKey),
		resumeTokenValid: resumeTokenValid,
		logger:           logger.With("module", "auth"),
		now:              time.Now,
	}
}

// Register creates a new active account. Username uniqueness is
// case-insensitive; the repository enforces it and reports
// common.ErrUsernameTaken.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLen {
		return nil, fmt.Errorf("%w: username must be at least %d characters", common.ErrorValidation, minUsernameLen)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, minPasswordLen)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, &models.User{
		Username:     username,
		PasswordHash: hash,
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, common.ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info(ctx, "account registered", "username", username)
	return user, nil
}

// ValidateCredentials checks a username/password pair. Unknown usernames,
// wrong passwords, and inactive accounts all map to
// common.ErrorUnauthorized so the response does not disclose which part
// failed.
func (s *Service) ValidateCredentials(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !VerifyPassword(user.PasswordHash, password) {
		return nil, common.ErrorUnauthorized
	}
	if !user.Active {
		return nil, common.ErrorUnauthorized
	}

	return user, nil
}

// ValidateApiKey checks an opaque API key token. A key is valid only if it
// is not revoked, not expired (or has no expiry), and the owning account is
// active. Valid keys get their last-used timestamp bumped.
func (s *Service) ValidateApiKey(ctx context.Context, token string) (*models.User, error) {
	if !ValidTokenShape(token) {
		return nil, common.ErrorUnauthorized
	}

	key, err := s.keys.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("lookup api key: %w", err)
	}

	now := s.now().UTC()
	if !key.Usable(now) {
		return nil, common.ErrorUnauthorized
	}

	user, err := s.users.GetByID(ctx, key.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("lookup key owner: %w", err)
	}
	if !user.Active {
		return nil, common.ErrorUnauthorized
	}

	if err := s.keys.TouchLastUsed(ctx, key.ID, now); err != nil {
		// best effort; the key already validated
		s.logger.Warn(ctx, "failed to bump api key last-used", "error", err)
	}

	return user, nil
}

// ValidateResumeToken checks a signed resume token from a previous login.
func (s *Service) ValidateResumeToken(ctx context.Context, token string) (*models.User, error) {
	accountID, err := AccountIDFromToken(token, s.jwtSecret)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	user, err := s.users.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active {
		return nil, common.ErrorUnauthorized
	}

	return user, nil
}

// IssueResumeToken signs a fresh resume token for the account.
func (s *Service) IssueResumeToken(accountID string) (string, error) {
	return GenerateResumeToken(accountID, s.jwtSecret, s.resumeTokenValid)
}

// IssueApiKey creates a new API key for the account and returns it together
// with its token. The token is only available at creation time.
func (s *Service) IssueApiKey(ctx context.Context, accountID, label string, expiresAt *time.Time) (*models.ApiKey, error) {
	token, err := NewApiKeyToken()
	if err != nil {
		return nil, fmt.Errorf("generate api key token: %w", err)
	}

	key, err := s.keys.Create(ctx, &models.ApiKey{
		AccountID: accountID,
		Token:     token,
		Label:     label,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	s.logger.Info(ctx, "api key issued", "account", accountID, "label", label)
	return key, nil
}

// RevokeApiKey revokes one of the account's keys.
func (s *Service) RevokeApiKey(ctx context.Context, accountID, keyID string) error {
	return s.keys.Revoke(ctx, accountID, keyID)
}

// ListApiKeys lists the account's keys.
func (s *Service) ListApiKeys(ctx context.Context, accountID string) ([]*models.ApiKey, error) {
	return s.keys.ListByAccount(ctx, accountID)
}
