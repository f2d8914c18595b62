package auth

import (
	"context"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/server/models"
)

// UserRepository is the account storage the auth service depends on.
// GetByUsername matches usernames case-insensitively.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// ApiKeyRepository is the API key storage the auth service depends on.
type ApiKeyRepository interface {
	Create(ctx context.Context, key *models.ApiKey) (*models.ApiKey, error)
	GetByToken(ctx context.Context, token string) (*models.ApiKey, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, accountID, id string) error
	ListByAccount(ctx context.Context, accountID string) ([]*models.ApiKey, error)
}
