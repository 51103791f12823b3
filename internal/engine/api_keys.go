package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"taskhub/internal/domain"
	"taskhub/internal/repo"
)

// CreateAPIKey mints a key for the given user and stores only its hash. The
// plaintext key is returned once and cannot be recovered later.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", err
	}

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := fmt.Sprintf("th_%s", hex.EncodeToString(raw))

	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, userID)
}

func (e Engine) RevokeAPIKey(ctx context.Context, id string) error {
	return e.Repo.DeleteAPIKey(ctx, id)
}

// ResolveAPIKey maps a presented plaintext key to its owning user.
func (e Engine) ResolveAPIKey(ctx context.Context, key string) (domain.User, error) {
	k, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, k.UserID)
}
