package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SaveCredentials stores a credential record. The username and password
// inside it are already ciphertext blobs; plaintext never reaches the
// store.
func (s *Store) SaveCredentials(ctx context.Context, creds *domain.StoredCredentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return errEncoding(err, "failed to marshal credentials for %s", creds.OwnerID)
	}

	key := CredentialsKey(creds.OwnerID)
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return errBackend(err, "failed to save credentials for %s", creds.OwnerID)
	}
	return nil
}

// GetCredentials retrieves the credential record for a widget or group
func (s *Store) GetCredentials(ctx context.Context, ownerID string) (*domain.StoredCredentials, error) {
	key := CredentialsKey(ownerID)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errNotFound("credentials", ownerID)
		}
		return nil, errBackend(err, "failed to get credentials for %s", ownerID)
	}

	var creds domain.StoredCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, errEncoding(err, "failed to unmarshal credentials for %s", ownerID)
	}

	return &creds, nil
}

// DeleteCredentials removes the credential record for a widget or group
func (s *Store) DeleteCredentials(ctx context.Context, ownerID string) error {
	if err := s.client.Del(ctx, CredentialsKey(ownerID)).Err(); err != nil {
		return errBackend(err, "failed to delete credentials for %s", ownerID)
	}
	return nil
}
