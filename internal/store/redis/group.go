package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SaveGroup stores a credential group in Redis
func (s *Store) SaveGroup(ctx context.Context, group *domain.CredentialGroup) error {
	data, err := json.Marshal(group)
	if err != nil {
		return errEncoding(err, "failed to marshal credential group %s", group.ID)
	}

	key := GroupKey(group.ID)

	// Store group data
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return errBackend(err, "failed to save credential group %s", group.ID)
	}

	// Add to set of all groups
	if err := s.client.SAdd(ctx, AllGroupsKey(), group.ID).Err(); err != nil {
		return errBackend(err, "failed to add credential group %s to set", group.ID)
	}

	return nil
}

// GetGroup retrieves a credential group from Redis by ID
func (s *Store) GetGroup(ctx context.Context, id string) (*domain.CredentialGroup, error) {
	key := GroupKey(id)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errNotFound("credential group", id)
		}
		return nil, errBackend(err, "failed to get credential group %s", id)
	}

	var group domain.CredentialGroup
	if err := json.Unmarshal(data, &group); err != nil {
		return nil, errEncoding(err, "failed to unmarshal credential group %s", id)
	}

	return &group, nil
}

// GetAllGroups retrieves all credential groups from Redis
func (s *Store) GetAllGroups(ctx context.Context) ([]*domain.CredentialGroup, error) {
	ids, err := s.client.SMembers(ctx, AllGroupsKey()).Result()
	if err != nil {
		return nil, errBackend(err, "failed to get credential group IDs")
	}

	if len(ids) == 0 {
		return []*domain.CredentialGroup{}, nil
	}

	groups := make([]*domain.CredentialGroup, 0, len(ids))
	for _, id := range ids {
		group, err := s.GetGroup(ctx, id)
		if err != nil {
			// Skip groups that couldn't be retrieved
			continue
		}
		groups = append(groups, group)
	}

	return groups, nil
}

// DeleteGroup removes a credential group and its credential record from
// Redis. Detaching the widgets that referenced it is the lifecycle
// manager's job; the store only deletes the records.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, GroupKey(id))
	pipe.Del(ctx, CredentialsKey(id))
	pipe.SRem(ctx, AllGroupsKey(), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return errBackend(err, "failed to delete credential group %s", id)
	}
	return nil
}
