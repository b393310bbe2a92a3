package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Store handles Redis operations for widgets, credential groups and
// credential records. Records are durable (no TTL): a widget exists
// until the user deletes it.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// SaveWidget stores a widget in Redis
func (s *Store) SaveWidget(ctx context.Context, widget *domain.Widget) error {
	data, err := json.Marshal(widget)
	if err != nil {
		return errEncoding(err, "failed to marshal widget %s", widget.ID)
	}

	key := WidgetKey(widget.ID)

	// Store widget data
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return errBackend(err, "failed to save widget %s", widget.ID)
	}

	// Add to set of all widgets
	if err := s.client.SAdd(ctx, AllWidgetsKey(), widget.ID).Err(); err != nil {
		return errBackend(err, "failed to add widget %s to set", widget.ID)
	}

	return nil
}

// GetWidget retrieves a widget from Redis by ID
func (s *Store) GetWidget(ctx context.Context, id string) (*domain.Widget, error) {
	key := WidgetKey(id)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errNotFound("widget", id)
		}
		return nil, errBackend(err, "failed to get widget %s", id)
	}

	var widget domain.Widget
	if err := json.Unmarshal(data, &widget); err != nil {
		return nil, errEncoding(err, "failed to unmarshal widget %s", id)
	}

	return &widget, nil
}

// GetAllWidgets retrieves all widgets from Redis
func (s *Store) GetAllWidgets(ctx context.Context) ([]*domain.Widget, error) {
	// Get all widget IDs
	ids, err := s.client.SMembers(ctx, AllWidgetsKey()).Result()
	if err != nil {
		return nil, errBackend(err, "failed to get widget IDs")
	}

	if len(ids) == 0 {
		return []*domain.Widget{}, nil
	}

	widgets := make([]*domain.Widget, 0, len(ids))
	for _, id := range ids {
		widget, err := s.GetWidget(ctx, id)
		if err != nil {
			// Skip widgets that couldn't be retrieved
			continue
		}
		widgets = append(widgets, widget)
	}

	return widgets, nil
}

// DeleteWidget removes a widget and its credential record from Redis
func (s *Store) DeleteWidget(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, WidgetKey(id))
	pipe.Del(ctx, CredentialsKey(id))
	pipe.SRem(ctx, AllWidgetsKey(), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return errBackend(err, "failed to delete widget %s", id)
	}
	return nil
}

// SaveWidgetsMany stores multiple widgets in Redis (bulk operation)
func (s *Store) SaveWidgetsMany(ctx context.Context, widgets []*domain.Widget) error {
	pipe := s.client.Pipeline()

	for _, widget := range widgets {
		data, err := json.Marshal(widget)
		if err != nil {
			return errEncoding(err, "failed to marshal widget %s", widget.ID)
		}

		key := WidgetKey(widget.ID)
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, AllWidgetsKey(), widget.ID)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return errBackend(err, "failed to save widgets")
	}

	return nil
}
