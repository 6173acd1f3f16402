package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chat:preferences:"

type ChatPreferencesRepository struct {
	client *redis.Client
	ttl    time.Duration
}

var _ contract.ChatPreferencesRepository = (*ChatPreferencesRepository)(nil)

func NewChatPreferencesRepository(client *redis.Client, ttl time.Duration) *ChatPreferencesRepository {
	return &ChatPreferencesRepository{client: client, ttl: ttl}
}

func (r *ChatPreferencesRepository) Get(ctx context.Context, userId uuid.UUID) (*entity.ChatPreferences, error) {
	raw, err := r.client.Get(ctx, keyPrefix+userId.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	var prefs entity.ChatPreferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return &prefs, nil
}

func (r *ChatPreferencesRepository) Save(ctx context.Context, userId uuid.UUID, prefs *entity.ChatPreferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+userId.String(), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// NewClient parses a redis:// URL and checks the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
