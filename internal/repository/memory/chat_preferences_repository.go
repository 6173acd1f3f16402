package memory

import (
	"context"
	"time"

	"coi-notes-be/internal/entity"
	"coi-notes-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ChatPreferencesRepository keeps preferences in process. Used when Redis
// is not reachable; values do not survive a restart.
type ChatPreferencesRepository struct {
	cache *cache.Cache
}

var _ contract.ChatPreferencesRepository = (*ChatPreferencesRepository)(nil)

func NewChatPreferencesRepository(ttl time.Duration) *ChatPreferencesRepository {
	return &ChatPreferencesRepository{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (r *ChatPreferencesRepository) Get(_ context.Context, userId uuid.UUID) (*entity.ChatPreferences, error) {
	if x, found := r.cache.Get(userId.String()); found {
		prefs := x.(entity.ChatPreferences)
		return &prefs, nil
	}
	return nil, nil
}

func (r *ChatPreferencesRepository) Save(_ context.Context, userId uuid.UUID, prefs *entity.ChatPreferences) error {
	r.cache.Set(userId.String(), *prefs, cache.DefaultExpiration)
	return nil
}
