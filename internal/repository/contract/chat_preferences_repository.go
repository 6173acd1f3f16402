package contract

import (
	"context"

	"coi-notes-be/internal/entity"

	"github.com/google/uuid"
)

// ChatPreferencesRepository stores the last preferences a user sent.
// Get returns nil, nil when nothing is stored.
type ChatPreferencesRepository interface {
	Get(ctx context.Context, userId uuid.UUID) (*entity.ChatPreferences, error)
	Save(ctx context.Context, userId uuid.UUID, prefs *entity.ChatPreferences) error
}
