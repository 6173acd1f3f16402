package redisstore

import (
	"context"
	"testing"
	"time"

	"coi-notes-be/internal/entity"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*ChatPreferencesRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewChatPreferencesRepository(client, 24*time.Hour), mr
}

func TestChatPreferencesRepository_SaveAndGet(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()
	userId := uuid.New()

	got, err := repo.Get(ctx, userId)
	require.NoError(t, err)
	assert.Nil(t, got)

	prefs := &entity.ChatPreferences{ModelTier: entity.ModelTierPro, ThinkingEffort: entity.ThinkingLow, SearchEnabled: true, MaxOutputTokens: 2048}
	require.NoError(t, repo.Save(ctx, userId, prefs))

	got, err = repo.Get(ctx, userId)
	require.NoError(t, err)
	assert.Equal(t, prefs, got)

	assert.Equal(t, 24*time.Hour, mr.TTL(keyPrefix+userId.String()))

	mr.FastForward(25 * time.Hour)
	got, err = repo.Get(ctx, userId)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestChatPreferencesRepository_CorruptValue(t *testing.T) {
	repo, mr := newTestRepo(t)
	userId := uuid.New()
	require.NoError(t, mr.Set(keyPrefix+userId.String(), "{not json"))

	_, err := repo.Get(context.Background(), userId)
	assert.Error(t, err)
}
