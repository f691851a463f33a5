package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTokenStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker", "token.yaml")
	store, err := NewFileTokenStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)

	token := &BrokerToken{
		AccessToken:  "broker-at",
		RefreshToken: "broker-rt",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(context.Background(), token))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "broker-at", loaded.AccessToken)
	assert.Equal(t, "broker-rt", loaded.RefreshToken)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestSource_AccessToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.yaml")
	store, err := NewFileTokenStore(path)
	require.NoError(t, err)
	source := NewSource(store)

	t.Run("missing token", func(t *testing.T) {
		_, err := source.AccessToken(context.Background())
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("valid token", func(t *testing.T) {
		require.NoError(t, store.Save(context.Background(), &BrokerToken{
			AccessToken: "broker-at",
			ExpiresAt:   time.Now().Add(time.Hour),
		}))
		got, err := source.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "broker-at", got)
	})

	t.Run("expired token", func(t *testing.T) {
		require.NoError(t, store.Save(context.Background(), &BrokerToken{
			AccessToken: "broker-at",
			ExpiresAt:   time.Now().Add(-time.Minute),
		}))
		_, err := source.AccessToken(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expired")
	})
}
