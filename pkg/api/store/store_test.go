package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/boa-dev/conformoor/pkg/api/store"
	"github.com/boa-dev/conformoor/pkg/config"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &config.APIDatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func TestStore_SeedUsers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	users := []config.BasicAuthUser{
		{Username: "admin", Password: "secret", Role: "admin"},
		{Username: "viewer", Password: "other", Role: "readonly"},
	}

	require.NoError(t, s.SeedUsers(ctx, users))

	admin, err := s.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.Role)
	assert.Equal(t, store.SourceConfig, admin.Source)

	// The stored hash verifies against the config password.
	require.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(admin.PasswordHash), []byte("secret"),
	))

	// Seeding again must not duplicate users.
	require.NoError(t, s.SeedUsers(ctx, users))

	all, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_UserCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := &store.User{
		Username:     "alice",
		PasswordHash: "hash",
		Role:         "readonly",
		Source:       store.SourceAdmin,
	}
	require.NoError(t, s.CreateUser(ctx, user))
	require.NotZero(t, user.ID)

	// Duplicate usernames are rejected.
	require.Error(t, s.CreateUser(ctx, &store.User{
		Username:     "alice",
		PasswordHash: "hash",
		Role:         "admin",
		Source:       store.SourceAdmin,
	}))

	user.Role = "admin"
	require.NoError(t, s.UpdateUser(ctx, user))

	got, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Role)

	require.NoError(t, s.DeleteUser(ctx, user.ID))

	_, err = s.GetUserByID(ctx, user.ID)
	require.Error(t, err)
}

func TestStore_Sessions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := &store.User{
		Username:     "bob",
		PasswordHash: "hash",
		Role:         "readonly",
		Source:       store.SourceAdmin,
	}
	require.NoError(t, s.CreateUser(ctx, user))

	session := &store.Session{
		Token:     "tok-1",
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, session))

	got, err := s.GetSessionByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.UserID)

	now := time.Now().UTC()
	require.NoError(t, s.UpdateSessionLastActive(ctx, got.ID, now))

	require.NoError(t, s.DeleteSession(ctx, "tok-1"))

	_, err = s.GetSessionByToken(ctx, "tok-1")
	require.Error(t, err)
}

func TestStore_DeleteExpiredSessions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := &store.User{
		Username:     "carol",
		PasswordHash: "hash",
		Role:         "readonly",
		Source:       store.SourceAdmin,
	}
	require.NoError(t, s.CreateUser(ctx, user))

	expired := &store.Session{
		Token:     "old",
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	active := &store.Session{
		Token:     "new",
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, expired))
	require.NoError(t, s.CreateSession(ctx, active))

	require.NoError(t, s.DeleteExpiredSessions(ctx))

	_, err := s.GetSessionByToken(ctx, "old")
	require.Error(t, err)

	_, err = s.GetSessionByToken(ctx, "new")
	require.NoError(t, err)
}
