package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"jorra-tryon/internal/db"
	"jorra-tryon/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type CredentialStoreTestSuite struct {
	suite.Suite
	store *SQLCredentialStore
	close func()
}

func (suite *CredentialStoreTestSuite) SetupTest() {
	database, err := db.InitDB("sqlite", ":memory:")
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), db.RunMigrations(database))

	s, err := NewSQLCredentialStore(database, "test-secret")
	require.NoError(suite.T(), err)
	suite.store = s
	suite.close = func() { database.Close() }
}

func (suite *CredentialStoreTestSuite) TearDownTest() {
	suite.close()
}

func (suite *CredentialStoreTestSuite) TestEmptySlot() {
	token, err := suite.store.Get(context.Background())
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), token)
}

func (suite *CredentialStoreTestSuite) TestSetGetClear() {
	ctx := context.Background()

	require.NoError(suite.T(), suite.store.Set(ctx, "first"))
	require.NoError(suite.T(), suite.store.Set(ctx, "second"))

	token, err := suite.store.Get(ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "second", token)

	require.NoError(suite.T(), suite.store.Clear(ctx))
	require.NoError(suite.T(), suite.store.Clear(ctx))

	token, err = suite.store.Get(ctx)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), token)
}

func (suite *CredentialStoreTestSuite) TestValueEncryptedAtRest() {
	ctx := context.Background()
	require.NoError(suite.T(), suite.store.Set(ctx, "bearer-abc"))

	var raw string
	err := suite.store.db.QueryRow("SELECT value FROM credentials WHERE slot = ?", AuthTokenSlot).Scan(&raw)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), strings.HasPrefix(raw, encryptedPrefix))
	assert.NotContains(suite.T(), raw, "bearer-abc")
}

func (suite *CredentialStoreTestSuite) TestWrongSecretCannotRead() {
	ctx := context.Background()
	require.NoError(suite.T(), suite.store.Set(ctx, "bearer-abc"))

	other, err := NewSQLCredentialStore(suite.store.db, "rotated-secret")
	require.NoError(suite.T(), err)

	_, err = other.Get(ctx)
	assert.ErrorIs(suite.T(), err, ErrUndecryptable)
}

func TestCredentialStoreSuite(t *testing.T) {
	suite.Run(t, new(CredentialStoreTestSuite))
}

func TestMemoryCredentialStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCredentialStore()

	require.NoError(t, s.Set(ctx, "tok"))
	token, _ := s.Get(ctx)
	assert.Equal(t, "tok", token)

	require.NoError(t, s.Clear(ctx))
	token, _ = s.Get(ctx)
	assert.Empty(t, token)
}

func TestTransferStore_ConsumeOnce(t *testing.T) {
	s := NewTransferStore(time.Minute, 10)
	result := &models.GenerationResult{Image: []byte{1, 2, 3}, SourceHairstyleID: "42"}

	key, err := s.Put(result)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "tryon-"))

	got, ok := s.Take(key)
	require.True(t, ok)
	assert.Equal(t, result, got)

	_, ok = s.Take(key)
	assert.False(t, ok, "a key must be consumed by the first read")
	assert.Equal(t, 0, s.Len())
}

func TestTransferStore_Expiry(t *testing.T) {
	now := time.Now()
	s := NewTransferStore(time.Minute, 10)
	s.now = func() time.Time { return now }

	key, err := s.Put(&models.GenerationResult{})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, ok := s.Take(key)
	assert.False(t, ok)
}

func TestTransferStore_Full(t *testing.T) {
	s := NewTransferStore(time.Minute, 1)

	_, err := s.Put(&models.GenerationResult{})
	require.NoError(t, err)

	_, err = s.Put(&models.GenerationResult{})
	assert.ErrorIs(t, err, ErrTransferFull)
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,AQID", DataURL("image/jpeg", []byte{1, 2, 3}))
	assert.True(t, strings.HasPrefix(DataURL("", nil), "data:image/png;base64,"))
}
