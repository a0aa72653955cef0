package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratik-mahalle/farmlink/internal/domain/credential"
	"github.com/pratik-mahalle/farmlink/internal/pkg/crypto"
	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
	"github.com/pratik-mahalle/farmlink/internal/testutil"
)

func plainCipher(t *testing.T) *crypto.TokenCipher {
	t.Helper()
	c, err := crypto.NewTokenCipher("")
	require.NoError(t, err)
	return c
}

func sealingCipher(t *testing.T) *crypto.TokenCipher {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c, err := crypto.NewTokenCipher(key)
	require.NoError(t, err)
	return c
}

func TestCredentialRepository_RoundTrip(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer testutil.CleanupDB(db)

	repo := NewCredentialRepository(db, "sqlite", sealingCipher(t))
	ctx := context.Background()
	expires := time.Now().Add(time.Hour).Truncate(time.Second)

	_, err := repo.Get(ctx, "user-1", "deere")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))

	in := &credential.Credential{
		UserID:       "user-1",
		ProviderID:   "deere",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Scope:        []string{"org1", "ag1"},
		ExpiresAt:    expires,
	}
	require.NoError(t, repo.Upsert(ctx, in))

	got, err := repo.Get(ctx, "user-1", "deere")
	require.NoError(t, err)
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)
	assert.Equal(t, []string{"ag1", "org1"}, got.Scope)
	assert.True(t, expires.Equal(got.ExpiresAt))

	var stored string
	require.NoError(t, db.QueryRow("SELECT access_token FROM provider_credentials").Scan(&stored))
	assert.NotEqual(t, "access-1", stored, "tokens are sealed at rest")
}

func TestCredentialRepository_UpsertReplaces(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer testutil.CleanupDB(db)

	repo := NewCredentialRepository(db, "sqlite", plainCipher(t))
	ctx := context.Background()

	first := &credential.Credential{UserID: "u", ProviderID: "deere", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Now()}
	second := &credential.Credential{UserID: "u", ProviderID: "deere", AccessToken: "a2", ExpiresAt: time.Now().Add(time.Hour)}

	require.NoError(t, repo.Upsert(ctx, first))
	require.NoError(t, repo.Upsert(ctx, second))

	got, err := repo.Get(ctx, "u", "deere")
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Empty(t, got.RefreshToken)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM provider_credentials").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCredentialRepository_DeleteIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer testutil.CleanupDB(db)

	repo := NewCredentialRepository(db, "sqlite", plainCipher(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &credential.Credential{UserID: "u", ProviderID: "deere", AccessToken: "a", ExpiresAt: time.Now()}))
	require.NoError(t, repo.Delete(ctx, "u", "deere"))
	require.NoError(t, repo.Delete(ctx, "u", "deere"))

	_, err := repo.Get(ctx, "u", "deere")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestCredentialRepository_ConditionalWrites(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer testutil.CleanupDB(db)

	repo := NewCredentialRepository(db, "sqlite", sealingCipher(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &credential.Credential{UserID: "u", ProviderID: "deere", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Now()}))
	read, err := repo.Get(ctx, "u", "deere")
	require.NoError(t, err)

	// disconnect and reconnect while a refresh holds the old version
	require.NoError(t, repo.Delete(ctx, "u", "deere"))
	require.NoError(t, repo.Upsert(ctx, &credential.Credential{UserID: "u", ProviderID: "deere", AccessToken: "a2", RefreshToken: "r2", ExpiresAt: time.Now().Add(time.Hour)}))

	stale := *read
	stale.AccessToken = "refreshed"
	ok, err := repo.UpdateIfVersion(ctx, &stale)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.DeleteIfVersion(ctx, "u", "deere", read.Version)
	require.NoError(t, err)
	assert.False(t, ok)

	current, err := repo.Get(ctx, "u", "deere")
	require.NoError(t, err)
	assert.Equal(t, "a2", current.AccessToken)
	assert.NotEqual(t, read.Version, current.Version)

	before := current.Version
	current.AccessToken = "a3"
	ok, err = repo.UpdateIfVersion(ctx, current)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEqual(t, before, current.Version)

	ok, err = repo.DeleteIfVersion(ctx, "u", "deere", current.Version)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.Get(ctx, "u", "deere")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestCredentialRepository_Lists(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer testutil.CleanupDB(db)

	repo := NewCredentialRepository(db, "sqlite", plainCipher(t))
	ctx := context.Background()
	now := time.Now()

	creds := []*credential.Credential{
		{UserID: "u1", ProviderID: "fieldview", AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(2 * time.Minute)},
		{UserID: "u1", ProviderID: "deere", AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(time.Minute)},
		{UserID: "u2", ProviderID: "deere", AccessToken: "a", ExpiresAt: now.Add(time.Minute)},
		{UserID: "u2", ProviderID: "fieldview", AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(2 * time.Hour)},
	}
	for _, c := range creds {
		require.NoError(t, repo.Upsert(ctx, c))
	}

	byUser, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, "deere", byUser[0].ProviderID)
	assert.Equal(t, "fieldview", byUser[1].ProviderID)

	expiring, err := repo.ListExpiring(ctx, now.Add(10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, expiring, 2, "credentials without a refresh token are skipped")
	assert.Equal(t, "deere", expiring[0].ProviderID)
	assert.Equal(t, "fieldview", expiring[1].ProviderID)

	limited, err := repo.ListExpiring(ctx, now.Add(10*time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCredentialRepository_PostgresStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewCredentialRepository(db, "postgres", plainCipher(t))
	ctx := context.Background()
	expires := time.Unix(1_700_000_000, 0)
	updated := time.Unix(1_699_990_000, 0)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO provider_credentials (user_id,provider_id,access_token,refresh_token,scope,expires_at,updated_at,version) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (user_id, provider_id) DO UPDATE SET")).
		WithArgs("u", "deere", "a", "r", "ag1 org1", expires.Unix(), updated.Unix(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(ctx, &credential.Credential{
		UserID: "u", ProviderID: "deere", AccessToken: "a", RefreshToken: "r",
		Scope: []string{"org1", "ag1"}, ExpiresAt: expires, UpdatedAt: updated,
	}))

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT user_id, provider_id, access_token, refresh_token, scope, expires_at, updated_at, version FROM provider_credentials WHERE user_id = $1 AND provider_id = $2")).
		WithArgs("u", "deere").
		WillReturnRows(sqlmock.NewRows(credentialColumns).
			AddRow("u", "deere", "a", "r", "ag1 org1", expires.Unix(), updated.Unix(), int64(4)))

	got, err := repo.Get(ctx, "u", "deere")
	require.NoError(t, err)
	assert.Equal(t, []string{"ag1", "org1"}, got.Scope)
	assert.True(t, expires.Equal(got.ExpiresAt))
	assert.Equal(t, int64(4), got.Version)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE provider_credentials SET access_token = $1, refresh_token = $2, scope = $3, expires_at = $4, updated_at = $5, version = $6 WHERE user_id = $7 AND provider_id = $8 AND version = $9")).
		WithArgs("a2", "r", "ag1 org1", expires.Unix(), updated.Unix(), sqlmock.AnyArg(), "u", "deere", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got.AccessToken = "a2"
	got.UpdatedAt = updated
	ok, err := repo.UpdateIfVersion(ctx, got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEqual(t, int64(4), got.Version)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM provider_credentials WHERE user_id = $1 AND provider_id = $2 AND version = $3")).
		WithArgs("u", "deere", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.DeleteIfVersion(ctx, "u", "deere", 4)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM provider_credentials WHERE user_id = $1 AND provider_id = $2")).
		WithArgs("u", "deere").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(ctx, "u", "deere"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_DatabaseErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewCredentialRepository(db, "postgres", plainCipher(t))
	ctx := context.Background()

	mock.ExpectQuery("SELECT .* FROM provider_credentials").WillReturnError(sql.ErrConnDone)
	_, err = repo.Get(ctx, "u", "deere")
	assert.True(t, errors.HasCode(err, errors.ErrCodeDatabase))

	mock.ExpectExec("DELETE FROM provider_credentials").WillReturnError(sql.ErrConnDone)
	err = repo.Delete(ctx, "u", "deere")
	assert.True(t, errors.HasCode(err, errors.ErrCodeDatabase))

	mock.ExpectQuery("SELECT .* FROM provider_credentials WHERE expires_at < \\$1 AND refresh_token <> \\$2 ORDER BY expires_at ASC LIMIT 5").
		WillReturnError(sql.ErrConnDone)
	_, err = repo.ListExpiring(ctx, time.Now(), 5)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDatabase))

	assert.NoError(t, mock.ExpectationsWereMet())
}
