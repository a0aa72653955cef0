package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync/atomic"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/pratik-mahalle/farmlink/internal/domain/credential"
	"github.com/pratik-mahalle/farmlink/internal/pkg/crypto"
	"github.com/pratik-mahalle/farmlink/internal/pkg/errors"
	"github.com/pratik-mahalle/farmlink/internal/pkg/metrics"
)

const credentialsTable = "provider_credentials"

var credentialColumns = []string{
	"user_id", "provider_id", "access_token", "refresh_token", "scope", "expires_at", "updated_at", "version",
}

// CredentialRepository implements credential.Repository
type CredentialRepository struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	cipher *crypto.TokenCipher
	now    func() time.Time

	lastVersion atomic.Int64
}

// NewCredentialRepository creates a new credential repository. Tokens are
// sealed with cipher before they are written.
func NewCredentialRepository(db *sql.DB, driver string, cipher *crypto.TokenCipher) *CredentialRepository {
	return &CredentialRepository{
		db:     db,
		sb:     StatementBuilder(driver).RunWith(db),
		cipher: cipher,
		now:    time.Now,
	}
}

// Get retrieves the credential a user holds for a provider
func (r *CredentialRepository) Get(ctx context.Context, userID, providerID string) (*credential.Credential, error) {
	defer observe("get", time.Now())

	row := r.sb.Select(credentialColumns...).
		From(credentialsTable).
		Where("user_id = ? AND provider_id = ?", userID, providerID).
		QueryRowContext(ctx)

	c, err := r.scan(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("Credential")
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Upsert creates or replaces a credential in one statement
func (r *CredentialRepository) Upsert(ctx context.Context, c *credential.Credential) error {
	defer observe("upsert", time.Now())

	access, err := r.cipher.Encrypt(c.AccessToken)
	if err != nil {
		return errors.Internal("Failed to encrypt access token", err)
	}
	refresh, err := r.cipher.Encrypt(c.RefreshToken)
	if err != nil {
		return errors.Internal("Failed to encrypt refresh token", err)
	}

	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = r.now()
	}

	version := r.nextVersion()
	_, err = r.sb.Insert(credentialsTable).
		Columns(credentialColumns...).
		Values(
			c.UserID, c.ProviderID, access, refresh,
			credential.FormatScope(c.Scope), c.ExpiresAt.Unix(), c.UpdatedAt.Unix(), version,
		).
		Suffix(`ON CONFLICT (user_id, provider_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			scope = excluded.scope,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at,
			version = excluded.version`).
		ExecContext(ctx)
	if err != nil {
		return errors.DatabaseError("Failed to upsert credential", err)
	}

	c.Version = version
	return nil
}

// Delete removes a credential; missing rows are not an error
func (r *CredentialRepository) Delete(ctx context.Context, userID, providerID string) error {
	defer observe("delete", time.Now())

	_, err := r.sb.Delete(credentialsTable).
		Where("user_id = ? AND provider_id = ?", userID, providerID).
		ExecContext(ctx)
	if err != nil {
		return errors.DatabaseError("Failed to delete credential", err)
	}
	return nil
}

// UpdateIfVersion writes refreshed tokens unless the row changed since c was read
func (r *CredentialRepository) UpdateIfVersion(ctx context.Context, c *credential.Credential) (bool, error) {
	defer observe("update_if_version", time.Now())

	access, err := r.cipher.Encrypt(c.AccessToken)
	if err != nil {
		return false, errors.Internal("Failed to encrypt access token", err)
	}
	refresh, err := r.cipher.Encrypt(c.RefreshToken)
	if err != nil {
		return false, errors.Internal("Failed to encrypt refresh token", err)
	}

	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = r.now()
	}

	version := r.nextVersion()
	res, err := r.sb.Update(credentialsTable).
		Set("access_token", access).
		Set("refresh_token", refresh).
		Set("scope", credential.FormatScope(c.Scope)).
		Set("expires_at", c.ExpiresAt.Unix()).
		Set("updated_at", c.UpdatedAt.Unix()).
		Set("version", version).
		Where("user_id = ? AND provider_id = ? AND version = ?", c.UserID, c.ProviderID, c.Version).
		ExecContext(ctx)
	if err != nil {
		return false, errors.DatabaseError("Failed to update credential", err)
	}

	ok, err := affectedOne(res)
	if err != nil {
		return false, errors.DatabaseError("Failed to update credential", err)
	}
	if ok {
		c.Version = version
	}
	return ok, nil
}

// DeleteIfVersion removes the credential unless it changed since it was read
func (r *CredentialRepository) DeleteIfVersion(ctx context.Context, userID, providerID string, version int64) (bool, error) {
	defer observe("delete_if_version", time.Now())

	res, err := r.sb.Delete(credentialsTable).
		Where("user_id = ? AND provider_id = ? AND version = ?", userID, providerID, version).
		ExecContext(ctx)
	if err != nil {
		return false, errors.DatabaseError("Failed to delete credential", err)
	}

	ok, err := affectedOne(res)
	if err != nil {
		return false, errors.DatabaseError("Failed to delete credential", err)
	}
	return ok, nil
}

// nextVersion returns a write stamp never handed out before by this
// repository. A re-created row therefore never matches a version read from
// the row it replaced.
func (r *CredentialRepository) nextVersion() int64 {
	for {
		last := r.lastVersion.Load()
		next := r.now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if r.lastVersion.CompareAndSwap(last, next) {
			return next
		}
	}
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListByUser returns all credentials of a user ordered by provider
func (r *CredentialRepository) ListByUser(ctx context.Context, userID string) ([]*credential.Credential, error) {
	defer observe("list_by_user", time.Now())

	rows, err := r.sb.Select(credentialColumns...).
		From(credentialsTable).
		Where("user_id = ?", userID).
		OrderBy("provider_id").
		QueryContext(ctx)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list credentials", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ListExpiring returns refreshable credentials expiring before the given time, soonest first
func (r *CredentialRepository) ListExpiring(ctx context.Context, before time.Time, limit int) ([]*credential.Credential, error) {
	defer observe("list_expiring", time.Now())

	query := r.sb.Select(credentialColumns...).
		From(credentialsTable).
		Where(sq.Lt{"expires_at": before.Unix()}).
		Where(sq.NotEq{"refresh_token": ""}).
		OrderBy("expires_at ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list expiring credentials", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

func (r *CredentialRepository) scanAll(rows *sql.Rows) ([]*credential.Credential, error) {
	var out []*credential.Credential
	for rows.Next() {
		c, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("Failed to iterate credentials", err)
	}
	return out, nil
}

func (r *CredentialRepository) scan(row sq.RowScanner) (*credential.Credential, error) {
	var (
		c                       credential.Credential
		access, refresh, scope  string
		expiresUnix, updateUnix int64
	)

	err := row.Scan(&c.UserID, &c.ProviderID, &access, &refresh, &scope, &expiresUnix, &updateUnix, &c.Version)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to read credential", err)
	}

	if c.AccessToken, err = r.cipher.Decrypt(access); err != nil {
		return nil, errors.Internal("Failed to decrypt access token", err)
	}
	if c.RefreshToken, err = r.cipher.Decrypt(refresh); err != nil {
		return nil, errors.Internal("Failed to decrypt refresh token", err)
	}

	c.Scope = credential.ParseScope(scope)
	c.ExpiresAt = time.Unix(expiresUnix, 0)
	c.UpdatedAt = time.Unix(updateUnix, 0)
	return &c, nil
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, credentialsTable, time.Since(start))
}
