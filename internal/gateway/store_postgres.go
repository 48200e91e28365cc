package gateway

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	slerrors "github.com/Dastari/sidereal-v3/infrastructure/errors"
	"github.com/Dastari/sidereal-v3/internal/auth"
)

// PostgresStore keeps accounts and token hashes in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the auth tables. Idempotent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS auth_accounts (
            account_id UUID PRIMARY KEY,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            player_entity_id TEXT NOT NULL,
            created_at_epoch_s BIGINT NOT NULL
        );

        CREATE TABLE IF NOT EXISTS auth_refresh_tokens (
            token_hash TEXT PRIMARY KEY,
            account_id UUID NOT NULL REFERENCES auth_accounts(account_id) ON DELETE CASCADE,
            expires_at_epoch_s BIGINT NOT NULL,
            created_at_epoch_s BIGINT NOT NULL
        );

        CREATE TABLE IF NOT EXISTS auth_password_reset_tokens (
            token_hash TEXT PRIMARY KEY,
            account_id UUID NOT NULL REFERENCES auth_accounts(account_id) ON DELETE CASCADE,
            expires_at_epoch_s BIGINT NOT NULL,
            created_at_epoch_s BIGINT NOT NULL
        );
    `)
	if err != nil {
		return slerrors.DatabaseError("auth schema ensure", err)
	}
	return nil
}

// CreateAccount inserts a new account; duplicate emails are a Conflict
func (s *PostgresStore) CreateAccount(ctx context.Context, email, passwordHash string) (Account, error) {
	accountID := uuid.New()
	playerEntityID := auth.PlayerEntityIDFor(accountID)
	now := time.Now().Unix()

	var account Account
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO auth_accounts (account_id, email, password_hash, player_entity_id, created_at_epoch_s)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING account_id, email, password_hash, player_entity_id
    `, accountID, email, passwordHash, playerEntityID, now).
		Scan(&account.AccountID, &account.Email, &account.PasswordHash, &account.PlayerEntityID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return Account{}, slerrors.Conflict("account already exists")
		}
		return Account{}, slerrors.DatabaseError("create account", err)
	}
	return account, nil
}

// GetAccountByEmail looks an account up by normalized email
func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return s.getAccount(ctx, `
        SELECT account_id, email, password_hash, player_entity_id
        FROM auth_accounts WHERE email = $1
    `, email)
}

// GetAccountByID looks an account up by id
func (s *PostgresStore) GetAccountByID(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	return s.getAccount(ctx, `
        SELECT account_id, email, password_hash, player_entity_id
        FROM auth_accounts WHERE account_id = $1
    `, accountID)
}

func (s *PostgresStore) getAccount(ctx context.Context, query string, arg interface{}) (*Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&account.AccountID, &account.Email, &account.PasswordHash, &account.PlayerEntityID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, slerrors.DatabaseError("get account", err)
	}
	return &account, nil
}

// InsertRefreshToken stores a refresh token hash
func (s *PostgresStore) InsertRefreshToken(ctx context.Context, tokenHash string, accountID uuid.UUID, expiresAtEpochS int64) error {
	return s.insertToken(ctx, "auth_refresh_tokens", tokenHash, accountID, expiresAtEpochS)
}

// ConsumeRefreshToken deletes and returns a refresh token record
func (s *PostgresStore) ConsumeRefreshToken(ctx context.Context, tokenHash string) (*TokenRecord, error) {
	return s.consumeToken(ctx, "auth_refresh_tokens", tokenHash)
}

// InsertPasswordResetToken stores a reset token hash
func (s *PostgresStore) InsertPasswordResetToken(ctx context.Context, tokenHash string, accountID uuid.UUID, expiresAtEpochS int64) error {
	return s.insertToken(ctx, "auth_password_reset_tokens", tokenHash, accountID, expiresAtEpochS)
}

// ConsumePasswordResetToken deletes and returns a reset token record
func (s *PostgresStore) ConsumePasswordResetToken(ctx context.Context, tokenHash string) (*TokenRecord, error) {
	return s.consumeToken(ctx, "auth_password_reset_tokens", tokenHash)
}

// UpdatePasswordHash replaces an account's password hash
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, accountID uuid.UUID, newPasswordHash string) error {
	result, err := s.db.ExecContext(ctx, `
        UPDATE auth_accounts SET password_hash = $2 WHERE account_id = $1
    `, accountID, newPasswordHash)
	if err != nil {
		return slerrors.DatabaseError("update password hash", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return slerrors.Unauthorized("unknown account")
	}
	return nil
}

func (s *PostgresStore) insertToken(ctx context.Context, table, tokenHash string, accountID uuid.UUID, expiresAtEpochS int64) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (token_hash, account_id, expires_at_epoch_s, created_at_epoch_s) VALUES ($1, $2, $3, $4)`,
		tokenHash, accountID, expiresAtEpochS, now)
	if err != nil {
		return slerrors.DatabaseError("insert token", err)
	}
	return nil
}

func (s *PostgresStore) consumeToken(ctx context.Context, table, tokenHash string) (*TokenRecord, error) {
	var record TokenRecord
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM `+table+` WHERE token_hash = $1 RETURNING account_id, expires_at_epoch_s`,
		tokenHash).Scan(&record.AccountID, &record.ExpiresAtEpochS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, slerrors.DatabaseError("consume token", err)
	}
	return &record, nil
}
