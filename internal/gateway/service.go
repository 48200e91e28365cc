// Package gateway implements the HTTP auth gateway: account lifecycle,
// token issuance, and the one-shot starter-world bootstrap dispatch.
package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	slerrors "github.com/Dastari/sidereal-v3/infrastructure/errors"
	"github.com/Dastari/sidereal-v3/infrastructure/logging"
	"github.com/Dastari/sidereal-v3/internal/auth"
)

// Account is one registered account
type Account struct {
	AccountID      uuid.UUID
	Email          string
	PasswordHash   string
	PlayerEntityID string
}

// TokenRecord is a stored refresh or reset token, keyed by hash
type TokenRecord struct {
	AccountID       uuid.UUID
	ExpiresAtEpochS int64
}

// AuthTokens is the token pair returned by register/login/refresh
type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresInS   uint64 `json:"expires_in_s"`
}

// Me describes the authenticated account
type Me struct {
	AccountID      uuid.UUID `json:"account_id"`
	Email          string    `json:"email"`
	PlayerEntityID string    `json:"player_entity_id"`
}

// PasswordResetRequestResult is the reset-request outcome. accepted is
// always true so the endpoint does not leak which emails exist.
type PasswordResetRequestResult struct {
	Accepted   bool
	ResetToken string
}

// Store is the account and token persistence interface
type Store interface {
	CreateAccount(ctx context.Context, email, passwordHash string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByID(ctx context.Context, accountID uuid.UUID) (*Account, error)
	InsertRefreshToken(ctx context.Context, tokenHash string, accountID uuid.UUID, expiresAtEpochS int64) error
	ConsumeRefreshToken(ctx context.Context, tokenHash string) (*TokenRecord, error)
	InsertPasswordResetToken(ctx context.Context, tokenHash string, accountID uuid.UUID, expiresAtEpochS int64) error
	ConsumePasswordResetToken(ctx context.Context, tokenHash string) (*TokenRecord, error)
	UpdatePasswordHash(ctx context.Context, accountID uuid.UUID, newPasswordHash string) error
}

// BootstrapCommand asks the replication side to materialize a starter world
type BootstrapCommand struct {
	AccountID      uuid.UUID
	PlayerEntityID string
}

// BootstrapDispatcher delivers the one-shot bootstrap command
type BootstrapDispatcher interface {
	Dispatch(ctx context.Context, cmd BootstrapCommand) error
}

// ServiceConfig holds the token lifetimes and signing secret
type ServiceConfig struct {
	JWTSecret        []byte
	AccessTokenTTLS  uint64
	RefreshTokenTTLS uint64
	ResetTokenTTLS   uint64
}

// Service implements the auth operations over a store and a bootstrap
// dispatcher.
type Service struct {
	cfg       ServiceConfig
	store     Store
	bootstrap BootstrapDispatcher
	log       *logging.Logger
	now       func() time.Time
}

// NewService creates an auth service
func NewService(cfg ServiceConfig, store Store, bootstrap BootstrapDispatcher, log *logging.Logger) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		bootstrap: bootstrap,
		log:       log,
		now:       time.Now,
	}
}

// Register creates an account, dispatches exactly one bootstrap command,
// and issues the first token pair. Login never dispatches bootstrap.
func (s *Service) Register(ctx context.Context, email, password string) (AuthTokens, error) {
	normalizedEmail, err := auth.NormalizeEmail(email)
	if err != nil {
		return AuthTokens{}, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return AuthTokens{}, err
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return AuthTokens{}, err
	}
	account, err := s.store.CreateAccount(ctx, normalizedEmail, passwordHash)
	if err != nil {
		return AuthTokens{}, err
	}

	if err := s.bootstrap.Dispatch(ctx, BootstrapCommand{
		AccountID:      account.AccountID,
		PlayerEntityID: account.PlayerEntityID,
	}); err != nil {
		return AuthTokens{}, err
	}

	return s.issueTokens(ctx, account.AccountID)
}

// Login verifies credentials and issues tokens
func (s *Service) Login(ctx context.Context, email, password string) (AuthTokens, error) {
	normalizedEmail, err := auth.NormalizeEmail(email)
	if err != nil {
		return AuthTokens{}, err
	}
	account, err := s.store.GetAccountByEmail(ctx, normalizedEmail)
	if err != nil {
		return AuthTokens{}, err
	}
	if account == nil {
		return AuthTokens{}, slerrors.Unauthorized("invalid credentials")
	}
	if err := auth.VerifyPassword(password, account.PasswordHash); err != nil {
		return AuthTokens{}, err
	}
	return s.issueTokens(ctx, account.AccountID)
}

// Refresh rotates a refresh token: the old token is consumed and a new pair
// issued. Replaying a consumed token is Unauthorized.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthTokens, error) {
	if refreshToken == "" {
		return AuthTokens{}, slerrors.Validation("refresh_token is required")
	}
	record, err := s.store.ConsumeRefreshToken(ctx, auth.HashToken(refreshToken))
	if err != nil {
		return AuthTokens{}, err
	}
	if record == nil {
		return AuthTokens{}, slerrors.Unauthorized("invalid refresh token")
	}
	if s.now().Unix() > record.ExpiresAtEpochS {
		return AuthTokens{}, slerrors.Unauthorized("refresh token expired")
	}
	return s.issueTokens(ctx, record.AccountID)
}

// Me resolves an access token to its account
func (s *Service) Me(ctx context.Context, accessToken string) (Me, error) {
	claims, err := auth.DecodeAccessToken(s.cfg.JWTSecret, accessToken)
	if err != nil {
		return Me{}, err
	}
	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Me{}, slerrors.Unauthorized("invalid access token subject")
	}
	account, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return Me{}, err
	}
	if account == nil {
		return Me{}, slerrors.Unauthorized("unknown account")
	}
	return Me{
		AccountID:      account.AccountID,
		Email:          account.Email,
		PlayerEntityID: account.PlayerEntityID,
	}, nil
}

// PasswordResetRequest issues a reset token when the account exists. The
// response shape is identical either way.
func (s *Service) PasswordResetRequest(ctx context.Context, email string) (PasswordResetRequestResult, error) {
	normalizedEmail, err := auth.NormalizeEmail(email)
	if err != nil {
		return PasswordResetRequestResult{}, err
	}
	account, err := s.store.GetAccountByEmail(ctx, normalizedEmail)
	if err != nil {
		return PasswordResetRequestResult{}, err
	}
	if account == nil {
		return PasswordResetRequestResult{Accepted: true}, nil
	}

	resetToken, err := auth.GenerateOpaqueToken()
	if err != nil {
		return PasswordResetRequestResult{}, err
	}
	expires := s.now().Unix() + int64(s.cfg.ResetTokenTTLS)
	if err := s.store.InsertPasswordResetToken(ctx, auth.HashToken(resetToken), account.AccountID, expires); err != nil {
		return PasswordResetRequestResult{}, err
	}
	return PasswordResetRequestResult{Accepted: true, ResetToken: resetToken}, nil
}

// PasswordResetConfirm consumes a reset token and installs the new password
func (s *Service) PasswordResetConfirm(ctx context.Context, resetToken, newPassword string) error {
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}
	if resetToken == "" {
		return slerrors.Validation("reset_token is required")
	}
	record, err := s.store.ConsumePasswordResetToken(ctx, auth.HashToken(resetToken))
	if err != nil {
		return err
	}
	if record == nil {
		return slerrors.Unauthorized("invalid reset token")
	}
	if s.now().Unix() > record.ExpiresAtEpochS {
		return slerrors.Unauthorized("reset token expired")
	}
	newHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.UpdatePasswordHash(ctx, record.AccountID, newHash)
}

// DecodeAccessToken verifies an access token against the gateway secret
func (s *Service) DecodeAccessToken(accessToken string) (*auth.Claims, error) {
	return auth.DecodeAccessToken(s.cfg.JWTSecret, accessToken)
}

func (s *Service) issueTokens(ctx context.Context, accountID uuid.UUID) (AuthTokens, error) {
	account, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return AuthTokens{}, err
	}
	if account == nil {
		return AuthTokens{}, slerrors.Internal("account missing", nil)
	}

	now := s.now()
	accessToken, err := auth.EncodeAccessToken(
		s.cfg.JWTSecret,
		account.AccountID,
		account.PlayerEntityID,
		time.Duration(s.cfg.AccessTokenTTLS)*time.Second,
		now,
	)
	if err != nil {
		return AuthTokens{}, err
	}

	refreshToken, err := auth.GenerateOpaqueToken()
	if err != nil {
		return AuthTokens{}, err
	}
	expires := now.Unix() + int64(s.cfg.RefreshTokenTTLS)
	if err := s.store.InsertRefreshToken(ctx, auth.HashToken(refreshToken), account.AccountID, expires); err != nil {
		return AuthTokens{}, err
	}

	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresInS:   s.cfg.AccessTokenTTLS,
	}, nil
}
