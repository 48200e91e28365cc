package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	slerrors "github.com/Dastari/sidereal-v3/infrastructure/errors"
	"github.com/Dastari/sidereal-v3/internal/auth"
)

// MemoryStore is the in-memory account store used in tests and local
// development. Accounts live under a read/write lock; token records live in
// TTL caches so expired tokens evict themselves.
type MemoryStore struct {
	mu              sync.RWMutex
	accountsByEmail map[string]Account
	accountsByID    map[uuid.UUID]Account

	refreshTokens *gocache.Cache
	resetTokens   *gocache.Cache
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accountsByEmail: make(map[string]Account),
		accountsByID:    make(map[uuid.UUID]Account),
		refreshTokens:   gocache.New(gocache.NoExpiration, 10*time.Minute),
		resetTokens:     gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

// CreateAccount inserts an account; duplicate emails are a Conflict
func (s *MemoryStore) CreateAccount(_ context.Context, email, passwordHash string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accountsByEmail[email]; exists {
		return Account{}, slerrors.Conflict("account already exists")
	}
	accountID := uuid.New()
	account := Account{
		AccountID:      accountID,
		Email:          email,
		PasswordHash:   passwordHash,
		PlayerEntityID: auth.PlayerEntityIDFor(accountID),
	}
	s.accountsByEmail[email] = account
	s.accountsByID[accountID] = account
	return account, nil
}

// GetAccountByEmail looks an account up by email
func (s *MemoryStore) GetAccountByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if account, ok := s.accountsByEmail[email]; ok {
		copied := account
		return &copied, nil
	}
	return nil, nil
}

// GetAccountByID looks an account up by id
func (s *MemoryStore) GetAccountByID(_ context.Context, accountID uuid.UUID) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if account, ok := s.accountsByID[accountID]; ok {
		copied := account
		return &copied, nil
	}
	return nil, nil
}

// InsertRefreshToken stores a refresh token with its own TTL
func (s *MemoryStore) InsertRefreshToken(_ context.Context, tokenHash string, accountID uuid.UUID, expiresAtEpochS int64) error {
	s.refreshTokens.Set(tokenHash, TokenRecord{
		AccountID:       accountID,
		ExpiresAtEpochS: expiresAtEpochS,
	}, ttlFromEpoch(expiresAtEpochS))
	return nil
}

// ConsumeRefreshToken removes and returns a refresh token record
func (s *MemoryStore) ConsumeRefreshToken(_ context.Context, tokenHash string) (*TokenRecord, error) {
	return consumeFromCache(s.refreshTokens, tokenHash), nil
}

// InsertPasswordResetToken stores a reset token with its own TTL
func (s *MemoryStore) InsertPasswordResetToken(_ context.Context, tokenHash string, accountID uuid.UUID, expiresAtEpochS int64) error {
	s.resetTokens.Set(tokenHash, TokenRecord{
		AccountID:       accountID,
		ExpiresAtEpochS: expiresAtEpochS,
	}, ttlFromEpoch(expiresAtEpochS))
	return nil
}

// ConsumePasswordResetToken removes and returns a reset token record
func (s *MemoryStore) ConsumePasswordResetToken(_ context.Context, tokenHash string) (*TokenRecord, error) {
	return consumeFromCache(s.resetTokens, tokenHash), nil
}

// UpdatePasswordHash replaces an account's password hash
func (s *MemoryStore) UpdatePasswordHash(_ context.Context, accountID uuid.UUID, newPasswordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accountsByID[accountID]
	if !ok {
		return slerrors.Unauthorized("unknown account")
	}
	account.PasswordHash = newPasswordHash
	s.accountsByID[accountID] = account
	s.accountsByEmail[account.Email] = account
	return nil
}

func consumeFromCache(cache *gocache.Cache, tokenHash string) *TokenRecord {
	value, ok := cache.Get(tokenHash)
	if !ok {
		return nil
	}
	cache.Delete(tokenHash)
	record := value.(TokenRecord)
	return &record
}

func ttlFromEpoch(expiresAtEpochS int64) time.Duration {
	ttl := time.Until(time.Unix(expiresAtEpochS, 0))
	if ttl <= 0 {
		return time.Nanosecond
	}
	return ttl
}
