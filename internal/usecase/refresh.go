package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	repo "github.com/example/identity-service/internal/adapters/postgres"
	"github.com/example/identity-service/internal/domain"
)

// DefaultRefreshTTL is used when no refresh lifetime is configured.
const DefaultRefreshTTL = 30 * 24 * time.Hour

// errRefreshInvalid covers unknown, expired and already rotated tokens alike.
var errRefreshInvalid = fmt.Errorf("%w: refresh token unknown or expired", domain.ErrInvalidProof)

// RefreshTokenStore owns the lifecycle of opaque refresh credentials.
type RefreshTokenStore interface {
	Issue(ctx context.Context, userID string) (string, error)
	Validate(ctx context.Context, token string) (string, error)
	// Rotate consumes token and returns its owner with a freshly issued successor.
	Rotate(ctx context.Context, token string) (userID, next string, err error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, userID string) (int64, error)
	Sweep(ctx context.Context) (int64, error)
}

type refreshTokenStore struct {
	tokens repo.RefreshTokenRepository
	ttl    time.Duration
	now    func() time.Time
}

func NewRefreshTokenStore(tokens repo.RefreshTokenRepository, ttl time.Duration) RefreshTokenStore {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	return &refreshTokenStore{tokens: tokens, ttl: ttl, now: time.Now}
}

func (s *refreshTokenStore) Issue(ctx context.Context, userID string) (string, error) {
	plain := uuid.NewString()
	if err := s.tokens.Create(ctx, s.row(userID, plain)); err != nil {
		return "", err
	}
	return plain, nil
}

func (s *refreshTokenStore) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errRefreshInvalid
	}
	row, err := s.tokens.FindActive(ctx, hashToken(token), s.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", errRefreshInvalid
		}
		return "", err
	}
	return row.UserID, nil
}

func (s *refreshTokenStore) Rotate(ctx context.Context, token string) (string, string, error) {
	if token == "" {
		return "", "", errRefreshInvalid
	}
	plain := uuid.NewString()
	created, err := s.tokens.Rotate(ctx, hashToken(token), s.now(), func(userID string) *domain.RefreshToken {
		return s.row(userID, plain)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", "", errRefreshInvalid
		}
		return "", "", err
	}
	return created.UserID, plain, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.tokens.DeleteByHash(ctx, hashToken(token))
}

func (s *refreshTokenStore) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return s.tokens.DeleteByUser(ctx, userID)
}

func (s *refreshTokenStore) Sweep(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.now())
}

func (s *refreshTokenStore) row(userID, plain string) *domain.RefreshToken {
	now := s.now()
	return &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hashToken(plain),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
