package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/identity-service/internal/domain"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]domain.User{}}
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if user.TelegramID != nil && u.TelegramID != nil && *u.TelegramID == *user.TelegramID {
			return fmt.Errorf("%w: telegram_id", domain.ErrConflict)
		}
		if user.GoogleID != nil && u.GoogleID != nil && *u.GoogleID == *user.GoogleID {
			return fmt.Errorf("%w: google_id", domain.ErrConflict)
		}
	}
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r *memUserRepo) FindByTelegramID(_ context.Context, telegramID int64) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.TelegramID != nil && *u.TelegramID == telegramID })
}

func (r *memUserRepo) FindByGoogleID(_ context.Context, googleID string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.GoogleID != nil && *u.GoogleID == googleID })
}

func (r *memUserRepo) find(match func(domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return domain.ErrNotFound
	}
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
}

type memRefreshRepo struct {
	mu   sync.Mutex
	rows map[string]domain.RefreshToken
}

func newMemRefreshRepo() *memRefreshRepo {
	return &memRefreshRepo{rows: map[string]domain.RefreshToken{}}
}

func (r *memRefreshRepo) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[token.TokenHash]; ok {
		return domain.ErrConflict
	}
	r.rows[token.TokenHash] = *token
	return nil
}

func (r *memRefreshRepo) FindActive(_ context.Context, hash string, now time.Time) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[hash]
	if !ok || !active(row, now) {
		return nil, domain.ErrNotFound
	}
	return &row, nil
}

func (r *memRefreshRepo) Rotate(_ context.Context, oldHash string, now time.Time, next func(userID string) *domain.RefreshToken) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[oldHash]
	if !ok || !active(row, now) {
		return nil, domain.ErrNotFound
	}
	delete(r.rows, oldHash)
	created := next(row.UserID)
	r.rows[created.TokenHash] = *created
	return created, nil
}

func (r *memRefreshRepo) DeleteByHash(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, hash)
	return nil
}

func (r *memRefreshRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, row := range r.rows {
		if row.UserID == userID {
			delete(r.rows, h)
			n++
		}
	}
	return n, nil
}

func (r *memRefreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, row := range r.rows {
		if !active(row, now) {
			delete(r.rows, h)
			n++
		}
	}
	return n, nil
}

// active mirrors the expires_at > now predicate the postgres repository queries with.
func active(row domain.RefreshToken, now time.Time) bool { return row.ExpiresAt.After(now) }

func (r *memRefreshRepo) countFor(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.UserID == userID {
			n++
		}
	}
	return n
}

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
