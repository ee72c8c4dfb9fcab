package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/identity-service/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	FindActive(ctx context.Context, hash string, now time.Time) (*domain.RefreshToken, error)
	// Rotate deletes the active row for oldHash and inserts the row built by next
	// for the same user, in one transaction.
	Rotate(ctx context.Context, oldHash string, now time.Time, next func(userID string) *domain.RefreshToken) (*domain.RefreshToken, error)
	DeleteByHash(ctx context.Context, hash string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type userRepo struct{ db *gorm.DB }

type refreshTokenRepo struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository                 { return &userRepo{db: db} }
func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository { return &refreshTokenRepo{db: db} }

// translate maps gorm errors onto the domain taxonomy. The gorm.DB must be
// opened with TranslateError so unique violations surface as ErrDuplicatedKey.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	default:
		return err
	}
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *userRepo) FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return r.findOne(ctx, "telegram_id = ?", telegramID)
}

func (r *userRepo) FindByGoogleID(ctx context.Context, googleID string) (*domain.User, error) {
	return r.findOne(ctx, "google_id = ?", googleID)
}

func (r *userRepo) findOne(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepo) Update(ctx context.Context, user *domain.User) error {
	return translate(r.db.WithContext(ctx).Save(user).Error)
}

func (r *refreshTokenRepo) Create(ctx context.Context, token *domain.RefreshToken) error {
	return translate(r.db.WithContext(ctx).Create(token).Error)
}

func (r *refreshTokenRepo) FindActive(ctx context.Context, hash string, now time.Time) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	if err := r.db.WithContext(ctx).
		Where("token_hash = ? AND expires_at > ?", hash, now).
		First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (r *refreshTokenRepo) Rotate(ctx context.Context, oldHash string, now time.Time, next func(userID string) *domain.RefreshToken) (*domain.RefreshToken, error) {
	var created *domain.RefreshToken
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deleted []domain.RefreshToken
		res := consumeActive(tx, oldHash, now, &deleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || len(deleted) == 0 {
			return gorm.ErrRecordNotFound
		}
		created = next(deleted[0].UserID)
		return tx.Create(created).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return created, nil
}

// consumeActive deletes the row for hash if it has not expired and returns it
// through dest. Two concurrent rotations of one token cannot both see the row.
func consumeActive(tx *gorm.DB, hash string, now time.Time, dest *[]domain.RefreshToken) *gorm.DB {
	return tx.Clauses(clause.Returning{}).
		Where("token_hash = ? AND expires_at > ?", hash, now).
		Delete(dest)
}

func (r *refreshTokenRepo) DeleteByHash(ctx context.Context, hash string) error {
	return r.db.WithContext(ctx).Where("token_hash = ?", hash).Delete(&domain.RefreshToken{}).Error
}

func (r *refreshTokenRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.RefreshToken{})
	return res.RowsAffected, res.Error
}

func (r *refreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.RefreshToken{})
	return res.RowsAffected, res.Error
}
