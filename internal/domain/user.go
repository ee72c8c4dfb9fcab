package domain

import (
	"strconv"
	"time"
)

type Provider string

const (
	ProviderTelegram Provider = "telegram"
	ProviderGoogle   Provider = "google"
)

// User is one person regardless of the provider they signed in with.
type User struct {
	ID               string                 `gorm:"type:uuid;primaryKey" json:"id"`
	TelegramID       *int64                 `gorm:"uniqueIndex" json:"telegram_id"`
	GoogleID         *string                `gorm:"type:text;uniqueIndex" json:"google_id"`
	Email            *string                `gorm:"type:text" json:"email"`
	FirstName        string                 `gorm:"type:text;not null" json:"first_name"`
	LastName         *string                `gorm:"type:text" json:"last_name"`
	Username         *string                `gorm:"type:text" json:"username"`
	PhotoURL         *string                `gorm:"type:text" json:"photo_url"`
	AdditionalFields map[string]interface{} `gorm:"type:jsonb;serializer:json" json:"additional_fields"`
	CreatedAt        time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	RefreshTokens    []RefreshToken         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (User) TableName() string { return "auth_user" }

// TelegramIDString renders the Telegram id the way it is exposed in claims and API responses.
func (u *User) TelegramIDString() *string {
	if u.TelegramID == nil {
		return nil
	}
	s := strconv.FormatInt(*u.TelegramID, 10)
	return &s
}

// RefreshToken is one outstanding refresh credential. Only the SHA-256 of the
// opaque token is persisted.
type RefreshToken struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;index;not null" json:"user_id"`
	TokenHash string    `gorm:"type:text;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (RefreshToken) TableName() string { return "auth_refresh_token" }
