package domain

import "time"

// PublicUser is the user shape returned by login.
type PublicUser struct {
	ID         string  `json:"id"`
	TelegramID *string `json:"telegramId"`
	GoogleID   *string `json:"googleId"`
	Email      *string `json:"email"`
	FirstName  string  `json:"firstName"`
	LastName   *string `json:"lastName"`
	Username   *string `json:"username"`
	PhotoURL   *string `json:"photoUrl"`
}

// Profile is the full user view for the authenticated caller.
type Profile struct {
	PublicUser
	AdditionalFields map[string]interface{} `json:"additionalFields"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		TelegramID: u.TelegramIDString(),
		GoogleID:   u.GoogleID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Username:   u.Username,
		PhotoURL:   u.PhotoURL,
	}
}

func (u *User) Profile() Profile {
	fields := u.AdditionalFields
	if fields == nil {
		fields = map[string]interface{}{}
	}
	return Profile{PublicUser: u.Public(), AdditionalFields: fields, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
}
