package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/identity-service/internal/adapters/google"
	repo "github.com/example/identity-service/internal/adapters/postgres"
	"github.com/example/identity-service/internal/domain"
	"github.com/example/identity-service/internal/telegramauth"
)

// ExternalIdentity is a verified identity as asserted by one provider.
type ExternalIdentity struct {
	Provider   domain.Provider
	TelegramID int64
	GoogleID   string
	Email      *string
	FirstName  string
	LastName   *string
	Username   *string
	PhotoURL   *string
}

func TelegramIdentity(p telegramauth.Payload) ExternalIdentity {
	return ExternalIdentity{
		Provider:   domain.ProviderTelegram,
		TelegramID: p.ID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Username:   p.Username,
		PhotoURL:   p.PhotoURL,
	}
}

func GoogleIdentity(c *google.Claims) ExternalIdentity {
	first := c.GivenName
	if first == "" {
		first = c.Name
	}
	return ExternalIdentity{
		Provider:  domain.ProviderGoogle,
		GoogleID:  c.Sub,
		Email:     optional(c.Email),
		FirstName: first,
		LastName:  optional(c.FamilyName),
		PhotoURL:  optional(c.Picture),
	}
}

type IdentityResolver interface {
	// Resolve finds or creates the local user for ident. created reports whether
	// a new row was inserted.
	Resolve(ctx context.Context, ident ExternalIdentity) (user *domain.User, created bool, err error)
}

type identityResolver struct {
	users repo.UserRepository
	now   func() time.Time
}

func NewIdentityResolver(users repo.UserRepository) IdentityResolver {
	return &identityResolver{users: users, now: time.Now}
}

func (r *identityResolver) Resolve(ctx context.Context, ident ExternalIdentity) (*domain.User, bool, error) {
	existing, err := r.lookup(ctx, ident)
	switch {
	case err == nil:
		r.mirror(existing, ident)
		existing.UpdatedAt = r.now()
		if err := r.users.Update(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, err
	}

	now := r.now()
	user := &domain.User{
		ID:               uuid.NewString(),
		AdditionalFields: map[string]interface{}{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	switch ident.Provider {
	case domain.ProviderTelegram:
		id := ident.TelegramID
		user.TelegramID = &id
	case domain.ProviderGoogle:
		id := ident.GoogleID
		user.GoogleID = &id
	}
	r.mirror(user, ident)
	if ident.Provider == domain.ProviderGoogle && user.Username == nil && user.Email != nil {
		user.Username = optional(emailLocalPart(*user.Email))
	}
	if err := r.users.Create(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (r *identityResolver) lookup(ctx context.Context, ident ExternalIdentity) (*domain.User, error) {
	switch ident.Provider {
	case domain.ProviderTelegram:
		return r.users.FindByTelegramID(ctx, ident.TelegramID)
	case domain.ProviderGoogle:
		if ident.GoogleID == "" {
			return nil, fmt.Errorf("%w: empty google subject", domain.ErrInvalidProof)
		}
		return r.users.FindByGoogleID(ctx, ident.GoogleID)
	default:
		return nil, fmt.Errorf("unknown provider %q", ident.Provider)
	}
}

// mirror overwrites the fields the provider is authoritative for.
func (r *identityResolver) mirror(user *domain.User, ident ExternalIdentity) {
	switch ident.Provider {
	case domain.ProviderTelegram:
		user.FirstName = ident.FirstName
		user.LastName = ident.LastName
		user.Username = ident.Username
		user.PhotoURL = ident.PhotoURL
	case domain.ProviderGoogle:
		user.Email = ident.Email
		user.FirstName = ident.FirstName
		user.LastName = ident.LastName
		user.PhotoURL = ident.PhotoURL
	}
}

func emailLocalPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
