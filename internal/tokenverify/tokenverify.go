package tokenverify

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid_token")
	ErrTokenExpired   = errors.New("token_expired")
	ErrSubjectMissing = errors.New("subject_missing")
)

const (
	claimTelegramID = "telegramId"
	claimGoogleID   = "googleId"
)

type Parser interface {
	Parse(token string) (*jwt.Token, jwt.MapClaims, error)
}

type Result struct {
	UserID     string
	TelegramID string
	GoogleID   string
	Claims     map[string]any
}

// Verify parses and validates an access token, returning the subject, the
// provider linkage and the remaining claims.
func Verify(parser Parser, token string, nowFn func() time.Time) (*Result, error) {
	if parser == nil || token == "" {
		return nil, ErrInvalidToken
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	tok, claims, err := parser.Parse(token)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil || tok == nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if exp, err := claims.GetExpirationTime(); err != nil || exp == nil || nowFn().After(exp.Time) {
		return nil, ErrTokenExpired
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrSubjectMissing
	}
	tg, _ := claims[claimTelegramID].(string)
	gid, _ := claims[claimGoogleID].(string)
	filtered := map[string]any{}
	for k, v := range claims {
		switch k {
		case "sub", claimTelegramID, claimGoogleID:
			continue
		}
		filtered[k] = v
	}
	return &Result{UserID: sub, TelegramID: tg, GoogleID: gid, Claims: filtered}, nil
}
