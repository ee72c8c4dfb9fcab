package usecase

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/identity-service/config"
	"github.com/example/identity-service/internal/domain"
)

const (
	ClaimTelegramID = "telegramId"
	ClaimGoogleID   = "googleId"
)

var errNoLinkage = errors.New("user has no provider linkage")

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Linkage is the provider part of an access token. The variants are
// TelegramLink, GoogleLink and DualLink.
type Linkage interface {
	claims() map[string]string
}

type TelegramLink struct{ TelegramID string }

type GoogleLink struct{ GoogleID string }

type DualLink struct {
	TelegramID string
	GoogleID   string
}

func (l TelegramLink) claims() map[string]string {
	return map[string]string{ClaimTelegramID: l.TelegramID}
}

func (l GoogleLink) claims() map[string]string {
	return map[string]string{ClaimGoogleID: l.GoogleID}
}

func (l DualLink) claims() map[string]string {
	return map[string]string{ClaimTelegramID: l.TelegramID, ClaimGoogleID: l.GoogleID}
}

// Principal is the claim set frozen into an access token.
type Principal struct {
	Subject string
	Link    Linkage
}

// PrincipalFor snapshots the user's current linkage fields.
func PrincipalFor(user *domain.User) (Principal, error) {
	tg := user.TelegramIDString()
	switch {
	case tg != nil && user.GoogleID != nil:
		return Principal{Subject: user.ID, Link: DualLink{TelegramID: *tg, GoogleID: *user.GoogleID}}, nil
	case tg != nil:
		return Principal{Subject: user.ID, Link: TelegramLink{TelegramID: *tg}}, nil
	case user.GoogleID != nil:
		return Principal{Subject: user.ID, Link: GoogleLink{GoogleID: *user.GoogleID}}, nil
	default:
		return Principal{}, errNoLinkage
	}
}

type JWTSigner interface {
	SignAccessToken(p Principal, ttl time.Duration) (string, error)
	Parse(token string) (*jwt.Token, jwt.MapClaims, error)
}

type jwtSigner struct {
	cfg       *config.Config
	hmacKey   []byte
	private   *rsa.PrivateKey
	publicKey *rsa.PublicKey
	now       func() time.Time
}

func NewJWTSigner(cfg *config.Config) (JWTSigner, error) {
	s := &jwtSigner{cfg: cfg, now: time.Now}
	if cfg.JWTSecret != "" {
		s.hmacKey = []byte(cfg.JWTSecret)
		return s, nil
	}
	if cfg.JWTPrivateKey != "" && cfg.JWTPublicKey != "" {
		priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.JWTPrivateKey))
		if err != nil {
			return nil, err
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.JWTPublicKey))
		if err != nil {
			return nil, err
		}
		s.private = priv
		s.publicKey = pub
		return s, nil
	}
	return nil, errors.New("jwt secret or key pair required")
}

func (s *jwtSigner) SignAccessToken(p Principal, ttl time.Duration) (string, error) {
	if p.Subject == "" || p.Link == nil {
		return "", errNoLinkage
	}
	token := jwt.New(jwt.GetSigningMethod(s.method()))
	now := s.now().UTC()
	std := token.Claims.(jwt.MapClaims)
	std["sub"] = p.Subject
	std["iss"] = s.cfg.JWTIssuer
	std["aud"] = s.cfg.JWTAudience
	std["exp"] = now.Add(ttl).Unix()
	std["iat"] = now.Unix()
	for k, v := range p.Link.claims() {
		std[k] = v
	}
	return s.sign(token)
}

func (s *jwtSigner) Parse(tokenStr string) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithAudience(s.cfg.JWTAudience),
		jwt.WithIssuer(s.cfg.JWTIssuer),
		jwt.WithLeeway(30*time.Second),
		jwt.WithValidMethods([]string{s.method()}),
	)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if s.hmacKey != nil {
			return s.hmacKey, nil
		}
		return s.publicKey, nil
	})
	return token, claims, err
}

func (s *jwtSigner) sign(token *jwt.Token) (string, error) {
	if s.hmacKey != nil {
		return token.SignedString(s.hmacKey)
	}
	if s.private == nil {
		return "", errors.New("private key not configured")
	}
	return token.SignedString(s.private)
}

func (s *jwtSigner) method() string {
	if s.hmacKey != nil {
		return jwt.SigningMethodHS256.Alg()
	}
	return jwt.SigningMethodRS256.Alg()
}
