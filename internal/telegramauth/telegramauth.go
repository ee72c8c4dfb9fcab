// Package telegramauth checks Telegram Login Widget payloads.
package telegramauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/example/identity-service/internal/domain"
)

// DefaultMaxAge is how old auth_date may be before a payload is considered stale.
const DefaultMaxAge = 24 * time.Hour

// Payload is the widget data. Optional fields are pointers so that an absent
// field is dropped from the data-check string while an empty one is kept.
type Payload struct {
	ID        int64   `json:"id" validate:"required"`
	FirstName string  `json:"first_name" validate:"required"`
	LastName  *string `json:"last_name,omitempty"`
	Username  *string `json:"username,omitempty"`
	PhotoURL  *string `json:"photo_url,omitempty"`
	AuthDate  int64   `json:"auth_date" validate:"required"`
	Hash      string  `json:"hash" validate:"required"`
}

func (p Payload) fields() map[string]string {
	f := map[string]string{
		"id":         strconv.FormatInt(p.ID, 10),
		"first_name": p.FirstName,
		"auth_date":  strconv.FormatInt(p.AuthDate, 10),
	}
	if p.LastName != nil {
		f["last_name"] = *p.LastName
	}
	if p.Username != nil {
		f["username"] = *p.Username
	}
	if p.PhotoURL != nil {
		f["photo_url"] = *p.PhotoURL
	}
	return f
}

// DataCheckString joins the signed fields as sorted name=value lines.
func DataCheckString(p Payload) string {
	f := p.fields()
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+f[k])
	}
	return strings.Join(lines, "\n")
}

// Sign returns the hex HMAC-SHA256 of the data-check string keyed with SHA256(botToken).
func Sign(p Payload, botToken string) string {
	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(DataCheckString(p)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether p carries a valid hash for botToken and is not older than maxAge.
func Verify(p Payload, botToken string, maxAge time.Duration, now time.Time) bool {
	return check(p, botToken, maxAge, now) == nil
}

func check(p Payload, botToken string, maxAge time.Duration, now time.Time) error {
	expected := Sign(p, botToken)
	if !hmac.Equal([]byte(expected), []byte(p.Hash)) {
		return fmt.Errorf("%w: telegram hash mismatch", domain.ErrInvalidProof)
	}
	if now.Unix()-p.AuthDate > int64(maxAge/time.Second) {
		return fmt.Errorf("%w: telegram auth_date is stale", domain.ErrInvalidProof)
	}
	return nil
}

// Verifier holds the bot token and freshness window used for logins.
type Verifier struct {
	botToken string
	maxAge   time.Duration
	now      func() time.Time
}

func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Verifier{botToken: botToken, maxAge: maxAge, now: time.Now}
}

// Check is Verify with the failure kind preserved. A missing bot token yields
// domain.ErrNotConfigured; a bad or stale payload yields domain.ErrInvalidProof.
func (v *Verifier) Check(p Payload) error {
	if v == nil || v.botToken == "" {
		return fmt.Errorf("%w: telegram bot token is missing", domain.ErrNotConfigured)
	}
	return check(p, v.botToken, v.maxAge, v.now())
}
