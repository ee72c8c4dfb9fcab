package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/example/identity-service/internal/domain"
)

const DefaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// Claims is the subset of an ID token the service keeps.
type Claims struct {
	Sub        string
	Email      string
	Name       string
	GivenName  string
	FamilyName string
	Picture    string
}

type Verifier interface {
	Verify(ctx context.Context, idToken string) (*Claims, error)
}

type tokenInfoClient struct {
	clientID string
	endpoint string
	client   *http.Client
	timeout  time.Duration
	now      func() time.Time
}

func NewTokenInfoClient(clientID, endpoint string, timeout time.Duration) Verifier {
	if endpoint == "" {
		endpoint = DefaultTokenInfoURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &tokenInfoClient{
		clientID: clientID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		now:      time.Now,
	}
}

func (c *tokenInfoClient) Verify(ctx context.Context, idToken string) (*Claims, error) {
	if c.clientID == "" {
		return nil, fmt.Errorf("%w: google client id is missing", domain.ErrNotConfigured)
	}
	info, err := c.fetch(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if info["aud"] != c.clientID {
		return nil, fmt.Errorf("%w: google token audience mismatch", domain.ErrInvalidProof)
	}
	exp, err := strconv.ParseInt(info["exp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: google token exp missing or malformed", domain.ErrInvalidProof)
	}
	if exp <= c.now().Unix() {
		return nil, fmt.Errorf("%w: google token expired", domain.ErrExpiredCredential)
	}
	if info["sub"] == "" {
		return nil, fmt.Errorf("%w: google token has no subject", domain.ErrInvalidProof)
	}
	claims := &Claims{
		Sub:        info["sub"],
		Email:      info["email"],
		Name:       info["name"],
		GivenName:  info["given_name"],
		FamilyName: info["family_name"],
		Picture:    info["picture"],
	}
	if claims.Name == "" {
		claims.Name = claims.Email
	}
	return claims, nil
}

var errRejected = errors.New("tokeninfo rejected token")

// fetch calls tokeninfo, retrying transport failures and 5xx answers only.
func (c *tokenInfoClient) fetch(ctx context.Context, idToken string) (map[string]string, error) {
	target := fmt.Sprintf("%s?id_token=%s", c.endpoint, url.QueryEscape(idToken))
	var out map[string]interface{}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		res, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode >= 500 {
			return fmt.Errorf("tokeninfo error: %d", res.StatusCode)
		}
		if res.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("%w: status %d", errRejected, res.StatusCode))
		}
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", errRejected, err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.timeout
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if errors.Is(err, errRejected) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidProof, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return flatten(out), nil
}

// tokeninfo answers with string values, but numbers are tolerated.
func flatten(in map[string]interface{}) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatInt(int64(val), 10)
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	return out
}
