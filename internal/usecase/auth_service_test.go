package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/identity-service/internal/adapters/google"
	natsadapter "github.com/example/identity-service/internal/adapters/nats"
	"github.com/example/identity-service/internal/domain"
	"github.com/example/identity-service/internal/telegramauth"
)

const testBotToken = "s3cr3t"

type stubGoogle struct {
	claims *google.Claims
	err    error
}

func (s stubGoogle) Verify(_ context.Context, idToken string) (*google.Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

type conflictResolver struct {
	inner     IdentityResolver
	conflicts int
	calls     int
}

func (r *conflictResolver) Resolve(ctx context.Context, ident ExternalIdentity) (*domain.User, bool, error) {
	r.calls++
	if r.calls <= r.conflicts {
		return nil, false, fmt.Errorf("%w: telegram_id", domain.ErrConflict)
	}
	return r.inner.Resolve(ctx, ident)
}

type recordingUserClient struct {
	mu     sync.Mutex
	events []natsadapter.UserCreated
}

func (c *recordingUserClient) CreateUser(_ context.Context, event natsadapter.UserCreated) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

type failingRBACClient struct{ calls int }

func (c *failingRBACClient) AssignRole(context.Context, string, string) error {
	c.calls++
	return errors.New("rbac down")
}

type failingRefreshRepo struct{ *memRefreshRepo }

func (failingRefreshRepo) DeleteByHash(context.Context, string) error {
	return errors.New("connection reset")
}

type testEnv struct {
	svc      Service
	users    *memUserRepo
	tokens   *memRefreshRepo
	userBus  *recordingUserClient
	rbac     *failingRBACClient
	resolver *conflictResolver
}

func newTestEnv(t *testing.T, g google.Verifier) *testEnv {
	t.Helper()
	cfg := testConfig()
	users := newMemUserRepo()
	tokens := newMemRefreshRepo()
	signer, err := NewJWTSigner(cfg)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	env := &testEnv{
		users:    users,
		tokens:   tokens,
		userBus:  &recordingUserClient{},
		rbac:     &failingRBACClient{},
		resolver: &conflictResolver{inner: NewIdentityResolver(users)},
	}
	env.svc = NewAuthService(cfg, zerolog.Nop(), Deps{
		Users:         users,
		Resolver:      env.resolver,
		RefreshTokens: NewRefreshTokenStore(tokens, cfg.RefreshTTL),
		Telegram:      telegramauth.NewVerifier(testBotToken, time.Hour),
		Google:        g,
		Signer:        signer,
		UserClient:    env.userBus,
		RBACClient:    env.rbac,
	})
	return env
}

func signedPayload(id int64, first string) telegramauth.Payload {
	p := telegramauth.Payload{ID: id, FirstName: first, AuthDate: time.Now().Unix()}
	p.Hash = telegramauth.Sign(p, testBotToken)
	return p
}

func TestTelegramLoginRefreshLogoutFlow(t *testing.T) {
	env := newTestEnv(t, stubGoogle{})
	ctx := context.Background()

	login, err := env.svc.LoginTelegram(ctx, "trace", signedPayload(42, "Ada"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.User.TelegramID == nil || *login.User.TelegramID != "42" || login.User.FirstName != "Ada" {
		t.Fatalf("unexpected user view: %+v", login.User)
	}
	if login.AccessToken == "" || login.RefreshToken == "" {
		t.Fatalf("tokens missing: %+v", login.Tokens)
	}

	verified, err := env.svc.VerifyToken(ctx, "trace", login.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.UserID != login.User.ID || verified.TelegramID != "42" || verified.GoogleID != "" {
		t.Fatalf("unexpected verification: %+v", verified)
	}

	rotated, err := env.svc.Refresh(ctx, "trace", login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == login.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}
	if _, err := env.svc.Refresh(ctx, "trace", login.RefreshToken); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("reused token: expected ErrAuthFailed, got %v", err)
	}

	if err := env.svc.Logout(ctx, "trace", rotated.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.svc.Refresh(ctx, "trace", rotated.RefreshToken); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("after logout: expected ErrAuthFailed, got %v", err)
	}
}

func TestSecondLoginReusesUser(t *testing.T) {
	env := newTestEnv(t, stubGoogle{})
	ctx := context.Background()

	first, err := env.svc.LoginTelegram(ctx, "trace", signedPayload(7, "Ada"))
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := env.svc.LoginTelegram(ctx, "trace", signedPayload(7, "Augusta"))
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if first.User.ID != second.User.ID || second.User.FirstName != "Augusta" {
		t.Fatalf("expected same user with mirrored name, got %+v / %+v", first.User, second.User)
	}
	if env.tokens.countFor(first.User.ID) != 2 {
		t.Fatalf("each login should hold its own refresh token")
	}
	if len(env.userBus.events) != 1 || env.rbac.calls != 1 {
		t.Fatalf("creation should be announced once, got %d events and %d role calls", len(env.userBus.events), env.rbac.calls)
	}
}

func TestTelegramLoginRejectsTamperedPayload(t *testing.T) {
	env := newTestEnv(t, stubGoogle{})
	p := signedPayload(42, "Ada")
	p.FirstName = "Eve"
	if _, err := env.svc.LoginTelegram(context.Background(), "trace", p); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if len(env.users.users) != 0 {
		t.Fatalf("no user should be created for a bad proof")
	}
}

func TestTelegramLoginNotConfigured(t *testing.T) {
	env := newTestEnv(t, stubGoogle{})
	svc := env.svc.(*authService)
	svc.Telegram = telegramauth.NewVerifier("", 0)
	if _, err := svc.LoginTelegram(context.Background(), "trace", signedPayload(42, "Ada")); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestGoogleLogin(t *testing.T) {
	claims := &google.Claims{Sub: "g-123", Email: "ada@example.com", GivenName: "Ada", FamilyName: "Lovelace"}
	env := newTestEnv(t, stubGoogle{claims: claims})

	login, err := env.svc.LoginGoogle(context.Background(), "trace", "id-token")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.User.GoogleID == nil || *login.User.GoogleID != "g-123" || login.User.TelegramID != nil {
		t.Fatalf("unexpected linkage: %+v", login.User)
	}
	if login.User.Username == nil || *login.User.Username != "ada" {
		t.Fatalf("expected username from email, got %v", login.User.Username)
	}
	verified, err := env.svc.VerifyToken(context.Background(), "trace", login.AccessToken)
	if err != nil || verified.GoogleID != "g-123" || verified.TelegramID != "" {
		t.Fatalf("verify: %+v %v", verified, err)
	}
	if len(env.userBus.events) != 1 || env.userBus.events[0].Provider != "google" {
		t.Fatalf("expected one google creation event, got %+v", env.userBus.events)
	}
}

func TestGoogleLoginErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"invalid proof", fmt.Errorf("%w: aud mismatch", domain.ErrInvalidProof), ErrAuthFailed},
		{"expired", domain.ErrExpiredCredential, ErrAuthFailed},
		{"not configured", domain.ErrNotConfigured, ErrAuthFailed},
		{"upstream", fmt.Errorf("%w: 503", domain.ErrUpstreamUnavailable), ErrProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, stubGoogle{err: tc.err})
			if _, err := env.svc.LoginGoogle(context.Background(), "trace", "id-token"); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLoginRetriesOnceAfterConflict(t *testing.T) {
	env := newTestEnv(t, stubGoogle{})
	env.resolver.conflicts = 1
	if _, err := env.svc.LoginTelegram(context.Background(), "trace", signedPayload(42, "Ada")); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if env.resolver.calls != 2 {
		t.Fatalf("resolve calls = %d", env.resolver.calls)
	}
}

func TestLoginGivesUpAfterSecondConflict(t *testing.T) {
	env := newTestEnv(t, stubGoogle{})
	env.resolver.conflicts = 2
	if _, err := env.svc.LoginTelegram(context.Background(), "trace", signedPayload(42, "Ada")); !errors.Is(err, ErrTryAgain) {
		t.Fatalf("expected ErrTryAgain, got %v", err)
	}
}

func TestRefreshForDeletedUser(t *testing.T) {
	env := newTestEnv(t, stubGoogle{})
	ctx := context.Background()
	login, err := env.svc.LoginTelegram(ctx, "trace", signedPayload(42, "Ada"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	env.users.delete(login.User.ID)

	if _, err := env.svc.Refresh(ctx, "trace", login.RefreshToken); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if n := env.tokens.countFor(login.User.ID); n != 0 {
		t.Fatalf("orphaned successor should be revoked, %d tokens left", n)
	}
}

func TestLogoutSwallowsStorageErrors(t *testing.T) {
	env := newTestEnv(t, stubGoogle{})
	svc := env.svc.(*authService)
	svc.RefreshTokens = NewRefreshTokenStore(failingRefreshRepo{env.tokens}, time.Hour)
	if err := svc.Logout(context.Background(), "trace", "whatever"); err != nil {
		t.Fatalf("logout must not fail, got %v", err)
	}
	if err := svc.Logout(context.Background(), "trace", ""); err != nil {
		t.Fatalf("logout with empty token must not fail, got %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	env := newTestEnv(t, stubGoogle{})
	ctx := context.Background()
	a, _ := env.svc.LoginTelegram(ctx, "trace", signedPayload(42, "Ada"))
	b, _ := env.svc.LoginTelegram(ctx, "trace", signedPayload(42, "Ada"))

	if err := env.svc.LogoutAll(ctx, "trace", a.User.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	for _, rt := range []string{a.RefreshToken, b.RefreshToken} {
		if _, err := env.svc.Refresh(ctx, "trace", rt); !errors.Is(err, ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
	}
}

func TestProfileNotFound(t *testing.T) {
	env := newTestEnv(t, stubGoogle{})
	if _, err := env.svc.Profile(context.Background(), "trace", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type flakyUserRepo struct {
	*memUserRepo
	findErr error
}

func (r *flakyUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.memUserRepo.FindByID(ctx, id)
}

func TestRefreshRevokesSuccessorOnTransientFailure(t *testing.T) {
	env := newTestEnv(t, stubGoogle{})
	ctx := context.Background()
	login, err := env.svc.LoginTelegram(ctx, "trace", signedPayload(42, "Ada"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	svc := env.svc.(*authService)
	svc.Users = &flakyUserRepo{memUserRepo: env.users, findErr: errors.New("db timeout")}

	if _, err := svc.Refresh(ctx, "trace", login.RefreshToken); err == nil {
		t.Fatalf("expected refresh to fail")
	}
	if n := env.tokens.countFor(login.User.ID); n != 0 {
		t.Fatalf("successor must not stay active, %d tokens left", n)
	}
}

func TestRefreshRevokesSuccessorWhenUserHasNoLinkage(t *testing.T) {
	env := newTestEnv(t, stubGoogle{})
	ctx := context.Background()
	login, err := env.svc.LoginTelegram(ctx, "trace", signedPayload(42, "Ada"))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	user, _ := env.users.FindByID(ctx, login.User.ID)
	user.TelegramID = nil
	_ = env.users.Update(ctx, user)

	if _, err := env.svc.Refresh(ctx, "trace", login.RefreshToken); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if n := env.tokens.countFor(login.User.ID); n != 0 {
		t.Fatalf("successor must not stay active, %d tokens left", n)
	}
}
