package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/identity-service/config"
	"github.com/example/identity-service/internal/adapters/google"
	natsadapter "github.com/example/identity-service/internal/adapters/nats"
	repo "github.com/example/identity-service/internal/adapters/postgres"
	"github.com/example/identity-service/internal/domain"
	"github.com/example/identity-service/internal/telegramauth"
	"github.com/example/identity-service/internal/tokenverify"
	pkglog "github.com/example/identity-service/pkg/log"
)

// Outcomes visible to callers. Everything about a rejected credential
// collapses into ErrAuthFailed.
var (
	ErrAuthFailed          = errors.New("authentication failed")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrTryAgain            = errors.New("concurrent login in progress, try again")
)

const (
	opLoginTelegram = "login_telegram"
	opLoginGoogle   = "login_google"
	opRefresh       = "refresh"
	opLogout        = "logout"
	opLogoutAll     = "logout_all"
)

type VerificationResult = tokenverify.Result

type LoginResult struct {
	Tokens
	User domain.PublicUser `json:"user"`
}

type Service interface {
	LoginTelegram(ctx context.Context, traceID string, payload telegramauth.Payload) (*LoginResult, error)
	LoginGoogle(ctx context.Context, traceID, idToken string) (*LoginResult, error)
	Refresh(ctx context.Context, traceID, refreshToken string) (*Tokens, error)
	Logout(ctx context.Context, traceID, refreshToken string) error
	LogoutAll(ctx context.Context, traceID, userID string) error
	Profile(ctx context.Context, traceID, userID string) (*domain.User, error)
	VerifyToken(ctx context.Context, traceID, token string) (*VerificationResult, error)
	SweepExpired(ctx context.Context) (int64, error)
}

type TelegramChecker interface {
	Check(payload telegramauth.Payload) error
}

// Recorder receives operation outcomes; metrics.Metrics implements it.
type Recorder interface {
	Observe(operation, outcome string)
	UserResolved(provider string, created bool)
	Swept(n int64)
}

type Deps struct {
	Users         repo.UserRepository
	Resolver      IdentityResolver
	RefreshTokens RefreshTokenStore
	Telegram      TelegramChecker
	Google        google.Verifier
	Signer        JWTSigner
	UserClient    natsadapter.UserClient
	RBACClient    natsadapter.RBACClient
	Recorder      Recorder
}

type authService struct {
	cfg    *config.Config
	logger pkglog.Logger
	Deps
}

func NewAuthService(cfg *config.Config, logger pkglog.Logger, deps Deps) Service {
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	return &authService{cfg: cfg, logger: logger, Deps: deps}
}

func (s *authService) LoginTelegram(ctx context.Context, traceID string, payload telegramauth.Payload) (*LoginResult, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.Telegram.Check(payload); err != nil {
		return nil, s.reject(opLoginTelegram, traceID, err)
	}
	return s.login(ctx, opLoginTelegram, traceID, TelegramIdentity(payload))
}

func (s *authService) LoginGoogle(ctx context.Context, traceID, idToken string) (*LoginResult, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	claims, err := s.Google.Verify(ctx, idToken)
	if err != nil {
		return nil, s.reject(opLoginGoogle, traceID, err)
	}
	return s.login(ctx, opLoginGoogle, traceID, GoogleIdentity(claims))
}

func (s *authService) login(ctx context.Context, op, traceID string, ident ExternalIdentity) (*LoginResult, error) {
	user, created, err := s.resolve(ctx, ident)
	if err != nil {
		return nil, s.reject(op, traceID, err)
	}
	s.Recorder.UserResolved(string(ident.Provider), created)
	if created {
		s.announce(ctx, traceID, user, ident.Provider)
	}
	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, s.reject(op, traceID, err)
	}
	s.Recorder.Observe(op, "success")
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Bool("created", created).Msg(op)
	return &LoginResult{Tokens: *tokens, User: user.Public()}, nil
}

// resolve retries once when a concurrent login for the same identity won the insert.
func (s *authService) resolve(ctx context.Context, ident ExternalIdentity) (*domain.User, bool, error) {
	user, created, err := s.Resolver.Resolve(ctx, ident)
	if errors.Is(err, domain.ErrConflict) {
		s.logger.Debug().Str("provider", string(ident.Provider)).Msg("identity insert conflict, retrying resolve")
		user, created, err = s.Resolver.Resolve(ctx, ident)
	}
	return user, created, err
}

func (s *authService) Refresh(ctx context.Context, traceID, refreshToken string) (*Tokens, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	userID, next, err := s.RefreshTokens.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, s.reject(opRefresh, traceID, err)
	}
	access, err := s.reissue(ctx, userID)
	if err != nil {
		// The successor was never handed out; drop it so no orphan stays active.
		if rerr := s.RefreshTokens.Revoke(ctx, next); rerr != nil {
			s.logger.Error().Err(rerr).Str("trace_id", traceID).Str("user_id", userID).Msg("refresh: revoke successor failed")
		}
		return nil, s.reject(opRefresh, traceID, err)
	}
	s.Recorder.Observe(opRefresh, "success")
	s.logger.Info().Str("trace_id", traceID).Str("user_id", userID).Msg(opRefresh)
	return &Tokens{AccessToken: access, RefreshToken: next}, nil
}

// reissue signs an access token reflecting the user's current linkage.
func (s *authService) reissue(ctx context.Context, userID string) (string, error) {
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	principal, err := PrincipalFor(user)
	if err != nil {
		return "", err
	}
	return s.Signer.SignAccessToken(principal, s.cfg.AccessTTL)
}

// Logout never fails for the caller; storage errors are only logged.
func (s *authService) Logout(ctx context.Context, traceID, refreshToken string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.RefreshTokens.Revoke(ctx, refreshToken); err != nil {
		s.logger.Error().Err(err).Str("trace_id", traceID).Msg("logout: revoke failed")
		s.Recorder.Observe(opLogout, domain.Kind(err))
		return nil
	}
	s.Recorder.Observe(opLogout, "success")
	return nil
}

func (s *authService) LogoutAll(ctx context.Context, traceID, userID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	n, err := s.RefreshTokens.RevokeAll(ctx, userID)
	if err != nil {
		s.Recorder.Observe(opLogoutAll, domain.Kind(err))
		return err
	}
	s.Recorder.Observe(opLogoutAll, "success")
	s.logger.Info().Str("trace_id", traceID).Str("user_id", userID).Int64("revoked", n).Msg(opLogoutAll)
	return nil
}

func (s *authService) Profile(ctx context.Context, traceID, userID string) (*domain.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *authService) VerifyToken(ctx context.Context, traceID, token string) (*VerificationResult, error) {
	result, err := tokenverify.Verify(s.Signer, token, time.Now)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("trace_id", traceID).Str("user_id", result.UserID).Msg("token verified")
	return result, nil
}

func (s *authService) SweepExpired(ctx context.Context) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	n, err := s.RefreshTokens.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	s.Recorder.Swept(n)
	return n, nil
}

func (s *authService) issueTokens(ctx context.Context, user *domain.User) (*Tokens, error) {
	principal, err := PrincipalFor(user)
	if err != nil {
		return nil, err
	}
	access, err := s.Signer.SignAccessToken(principal, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.RefreshTokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

// announce tells downstream services about a new user. Failures are logged, not returned.
func (s *authService) announce(ctx context.Context, traceID string, user *domain.User, provider domain.Provider) {
	if s.UserClient != nil {
		event := natsadapter.UserCreated{UserID: user.ID, Provider: string(provider), Email: user.Email, Name: user.FirstName, Username: user.Username}
		if err := s.UserClient.CreateUser(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("trace_id", traceID).Str("user_id", user.ID).Msg("user service notification failed")
		}
	}
	if s.RBACClient != nil {
		if err := s.RBACClient.AssignRole(ctx, user.ID, s.cfg.DefaultRole); err != nil {
			s.logger.Warn().Err(err).Str("trace_id", traceID).Str("user_id", user.ID).Msg("default role assignment failed")
		}
	}
}

// reject logs the precise failure kind and maps it to a caller-visible outcome.
func (s *authService) reject(op, traceID string, err error) error {
	kind := domain.Kind(err)
	s.Recorder.Observe(op, kind)
	s.logger.Warn().Err(err).Str("trace_id", traceID).Str("reason", kind).Msg(op + " rejected")
	switch {
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return ErrProviderUnavailable
	case errors.Is(err, domain.ErrConflict):
		return ErrTryAgain
	case errors.Is(err, domain.ErrInvalidProof),
		errors.Is(err, domain.ErrExpiredCredential),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNotConfigured),
		errors.Is(err, errNoLinkage):
		return ErrAuthFailed
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *authService) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

type noopRecorder struct{}

func (noopRecorder) Observe(string, string)    {}
func (noopRecorder) UserResolved(string, bool) {}
func (noopRecorder) Swept(int64)               {}
