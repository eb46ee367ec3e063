package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opticavillalba/authcore/internal/auth/domain"
	"github.com/opticavillalba/authcore/internal/auth/metrics"
	"github.com/opticavillalba/authcore/internal/auth/store"
	"github.com/opticavillalba/authcore/pkg/cryptox"
	"github.com/opticavillalba/authcore/pkg/jwtx"
	"github.com/opticavillalba/authcore/pkg/ratelimit"
	"github.com/opticavillalba/authcore/pkg/slogx"
	"github.com/opticavillalba/authcore/pkg/totpx"
)

// Authentication method references carried in issued tokens.
const (
	AMRPassword = "pwd"
	AMROTP      = "otp"
)

// LoginService drives the two-factor login flow:
//
//	INIT -> CREDENTIALS_CHECKED -> MFA_SETUP_REQUIRED | MFA_REQUIRED -> AUTHENTICATED
//
// Nothing is remembered between steps. Each call re-reads the user from the
// store, so the flow can be resumed from any instance.
type LoginService struct {
	Store   store.Store
	Hasher  *cryptox.PasswordHasher
	TOTP    *totpx.Service
	Tokens  *TokenService
	Limiter ratelimit.Limiter

	// MFAIssuer labels the account in authenticator apps.
	MFAIssuer string

	// ReplayProtection refuses a TOTP code whose step is not newer than the
	// last accepted one for the same user.
	ReplayProtection bool

	Now func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func (s *LoginService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// SubmitCredentials checks a username and password. It never issues a token;
// on success it reports which MFA step comes next.
func (s *LoginService) SubmitCredentials(
	ctx context.Context,
	clientAddr, username, password string,
) (domain.CredentialsResult, error) {
	l := slogx.FromContext(ctx)

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.CredentialsResult{}, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	attempt, err := s.reserve(ctx, limiterKeys(clientAddr, username))
	if err != nil {
		s.audit(ctx, domain.EventPassword, username, clientAddr, err)
		return domain.CredentialsResult{}, err
	}
	defer s.settle(ctx, attempt)

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			err = unavailable("lookup user", err)
			s.audit(ctx, domain.EventPassword, username, clientAddr, err)
			return domain.CredentialsResult{}, err
		}
		s.burnHash(password)
		attempt.keepAll()
		s.audit(ctx, domain.EventPassword, username, clientAddr, ErrInvalidCredentials)
		return domain.CredentialsResult{}, ErrInvalidCredentials
	}

	ok, err := s.Hasher.Verify(password, user.PasswordHash)
	if err != nil {
		l.Error("stored password hash is unreadable",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
		err = fmt.Errorf("verify password for user %s: %w", user.ID, err)
		s.audit(ctx, domain.EventPassword, username, clientAddr, err)
		return domain.CredentialsResult{}, err
	}
	if !ok {
		attempt.keepAll()
		s.audit(ctx, domain.EventPassword, username, clientAddr, ErrInvalidCredentials)
		return domain.CredentialsResult{}, ErrInvalidCredentials
	}

	// Account state is not a guessing signal, so nothing is recorded.
	if !user.IsActive {
		s.audit(ctx, domain.EventPassword, username, clientAddr, ErrAccountDisabled)
		return domain.CredentialsResult{}, ErrAccountDisabled
	}

	if s.Hasher.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	s.audit(ctx, domain.EventPassword, username, clientAddr, nil)

	if user.MFAEnabled {
		return domain.CredentialsResult{State: domain.StateMFARequired, RequiresMFA: true}, nil
	}
	return domain.CredentialsResult{State: domain.StateMFASetupRequired, RequiresMFASetup: true}, nil
}

// RequestMFASetup generates a secret for a user who has not enrolled yet.
// The secret is returned to the caller only; it is stored once
// ConfirmMFASetup proves the user's authenticator produces matching codes.
func (s *LoginService) RequestMFASetup(ctx context.Context, username string) (domain.MFASetup, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.MFASetup{}, fmt.Errorf("%w: username is required", ErrValidation)
	}

	user, err := s.lookup(ctx, username)
	if err != nil {
		return domain.MFASetup{}, err
	}
	if user.MFAEnabled {
		return domain.MFASetup{}, ErrMFAAlreadyEnabled
	}

	secret, err := s.TOTP.GenerateSecret()
	if err != nil {
		return domain.MFASetup{}, err
	}
	uri, err := s.TOTP.ProvisioningURI(secret, user.Username, s.MFAIssuer)
	if err != nil {
		return domain.MFASetup{}, err
	}

	return domain.MFASetup{
		Secret:          secret,
		ProvisioningURI: uri,
		ManualEntryKey:  manualEntryKey(secret),
		Issuer:          s.MFAIssuer,
		Account:         user.Username,
	}, nil
}

// ConfirmMFASetup enables MFA when code matches secret and returns the first
// session token. A wrong code persists nothing.
func (s *LoginService) ConfirmMFASetup(
	ctx context.Context,
	clientAddr, username, secret, code string,
) (domain.Session, error) {
	username = strings.TrimSpace(username)
	secret = normalizeSecret(secret)
	if username == "" || secret == "" || strings.TrimSpace(code) == "" {
		return domain.Session{}, fmt.Errorf("%w: username, secret and mfa_code are required", ErrValidation)
	}

	fail := func(err error) (domain.Session, error) {
		s.audit(ctx, domain.EventMFASetup, username, clientAddr, err)
		return domain.Session{}, err
	}

	attempt, err := s.reserve(ctx, limiterKeys(clientAddr, username))
	if err != nil {
		return fail(err)
	}
	defer s.settle(ctx, attempt)

	user, err := s.lookup(ctx, username)
	if err != nil {
		return fail(err)
	}
	if !user.IsActive {
		return fail(ErrAccountDisabled)
	}
	if user.MFAEnabled {
		return fail(ErrMFAAlreadyEnabled)
	}

	step, ok := s.TOTP.Verify(secret, code)
	if !ok {
		attempt.keepAll()
		return fail(ErrInvalidMFACode)
	}

	session, err := s.Tokens.Issue(user.Username, AMRPassword, AMROTP)
	if err != nil {
		return fail(err)
	}

	now := s.now()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdateMFA(ctx, user.ID, &secret, true, step); err != nil {
			return err
		}
		return tx.Users().UpdateLastLogin(ctx, user.ID, now)
	})
	if err != nil {
		return fail(unavailable("enable mfa", err))
	}

	metrics.TokensIssued.WithLabelValues(domain.EventMFASetup).Inc()
	s.audit(ctx, domain.EventMFASetup, username, clientAddr, nil)
	slogx.FromContext(ctx).Info("mfa enabled", slog.String("user_id", user.ID))
	return session, nil
}

// VerifyMFALogin completes a login for an enrolled user and issues a token.
func (s *LoginService) VerifyMFALogin(
	ctx context.Context,
	clientAddr, username, code string,
) (domain.Session, error) {
	l := slogx.FromContext(ctx)

	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(code) == "" {
		return domain.Session{}, fmt.Errorf("%w: username and mfa_code are required", ErrValidation)
	}

	fail := func(err error) (domain.Session, error) {
		s.audit(ctx, domain.EventMFAVerify, username, clientAddr, err)
		return domain.Session{}, err
	}

	attempt, err := s.reserve(ctx, limiterKeys(clientAddr, username))
	if err != nil {
		return fail(err)
	}
	defer s.settle(ctx, attempt)

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fail(unavailable("lookup user", err))
	}
	if err != nil || !user.HasMFA() {
		attempt.keep(1)
		return fail(ErrMFANotEnabled)
	}
	if !user.IsActive {
		return fail(ErrAccountDisabled)
	}

	step, ok := s.TOTP.Verify(*user.MFASecret, code)
	if ok && s.ReplayProtection && step <= user.MFALastStep {
		l.Warn("rejected reused totp step", slog.String("user_id", user.ID), slog.Uint64("step", step))
		ok = false
	}
	if !ok {
		attempt.keepAll()
		return fail(ErrInvalidMFACode)
	}

	now := s.now()
	var replayed bool
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if s.ReplayProtection {
			moved, err := tx.Users().AdvanceMFAStep(ctx, user.ID, step)
			if err != nil {
				return err
			}
			if !moved {
				replayed = true
				return nil
			}
		}
		return tx.Users().UpdateLastLogin(ctx, user.ID, now)
	})
	if err != nil {
		return fail(unavailable("record mfa login", err))
	}
	if replayed {
		// Another request accepted the same step first.
		l.Warn("rejected concurrently reused totp step", slog.String("user_id", user.ID), slog.Uint64("step", step))
		attempt.keepAll()
		return fail(ErrInvalidMFACode)
	}

	session, err := s.Tokens.Issue(user.Username, AMRPassword, AMROTP)
	if err != nil {
		return fail(err)
	}

	metrics.TokensIssued.WithLabelValues(domain.EventMFAVerify).Inc()
	s.audit(ctx, domain.EventMFAVerify, username, clientAddr, nil)
	return session, nil
}

// Refresh issues a new token for the subject of an already verified token.
// It re-reads the user so a disabled account, or one whose MFA was reset,
// cannot keep extending its session.
func (s *LoginService) Refresh(ctx context.Context, clientAddr string, claims jwtx.Claims) (domain.Session, error) {
	username := claims.Subject
	fail := func(err error) (domain.Session, error) {
		s.audit(ctx, domain.EventRefresh, username, clientAddr, err)
		return domain.Session{}, err
	}

	user, err := s.ActiveUser(ctx, username)
	if err != nil {
		return fail(err)
	}

	amr := claims.AMR
	if len(amr) == 0 {
		amr = []string{AMRPassword, AMROTP}
	}
	session, err := s.Tokens.Issue(user.Username, amr...)
	if err != nil {
		return fail(err)
	}

	metrics.TokensIssued.WithLabelValues(domain.EventRefresh).Inc()
	s.audit(ctx, domain.EventRefresh, username, clientAddr, nil)
	return session, nil
}

// ActiveUser returns the account behind a verified token. A token outlives
// the checks made when it was issued, so every authenticated request asks
// again: disabled accounts and accounts whose MFA was reset are refused.
func (s *LoginService) ActiveUser(ctx context.Context, principal string) (domain.User, error) {
	user, err := s.lookup(ctx, principal)
	if err != nil {
		return domain.User{}, err
	}
	if !user.IsActive {
		return domain.User{}, ErrAccountDisabled
	}
	if !user.HasMFA() {
		return domain.User{}, ErrMFANotEnabled
	}
	return user, nil
}

// Me returns the profile of the authenticated principal.
func (s *LoginService) Me(ctx context.Context, principal string) (domain.Profile, error) {
	user, err := s.ActiveUser(ctx, principal)
	if err != nil {
		return domain.Profile{}, err
	}
	return user.Profile(), nil
}

// Logout only records the event. Tokens are stateless and stay valid until
// they expire; clients are expected to discard theirs.
func (s *LoginService) Logout(ctx context.Context, clientAddr, principal string) {
	s.audit(ctx, domain.EventLogout, principal, clientAddr, nil)
}

func (s *LoginService) lookup(ctx context.Context, username string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, unavailable("lookup user", err)
	}
	return user, nil
}

// guess holds the limiter reservations taken for one password or code check.
// The first kept reservations stay recorded as failures; the rest are
// released when the check settles.
type guess struct {
	held []ratelimit.Reservation
	kept int
}

// keep records the first n reservations as a failed guess.
func (g *guess) keep(n int) { g.kept = min(n, len(g.held)) }

func (g *guess) keepAll() { g.kept = len(g.held) }

// reserve takes one reservation per key before anything is evaluated, so a
// burst of parallel requests cannot pass the check while earlier ones are
// still running.
func (s *LoginService) reserve(ctx context.Context, keys []string) (*guess, error) {
	g := &guess{held: make([]ratelimit.Reservation, 0, len(keys))}
	for _, key := range keys {
		r, ok, err := s.Limiter.Reserve(ctx, key)
		if err != nil {
			s.settle(ctx, g)
			return nil, unavailable("rate limiter", err)
		}
		if !ok {
			s.settle(ctx, g)
			metrics.RateLimited.WithLabelValues("login").Inc()
			return nil, ErrRateLimited
		}
		g.held = append(g.held, r)
	}
	return g, nil
}

func (s *LoginService) settle(ctx context.Context, g *guess) {
	for _, r := range g.held[g.kept:] {
		if err := s.Limiter.Release(context.WithoutCancel(ctx), r); err != nil {
			slogx.FromContext(ctx).Error("failed to release rate limit reservation", slog.Any("error", err))
		}
	}
}

func (s *LoginService) audit(ctx context.Context, event, username, clientAddr string, outcome error) {
	audit(ctx, s.Store, s.now(), event, username, clientAddr, outcome)
}

// burnHash runs a full verification against a throwaway hash so an unknown
// username costs as much time as a wrong password.
func (s *LoginService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("authcore-timing-equalizer")
	})
	if s.dummyHash != "" {
		_, _ = s.Hasher.Verify(password, s.dummyHash)
	}
}

func (s *LoginService) upgradeHash(ctx context.Context, user domain.User, password string) {
	l := slogx.FromContext(ctx)
	newHash, err := s.Hasher.Hash(password)
	if err != nil {
		l.Error("failed to rehash password", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		l.Error("failed to store upgraded password hash", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	l.Info("upgraded legacy password hash", slog.String("user_id", user.ID))
}

// limiterKeys returns the address key and the address:username key. The
// username is lowered so case variations share one window.
func limiterKeys(clientAddr, username string) []string {
	return []string{clientAddr, clientAddr + ":" + strings.ToLower(username)}
}

func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
}

// manualEntryKey groups the secret in blocks of four for typing by hand.
func manualEntryKey(secret string) string {
	var b strings.Builder
	for i, r := range secret {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
