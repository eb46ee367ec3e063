package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opticavillalba/authcore/internal/auth/domain"
	"github.com/opticavillalba/authcore/internal/auth/store"
	"github.com/opticavillalba/authcore/pkg/cryptox"
	"github.com/opticavillalba/authcore/pkg/slogx"
)

var (
	ErrBootstrapAlready      = errors.New("already_bootstrapped")
	ErrBootstrapUnauthorized = errors.New("bootstrap_unauthorized")
)

// BootstrapService creates the first administrator. It only works while the
// user table is empty and only with the pre-configured token.
type BootstrapService struct {
	Store  store.Store
	Hasher *cryptox.PasswordHasher
	Token  string // Pre-configured bootstrap token; empty disables bootstrap
	Now    func() time.Time
}

func (s *BootstrapService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	n, err := s.Store.Users().CountUsers(ctx)
	if err != nil {
		return false, unavailable("count users", err)
	}
	return n > 0, nil
}

// Bootstrap creates the administrator described by req. The emptiness check
// and the insert share one transaction so two racing calls cannot both win.
func (s *BootstrapService) Bootstrap(
	ctx context.Context,
	clientAddr, token string,
	req domain.BootstrapData,
) (domain.User, error) {
	l := slogx.FromContext(ctx)
	now := s.now()

	if s.Token == "" || !cryptox.TokensEqual(token, s.Token) {
		l.Warn("unauthorized bootstrap attempt",
			slog.String("client_ip", clientAddr),
			slog.String("token_fp", cryptox.FingerprintToken(token)[:8]),
		)
		audit(ctx, s.Store, now, domain.EventBootstrap, req.Username, clientAddr, ErrBootstrapUnauthorized)
		return domain.User{}, ErrBootstrapUnauthorized
	}

	user, err := buildUser(s.Hasher, now, req.Username, req.Email, req.Password)
	if err != nil {
		return domain.User{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Users().CountUsers(ctx)
		if err != nil {
			return unavailable("count users", err)
		}
		if n > 0 {
			return ErrBootstrapAlready
		}
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			return unavailable("create admin", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBootstrapAlready) {
			l.Warn("attempted bootstrap on already-bootstrapped system")
		}
		audit(ctx, s.Store, now, domain.EventBootstrap, req.Username, clientAddr, err)
		return domain.User{}, err
	}

	audit(ctx, s.Store, now, domain.EventBootstrap, user.Username, clientAddr, nil)
	l.Info("bootstrap complete", slog.String("user_id", user.ID), slog.String("username", user.Username))
	return user, nil
}
