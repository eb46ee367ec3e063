package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opticavillalba/authcore/internal/auth/domain"
	"github.com/opticavillalba/authcore/internal/auth/store/drivers/sqlite"
	"github.com/opticavillalba/authcore/pkg/cryptox"
	"github.com/opticavillalba/authcore/pkg/ratelimit"
	"github.com/opticavillalba/authcore/pkg/totpx"
)

const (
	testAddr     = "203.0.113.5"
	testPassword = "correct horse battery"
	testIssuer   = "authcore-test"
)

var testKey = []byte(strings.Repeat("k", 32))

// clock is a manually advanced time source shared by every component of a
// fixture.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	clock   *clock
	store   *sqlite.Store
	limiter *ratelimit.Memory
	totp    *totpx.Service
	tokens  *TokenService
	login   *LoginService
	users   *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	// Start on a step boundary so codes line up with Advance(30s).
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	st, err := sqlite.NewStore(":memory:", sqlite.WithClock(clk.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	limiter, err := ratelimit.NewMemory(ratelimit.Config{
		Limit:  ratelimit.DefaultLimit,
		Window: ratelimit.DefaultWindow,
		Now:    clk.Now,
	})
	require.NoError(t, err)

	tokens, err := NewTokenService(testKey, testIssuer, 30*time.Minute, clk.Now)
	require.NoError(t, err)

	hasher := cryptox.NewPasswordHasher("test-pepper")
	totp := &totpx.Service{Skew: totpx.DefaultSkew, Now: clk.Now}

	return &fixture{
		clock:   clk,
		store:   st,
		limiter: limiter,
		totp:    totp,
		tokens:  tokens,
		login: &LoginService{
			Store:            st,
			Hasher:           hasher,
			TOTP:             totp,
			Tokens:           tokens,
			Limiter:          limiter,
			MFAIssuer:        "Test Admin",
			ReplayProtection: true,
			Now:              clk.Now,
		},
		users: &UserService{Store: st, Hasher: hasher, Now: clk.Now},
	}
}

func (f *fixture) createUser(t *testing.T, username string) domain.User {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), username, username+"@example.com", testPassword)
	require.NoError(t, err)
	return u
}

// enroll runs the setup flow for username and returns the confirmed secret.
func (f *fixture) enroll(t *testing.T, username string) string {
	t.Helper()
	ctx := context.Background()

	setup, err := f.login.RequestMFASetup(ctx, username)
	require.NoError(t, err)
	code, err := f.totp.Code(setup.Secret, f.clock.Now())
	require.NoError(t, err)
	_, err = f.login.ConfirmMFASetup(ctx, testAddr, username, setup.Secret, code)
	require.NoError(t, err)
	return setup.Secret
}

func (f *fixture) user(t *testing.T, username string) domain.User {
	t.Helper()
	u, err := f.store.Users().GetUserByUsername(context.Background(), username)
	require.NoError(t, err)
	return u
}

func (f *fixture) attempts(t *testing.T) []domain.LoginAttempt {
	t.Helper()
	out, err := f.store.LoginAttempts().ListRecent(context.Background(), 100)
	require.NoError(t, err)
	return out
}

// wrongCode returns a six digit code that does not verify for secret at the
// fixture's current time.
func (f *fixture) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := f.totp.Code(secret, f.clock.Now())
	require.NoError(t, err)
	for shift := byte(1); shift < 10; shift++ {
		b := []byte(code)
		for i := range b {
			b[i] = '0' + (b[i]-'0'+shift)%10
		}
		if _, ok := f.totp.Verify(secret, string(b)); !ok {
			return string(b)
		}
	}
	t.Fatal("no rejected code found")
	return ""
}
