package totpx_test

import (
	"encoding/base32"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/opticavillalba/authcore/pkg/totpx"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// RFC 6238 appendix B test secret ("12345678901234567890"), base32.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerateSecret(t *testing.T) {
	svc := totpx.NewService(totpx.DefaultSkew)

	a, err := svc.GenerateSecret()
	require.NoError(t, err)
	b, err := svc.GenerateSecret()
	require.NoError(t, err)

	require.Len(t, a, 32, "160 bits encode to 32 base32 characters")
	require.NotEqual(t, a, b)
	require.Equal(t, strings.ToUpper(a), a)
	require.NotContains(t, a, "=")
}

func TestProvisioningURI(t *testing.T) {
	svc := totpx.NewService(totpx.DefaultSkew)

	uri, err := svc.ProvisioningURI(rfcSecret, "admin", "Óptica Villalba Admin")
	require.NoError(t, err)

	u, err := url.Parse(uri)
	require.NoError(t, err)
	require.Equal(t, "otpauth", u.Scheme)
	require.Equal(t, "totp", u.Host)
	require.Equal(t, "/Óptica Villalba Admin:admin", u.Path)

	q := u.Query()
	require.Equal(t, rfcSecret, q.Get("secret"))
	require.Equal(t, "Óptica Villalba Admin", q.Get("issuer"))
	require.Equal(t, "30", q.Get("period"))
	require.Equal(t, "6", q.Get("digits"))
	require.Equal(t, "SHA1", q.Get("algorithm"))
}

func TestProvisioningURI_Errors(t *testing.T) {
	svc := totpx.NewService(totpx.DefaultSkew)

	_, err := svc.ProvisioningURI("not base32!", "admin", "issuer")
	require.ErrorIs(t, err, totpx.ErrInvalidSecret)

	_, err = svc.ProvisioningURI(rfcSecret, "", "issuer")
	require.ErrorIs(t, err, totpx.ErrMissingLabel)
}

func TestCode_RFC6238Vectors(t *testing.T) {
	svc := totpx.NewService(totpx.DefaultSkew)

	// SHA-1 vectors from RFC 6238 appendix B, truncated to six digits.
	tests := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}

	for _, tt := range tests {
		code, err := svc.Code(rfcSecret, time.Unix(tt.unix, 0))
		require.NoError(t, err)
		require.Equal(t, tt.want, code, "unix=%d", tt.unix)
	}
}

func TestVerify_Window(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 10, 0, time.UTC)
	svc := &totpx.Service{Skew: 1, Now: fixedClock(now)}
	current := totpx.Step(now)

	tests := []struct {
		name   string
		offset int
		want   bool
	}{
		{"current step", 0, true},
		{"one step behind", -1, true},
		{"one step ahead", 1, true},
		{"two steps behind", -2, false},
		{"three steps behind", -3, false},
		{"three steps ahead", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := uint64(int64(current) + int64(tt.offset))
			code, err := svc.Code(rfcSecret, totpx.StepTime(step))
			require.NoError(t, err)

			matched, ok := svc.Verify(rfcSecret, code)
			require.Equal(t, tt.want, ok)
			if ok {
				require.Equal(t, step, matched)
			}
		})
	}
}

func TestVerify_ZeroSkew(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 10, 0, time.UTC)
	svc := &totpx.Service{Skew: 0, Now: fixedClock(now)}

	prev, err := svc.Code(rfcSecret, now.Add(-totpx.Period))
	require.NoError(t, err)
	_, ok := svc.Verify(rfcSecret, prev)
	require.False(t, ok)
}

func TestVerify_RejectsMalformedInput(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 10, 0, time.UTC)
	svc := &totpx.Service{Skew: 1, Now: fixedClock(now)}
	code, err := svc.Code(rfcSecret, now)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		code   string
	}{
		{"empty code", rfcSecret, ""},
		{"short code", rfcSecret, code[:5]},
		{"long code", rfcSecret, code + "0"},
		{"letters", rfcSecret, "abcdef"},
		{"empty secret", "", code},
		{"bad secret", "!!!!", code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := svc.Verify(tt.secret, tt.code)
			require.False(t, ok)
		})
	}
}

func TestVerify_AcceptsLowercaseSecretAndPaddedCode(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 10, 0, time.UTC)
	svc := &totpx.Service{Skew: 1, Now: fixedClock(now)}
	code, err := svc.Code(rfcSecret, now)
	require.NoError(t, err)

	_, ok := svc.Verify(strings.ToLower(rfcSecret), " "+code+" ")
	require.True(t, ok)
}

func TestVerify_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOfN(rapid.Byte(), totpx.SecretSize, totpx.SecretSize).Draw(t, "secret")
		secret := encodeSecret(raw)
		unix := rapid.Int64Range(1_000_000_000, 4_000_000_000).Draw(t, "unix")
		offset := rapid.IntRange(-3, 3).Draw(t, "offset")

		now := time.Unix(unix, 0)
		svc := &totpx.Service{Skew: 1, Now: fixedClock(now)}
		step := uint64(int64(totpx.Step(now)) + int64(offset))

		code, err := svc.Code(secret, totpx.StepTime(step))
		if err != nil {
			t.Fatalf("code: %v", err)
		}

		matched, ok := svc.Verify(secret, code)
		within := offset >= -1 && offset <= 1
		if within && !ok {
			t.Fatalf("code for offset %d rejected", offset)
		}
		if ok && (matched+1 < totpx.Step(now) || matched > totpx.Step(now)+1) {
			t.Fatalf("matched step %d outside window around %d", matched, totpx.Step(now))
		}
	})
}

func encodeSecret(raw []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
}
