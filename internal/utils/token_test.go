package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehmetcc/school-auth-service/internal/person"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func testTokenConfig() *TokenConfig {
	return &TokenConfig{
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
	}
}

func newTestCodec() (*TokenCodec, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewTokenCodec(testTokenConfig(), WithClock(clock.Now)), clock
}

var alice = Identity{UserID: 42, Email: "alice@school.test", Role: person.Teacher}

func TestMintVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	codec, clock := newTestCodec()

	for _, kind := range []TokenKind{AccessToken, RefreshToken} {
		tok, expiresAt, err := codec.Mint(alice, kind, time.Minute)
		require.NoError(t, err)
		assert.True(t, clock.now.Add(time.Minute).Equal(expiresAt))

		claims, err := codec.Verify(tok, kind)
		require.NoError(t, err)

		id, err := claims.UserID()
		require.NoError(t, err)
		assert.Equal(t, alice.UserID, id)
		assert.Equal(t, alice.Email, claims.Email)
		assert.Equal(t, alice.Role, claims.Role)
		assert.Equal(t, kind, claims.Kind)
		assert.NotEmpty(t, claims.ID)
	}
}

func TestVerify_FailsAfterTTL(t *testing.T) {
	t.Parallel()

	codec, clock := newTestCodec()

	tok, _, err := codec.Mint(alice, AccessToken, time.Minute)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, err = codec.Verify(tok, AccessToken)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = codec.Verify(tok, AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_RejectsWrongKind(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec()

	access, _, err := codec.Mint(alice, AccessToken, time.Minute)
	require.NoError(t, err)
	_, err = codec.Verify(access, RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	refresh, _, err := codec.Mint(alice, RefreshToken, time.Minute)
	require.NoError(t, err)
	_, err = codec.Verify(refresh, AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_RejectsKindClaimForgedUnderSameSecret(t *testing.T) {
	t.Parallel()

	cfg := testTokenConfig()
	cfg.RefreshTokenSecret = cfg.AccessTokenSecret
	codec := NewTokenCodec(cfg)

	access, _, err := codec.Mint(alice, AccessToken, time.Minute)
	require.NoError(t, err)

	_, err = codec.Verify(access, RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_RejectsTamperedToken(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec()

	tok, _, err := codec.Mint(alice, AccessToken, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = codec.Verify(tampered, AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec()
	other := NewTokenCodec(&TokenConfig{
		AccessTokenSecret:  "another-access",
		RefreshTokenSecret: "another-refresh",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
	})

	tok, _, err := other.Mint(alice, AccessToken, time.Minute)
	require.NoError(t, err)

	_, err = codec.Verify(tok, AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_RejectsMalformed(t *testing.T) {
	t.Parallel()

	codec, _ := newTestCodec()

	for _, raw := range []string{"", "not.a.jwt", "abc"} {
		_, err := codec.Verify(raw, AccessToken)
		assert.ErrorIs(t, err, ErrTokenInvalid, raw)
	}
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	t.Parallel()

	codec, clock := newTestCodec()

	claims := Claims{
		Email: alice.Email,
		Role:  alice.Role,
		Kind:  AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Verify(tok, AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_RejectsBadSubject(t *testing.T) {
	t.Parallel()

	codec, clock := newTestCodec()

	claims := Claims{
		Kind: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-number",
			ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = codec.Verify(tok, AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestGeneratePair(t *testing.T) {
	t.Parallel()

	codec, clock := newTestCodec()

	pair, err := codec.GeneratePair(alice)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.True(t, clock.now.Add(7*24*time.Hour).Equal(pair.RefreshExpiresAt))

	access, err := codec.Verify(pair.AccessToken, AccessToken)
	require.NoError(t, err)
	assert.True(t, clock.now.Add(15*time.Minute).Equal(access.ExpiresAt.Time))

	refresh, err := codec.Verify(pair.RefreshToken, RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, access.Subject, refresh.Subject)

	again, err := codec.GeneratePair(alice)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, again.RefreshToken)
}
