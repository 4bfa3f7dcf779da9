package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/mehmetcc/school-auth-service/internal/person"
)

// TokenKind distinguishes short-lived access tokens from persisted refresh tokens.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

var ErrTokenInvalid = errors.New("token invalid")

// Identity is what a token asserts about its bearer.
type Identity struct {
	UserID uint
	Email  string
	Role   person.Role
}

func IdentityOf(p *person.Person) Identity {
	return Identity{UserID: p.ID, Email: p.Email, Role: p.Role}
}

type Claims struct {
	Email string      `json:"email"`
	Role  person.Role `json:"role"`
	Kind  TokenKind   `json:"kind"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrTokenInvalid, c.Subject)
	}
	return uint(id), nil
}

// TokenPair is the result of a login, register or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

type CodecOption func(*TokenCodec)

// WithClock replaces time.Now for minting and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

func NewTokenCodec(cfg *TokenConfig, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TokenCodec) secret(kind TokenKind) ([]byte, error) {
	switch kind {
	case AccessToken:
		return c.accessSecret, nil
	case RefreshToken:
		return c.refreshSecret, nil
	}
	return nil, fmt.Errorf("unknown token kind %q", kind)
}

// Mint signs identity as a token of the given kind valid for ttl. Every token gets a
// fresh jti, so two tokens minted for the same identity in the same second differ.
func (c *TokenCodec) Mint(identity Identity, kind TokenKind, ttl time.Duration) (string, time.Time, error) {
	secret, err := c.secret(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.now()
	expiresAt := jwt.NewNumericDate(now.Add(ttl))
	claims := Claims{
		Email: identity.Email,
		Role:  identity.Role,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(identity.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: expiresAt,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt.Time, nil
}

// Verify checks signature, algorithm, kind, subject and expiry. All failures wrap ErrTokenInvalid.
func (c *TokenCodec) Verify(tokenString string, kind TokenKind) (*Claims, error) {
	secret, err := c.secret(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, kind)
	}
	if !claims.VerifyExpiresAt(c.now(), true) {
		return nil, fmt.Errorf("%w: expired", ErrTokenInvalid)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// GeneratePair mints an access and a refresh token for the same identity.
func (c *TokenCodec) GeneratePair(identity Identity) (*TokenPair, error) {
	access, _, err := c.Mint(identity, AccessToken, c.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	refresh, refreshExpiry, err := c.Mint(identity, RefreshToken, c.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}
