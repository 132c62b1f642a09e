// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package auth

import (
	"crypto/sha256"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/crypto/hkdf"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

// Token kinds.
const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Token codec configuration.
const (
	MinSecretLength = 32
	DefaultIssuer   = "bugreport"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	derivedKeyLength = 32
	keyInfoPrefix    = "bugreport/token/"
)

// ErrInvalidToken is returned for every token that fails to decode. Callers
// cannot tell a malformed token from an expired one.
var ErrInvalidToken = oops.Code("TOKEN_INVALID").Wrap(&AuthenticationError{Reason: InvalidToken})

// Token is an issued or decoded session token.
type Token struct {
	Value     string
	ID        ulid.ULID
	Subject   ulid.ULID
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	// Secret is the process-wide signing secret. It must be at least
	// MinSecretLength bytes.
	Secret []byte
	// Issuer is written to and required in the iss claim. Defaults to DefaultIssuer.
	Issuer string
}

type tokenClaims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenCodec issues and decodes HS256 session tokens. Each kind is signed
// with its own key derived from the secret, so a token of one kind never
// verifies as another.
type TokenCodec struct {
	keys   map[TokenKind][]byte
	issuer string
	clock  Clock
	parser *jwt.Parser
}

// NewTokenCodec creates a TokenCodec. The secret is copied; later changes to
// cfg.Secret have no effect.
func NewTokenCodec(cfg TokenConfig, clock Clock) (*TokenCodec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_SECRET_TOO_SHORT").
			With("min_length", MinSecretLength).
			Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}

	keys := make(map[TokenKind][]byte, 2)
	for _, kind := range []TokenKind{KindAccess, KindRefresh} {
		key, err := deriveKey(cfg.Secret, kind)
		if err != nil {
			return nil, oops.Code("TOKEN_KEY_DERIVATION_FAILED").With("kind", string(kind)).Wrap(err)
		}
		keys[kind] = key
	}

	c := &TokenCodec{
		keys:   keys,
		issuer: issuer,
		clock:  clock,
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(clock.Now),
	)
	return c, nil
}

func ceilSecond(t time.Time) time.Time {
	if c := t.Truncate(time.Second); c.Before(t) {
		return c.Add(time.Second)
	}
	return t
}

func deriveKey(secret []byte, kind TokenKind) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(keyInfoPrefix+string(kind)))
	key := make([]byte, derivedKeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}
	return key, nil
}

// Issue signs a new token for subject. The ttl must be at least one second
// since token timestamps have second precision. The issue time is truncated
// and the expiry rounded up to the second, so a token is accepted for at
// least ttl and less than ttl plus one second.
func (c *TokenCodec) Issue(subject ulid.ULID, kind TokenKind, ttl time.Duration) (*Token, error) {
	key, ok := c.keys[kind]
	if !ok {
		return nil, oops.Code("TOKEN_KIND_UNKNOWN").With("kind", string(kind)).Errorf("unknown token kind")
	}
	if subject.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_SUBJECT_EMPTY").Errorf("token subject cannot be zero")
	}
	if ttl < time.Second {
		return nil, oops.Code("TOKEN_TTL_INVALID").With("ttl", ttl.String()).Errorf("token ttl must be at least one second")
	}

	now := c.clock.Now().UTC()
	tok := &Token{
		ID:        ulid.Make(),
		Subject:   subject,
		Kind:      kind,
		IssuedAt:  now.Truncate(time.Second),
		ExpiresAt: ceilSecond(now.Add(ttl)),
	}

	claims := tokenClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject.String(),
			ID:        tok.ID.String(),
			IssuedAt:  jwt.NewNumericDate(tok.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return nil, oops.Code("TOKEN_SIGN_FAILED").With("kind", string(kind)).Wrap(err)
	}
	tok.Value = signed
	return tok, nil
}

// Decode verifies a token string and returns its contents. Every failure
// yields ErrInvalidToken.
func (c *TokenCodec) Decode(value string) (*Token, error) {
	if value == "" {
		return nil, ErrInvalidToken
	}

	claims := &tokenClaims{}
	parsed, err := c.parser.ParseWithClaims(value, claims, c.keyFor)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	if !c.clock.Now().Before(claims.ExpiresAt.Time) {
		return nil, ErrInvalidToken
	}

	subject, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	id, err := ulid.Parse(claims.ID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Token{
		Value:     value,
		ID:        id,
		Subject:   subject,
		Kind:      claims.Kind,
		IssuedAt:  claims.IssuedAt.UTC(),
		ExpiresAt: claims.ExpiresAt.UTC(),
	}, nil
}

// DecodeKind decodes a token and requires it to be of the given kind.
func (c *TokenCodec) DecodeKind(value string, want TokenKind) (*Token, error) {
	tok, err := c.Decode(value)
	if err != nil {
		return nil, err
	}
	if tok.Kind != want {
		return nil, ErrInvalidToken
	}
	return tok, nil
}

// keyFor selects the verification key from the kind claim.
func (c *TokenCodec) keyFor(t *jwt.Token) (any, error) {
	claims, ok := t.Claims.(*tokenClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	key, ok := c.keys[claims.Kind]
	if !ok {
		return nil, ErrInvalidToken
	}
	return key, nil
}
