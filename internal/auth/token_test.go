// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package auth_test

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugreport/bugreport/internal/auth"
	"github.com/bugreport/bugreport/internal/auth/authtest"
	"github.com/bugreport/bugreport/pkg/errutil"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T, clock auth.Clock) *auth.TokenCodec {
	t.Helper()
	codec, err := auth.NewTokenCodec(auth.TokenConfig{Secret: testSecret}, clock)
	require.NoError(t, err)
	return codec
}

func isInvalidToken(err error) bool {
	return errors.Is(err, &auth.AuthenticationError{Reason: auth.InvalidToken})
}

func TestNewTokenCodec_ShortSecret(t *testing.T) {
	codec, err := auth.NewTokenCodec(auth.TokenConfig{Secret: []byte("short")}, nil)
	require.Error(t, err)
	assert.Nil(t, codec)
	errutil.AssertErrorCode(t, err, "TOKEN_SECRET_TOO_SHORT")
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	clock := authtest.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	codec := newTestCodec(t, clock)
	subject := ulid.Make()

	for _, kind := range []auth.TokenKind{auth.KindAccess, auth.KindRefresh} {
		t.Run(string(kind), func(t *testing.T) {
			issued, err := codec.Issue(subject, kind, 15*time.Minute)
			require.NoError(t, err)
			assert.Equal(t, 3, strings.Count(issued.Value, ".")+1)

			decoded, err := codec.Decode(issued.Value)
			require.NoError(t, err)
			assert.Equal(t, subject, decoded.Subject)
			assert.Equal(t, kind, decoded.Kind)
			assert.Equal(t, issued.ID, decoded.ID)
			assert.True(t, issued.IssuedAt.Equal(decoded.IssuedAt))
			assert.True(t, issued.ExpiresAt.Equal(decoded.ExpiresAt))
		})
	}
}

func TestTokenCodec_Expiry(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := authtest.NewManualClock(start)
	codec := newTestCodec(t, clock)

	tok, err := codec.Issue(ulid.Make(), auth.KindAccess, time.Minute)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, err = codec.Decode(tok.Value)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = codec.Decode(tok.Value)
	require.Error(t, err)
	assert.True(t, isInvalidToken(err))
	errutil.AssertErrorCode(t, err, "TOKEN_INVALID")
}

func TestTokenCodec_SubSecondIssueKeepsFullTTL(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 900*int(time.Millisecond), time.UTC)
	clock := authtest.NewManualClock(start)
	codec := newTestCodec(t, clock)

	tok, err := codec.Issue(ulid.Make(), auth.KindAccess, time.Minute)
	require.NoError(t, err)
	assert.True(t, tok.IssuedAt.Equal(start.Truncate(time.Second)))
	assert.True(t, tok.ExpiresAt.Equal(time.Date(2026, 3, 1, 8, 1, 1, 0, time.UTC)))

	clock.Advance(59*time.Second + 500*time.Millisecond)
	_, err = codec.Decode(tok.Value)
	require.NoError(t, err, "token must live for its whole ttl")

	clock.Set(tok.ExpiresAt)
	_, err = codec.Decode(tok.Value)
	assert.True(t, isInvalidToken(err))
}

func TestTokenCodec_KindsAreNotInterchangeable(t *testing.T) {
	codec := newTestCodec(t, nil)
	subject := ulid.Make()

	access, err := codec.Issue(subject, auth.KindAccess, time.Hour)
	require.NoError(t, err)
	refresh, err := codec.Issue(subject, auth.KindRefresh, time.Hour)
	require.NoError(t, err)

	_, err = codec.DecodeKind(access.Value, auth.KindRefresh)
	assert.True(t, isInvalidToken(err), "access token accepted as refresh")

	_, err = codec.DecodeKind(refresh.Value, auth.KindAccess)
	assert.True(t, isInvalidToken(err), "refresh token accepted as access")

	_, err = codec.DecodeKind(access.Value, auth.KindAccess)
	assert.NoError(t, err)
	_, err = codec.DecodeKind(refresh.Value, auth.KindRefresh)
	assert.NoError(t, err)
}

func TestTokenCodec_RelabelledKindFailsSignature(t *testing.T) {
	// Sign with the access key but claim refresh: verification must pick the
	// refresh key and reject the signature.
	codec := newTestCodec(t, nil)
	access, err := codec.Issue(ulid.Make(), auth.KindAccess, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(access.Value, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	forged := strings.Replace(string(payload), `"kind":"access"`, `"kind":"refresh"`, 1)
	require.NotEqual(t, string(payload), forged)

	tampered := parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(forged)) + "." + parts[2]
	_, err = codec.Decode(tampered)
	assert.True(t, isInvalidToken(err))
}

func TestTokenCodec_DecodeRejects(t *testing.T) {
	codec := newTestCodec(t, nil)
	valid, err := codec.Issue(ulid.Make(), auth.KindAccess, time.Hour)
	require.NoError(t, err)

	other, err := auth.NewTokenCodec(auth.TokenConfig{Secret: []byte(strings.Repeat("z", 32))}, nil)
	require.NoError(t, err)
	foreign, err := other.Issue(ulid.Make(), auth.KindAccess, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := auth.NewTokenCodec(auth.TokenConfig{Secret: testSecret, Issuer: "someone-else"}, nil)
	require.NoError(t, err)
	wrongIssuer, err := otherIssuer.Issue(ulid.Make(), auth.KindAccess, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  ulid.Make().String(),
		"kind": "access",
		"iss":  auth.DefaultIssuer,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"truncated", valid.Value[:len(valid.Value)-4]},
		{"foreign secret", foreign.Value},
		{"wrong issuer", wrongIssuer.Value},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := codec.Decode(tt.value)
			assert.Nil(t, tok)
			assert.True(t, isInvalidToken(err))
		})
	}
}

func TestTokenCodec_IssueRejects(t *testing.T) {
	codec := newTestCodec(t, nil)

	_, err := codec.Issue(ulid.Make(), auth.TokenKind("session"), time.Hour)
	errutil.AssertErrorCode(t, err, "TOKEN_KIND_UNKNOWN")

	_, err = codec.Issue(ulid.ULID{}, auth.KindAccess, time.Hour)
	errutil.AssertErrorCode(t, err, "TOKEN_SUBJECT_EMPTY")

	_, err = codec.Issue(ulid.Make(), auth.KindAccess, 0)
	errutil.AssertErrorCode(t, err, "TOKEN_TTL_INVALID")

	_, err = codec.Issue(ulid.Make(), auth.KindAccess, -time.Minute)
	errutil.AssertErrorCode(t, err, "TOKEN_TTL_INVALID")
}
