package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstream/internal/domain"
	"turnstream/internal/domain/models"
)

const testKeyID = "test-key"

// newTestKeys returns a signing key and a verifier trusting only that key
func newTestKeys(t *testing.T) (*ecdsa.PrivateKey, JWTVerifier) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	coord := func(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }
	set := map[string]any{
		"keys": []map[string]any{{
			"kty": "EC",
			"crv": "P-256",
			"kid": testKeyID,
			"alg": "ES256",
			"use": "sig",
			"x":   coord(priv.PublicKey.X.FillBytes(make([]byte, 32))),
			"y":   coord(priv.PublicKey.Y.FillBytes(make([]byte, 32))),
		}},
	}
	raw, err := json.Marshal(set)
	require.NoError(t, err)

	keys, err := keyfunc.NewJWKSetJSON(raw)
	require.NoError(t, err)

	return priv, NewJWTVerifierWithKeys(keys, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims *models.SupabaseClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims() *models.SupabaseClaims {
	return &models.SupabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "authenticated",
	}
}

func TestVerifyToken_Valid(t *testing.T) {
	priv, verifier := newTestKeys(t)

	claims, err := verifier.VerifyToken(signToken(t, jwt.SigningMethodES256, priv, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.GetUserID())
}

func TestVerifyToken_Rejected(t *testing.T) {
	priv, verifier := newTestKeys(t)
	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	anon := validClaims()
	anon.Role = "anon"

	noSubject := validClaims()
	noSubject.Subject = ""

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-jwt"},
		{name: "expired", token: signToken(t, jwt.SigningMethodES256, priv, expired)},
		{name: "anonymous role", token: signToken(t, jwt.SigningMethodES256, priv, anon)},
		{name: "missing subject", token: signToken(t, jwt.SigningMethodES256, priv, noSubject)},
		{name: "signed by unknown key", token: signToken(t, jwt.SigningMethodES256, other, validClaims())},
		{name: "symmetric algorithm", token: signToken(t, jwt.SigningMethodHS256, []byte("secret"), validClaims())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.VerifyToken(tt.token)
			assert.True(t, errors.Is(err, domain.ErrUnauthorized), "got %v", err)
		})
	}
}

func TestNewJWTVerifier_RequiresURL(t *testing.T) {
	_, err := NewJWTVerifier("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
