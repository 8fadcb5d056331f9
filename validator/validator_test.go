package validator

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkjwt/pkjwt/core"
	"github.com/pkjwt/pkjwt/jwks"
)

const (
	testIssuer   = "https://idp.example.com/realms/demo"
	testAudience = "account"
)

type signingKey struct {
	kid  string
	priv *rsa.PrivateKey
}

func newSigningKey(t *testing.T, kid string) signingKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return signingKey{kid: kid, priv: priv}
}

func (k signingKey) publicJWK(t *testing.T) jwk.Key {
	t.Helper()
	key, err := jwk.Import(&k.priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, k.kid))
	return key
}

func (k signingKey) sign(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	headers := jws.NewHeaders()
	require.NoError(t, headers.Set(jws.KeyIDKey, k.kid))
	require.NoError(t, headers.Set(jws.TypeKey, "JWT"))

	signed, err := jws.Sign(payload, jws.WithKey(jwa.RS256(), k.priv, jws.WithProtectedHeaders(headers)))
	require.NoError(t, err)
	return string(signed)
}

func keySetOf(t *testing.T, keys ...signingKey) jwk.Set {
	t.Helper()
	set := jwk.NewSet()
	for _, k := range keys {
		require.NoError(t, set.AddKey(k.publicJWK(t)))
	}
	return set
}

type fakeKeySource struct {
	mu        sync.Mutex
	cached    jwk.Set
	fresh     jwk.Set
	err       error
	refreshes int
}

func (f *fakeKeySource) KeySet(context.Context) (jwk.Set, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cached, f.err
}

func (f *fakeKeySource) Refresh(context.Context) (jwk.Set, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.err != nil {
		return nil, f.err
	}
	if f.fresh != nil {
		f.cached = f.fresh
	}
	return f.cached, nil
}

type scopeClaims struct {
	Scope string `json:"scope"`
}

func (c *scopeClaims) Validate(context.Context) error {
	if c.Scope != "read" {
		return errors.New("scope read is required")
	}
	return nil
}

func validClaims(now time.Time) map[string]any {
	return map[string]any{
		"iss":                testIssuer,
		"sub":                "service-account-client-42",
		"aud":                []any{testAudience, "realm-management"},
		"iat":                now.Unix(),
		"exp":                now.Add(5 * time.Minute).Unix(),
		"jti":                "4d0c5a4e-0f1c-4f5e-9c4f-2b7f0e4c9a11",
		"azp":                "client-42",
		"scope":              "read",
		"preferred_username": "service-account-client-42",
		"realm_access":       map[string]any{"roles": []any{"offline_access", "uma_authorization"}},
	}
}

type staticIssuer string

func (s staticIssuer) ProviderIssuer(context.Context) (string, error) {
	return string(s), nil
}

type failingIssuer struct{ err error }

func (f failingIssuer) ProviderIssuer(context.Context) (string, error) {
	return "", f.err
}

func newTestValidator(t *testing.T, keys KeySource, now time.Time, opts ...Option) *Validator {
	t.Helper()
	base := []Option{
		WithKeySource(keys),
		WithIssuer(testIssuer),
		WithClock(func() time.Time { return now }),
	}
	v, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return v
}

func TestNew(t *testing.T) {
	keys := &fakeKeySource{}

	t.Run("defaults", func(t *testing.T) {
		v, err := New(WithKeySource(keys), WithIssuer(testIssuer))
		require.NoError(t, err)
		assert.Equal(t, []string{DefaultAudience}, v.audiences)
		assert.Zero(t, v.allowedClockSkew)
		assert.Nil(t, v.customClaims)
	})

	t.Run("missing key source", func(t *testing.T) {
		_, err := New(WithIssuer(testIssuer))
		assert.ErrorContains(t, err, "key source is required")
	})

	t.Run("missing issuer", func(t *testing.T) {
		_, err := New(WithKeySource(keys))
		assert.ErrorContains(t, err, "issuer is required")
	})

	t.Run("option error is wrapped", func(t *testing.T) {
		_, err := New(WithKeySource(keys), WithIssuer(testIssuer), WithAllowedClockSkew(-time.Second))
		assert.ErrorContains(t, err, "invalid option: clock skew cannot be negative")
	})
}

func TestValidator_Validate(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	active := newSigningKey(t, "active-kid")
	keys := &fakeKeySource{cached: keySetOf(t, active)}

	mutate := func(f func(map[string]any)) string {
		claims := validClaims(now)
		f(claims)
		return active.sign(t, claims)
	}

	testCases := []struct {
		name     string
		token    string
		opts     []Option
		wantCode string
	}{
		{
			name:     "empty token",
			token:    "",
			wantCode: core.ErrorCodeTokenMalformed,
		},
		{
			name:     "not a JWS",
			token:    "not-a-token",
			wantCode: core.ErrorCodeTokenMalformed,
		},
		{
			name:     "header is not base64",
			token:    "!!!.e30.sig",
			wantCode: core.ErrorCodeTokenMalformed,
		},
		{
			name:     "header is not JSON",
			token:    base64.RawURLEncoding.EncodeToString([]byte("nope")) + ".e30.sig",
			wantCode: core.ErrorCodeTokenMalformed,
		},
		{
			name:     "HS256 is rejected",
			token:    base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","kid":"active-kid"}`)) + ".e30.c2ln",
			wantCode: core.ErrorCodeInvalidAlgorithm,
		},
		{
			name:     "none is rejected",
			token:    base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","kid":"active-kid"}`)) + ".e30.",
			wantCode: core.ErrorCodeInvalidAlgorithm,
		},
		{
			name:     "missing alg is rejected",
			token:    base64.RawURLEncoding.EncodeToString([]byte(`{"kid":"active-kid"}`)) + ".e30.c2ln",
			wantCode: core.ErrorCodeInvalidAlgorithm,
		},
		{
			name:     "tampered payload",
			token:    tamper(t, mutate(func(map[string]any) {}), validClaims(now), "sub", "someone-else"),
			wantCode: core.ErrorCodeInvalidSignature,
		},
		{
			name:     "wrong issuer",
			token:    mutate(func(c map[string]any) { c["iss"] = "https://evil.example.com/realms/demo" }),
			wantCode: core.ErrorCodeInvalidIssuer,
		},
		{
			name:     "missing issuer",
			token:    mutate(func(c map[string]any) { delete(c, "iss") }),
			wantCode: core.ErrorCodeInvalidIssuer,
		},
		{
			name:     "wrong audience",
			token:    mutate(func(c map[string]any) { c["aud"] = "another-api" }),
			wantCode: core.ErrorCodeInvalidAudience,
		},
		{
			name:     "configured audience",
			token:    mutate(func(c map[string]any) { c["aud"] = "another-api" }),
			opts:     []Option{WithAudience("another-api")},
			wantCode: "",
		},
		{
			name:     "any of several audiences",
			token:    mutate(func(c map[string]any) { c["aud"] = []any{"x", "api-b"} }),
			opts:     []Option{WithAudiences([]string{"api-a", "api-b"})},
			wantCode: "",
		},
		{
			name:     "aud with a non string member",
			token:    mutate(func(c map[string]any) { c["aud"] = []any{testAudience, 7} }),
			wantCode: core.ErrorCodeInvalidClaims,
		},
		{
			name:     "exp is not a number",
			token:    mutate(func(c map[string]any) { c["exp"] = "tomorrow" }),
			wantCode: core.ErrorCodeInvalidClaims,
		},
		{
			name:     "expired",
			token:    mutate(func(c map[string]any) { c["exp"] = now.Add(-time.Minute).Unix() }),
			wantCode: core.ErrorCodeTokenExpired,
		},
		{
			name:     "expires exactly now",
			token:    mutate(func(c map[string]any) { c["exp"] = now.Unix() }),
			wantCode: core.ErrorCodeTokenExpired,
		},
		{
			name:     "expired within clock skew",
			token:    mutate(func(c map[string]any) { c["exp"] = now.Add(-10 * time.Second).Unix() }),
			opts:     []Option{WithAllowedClockSkew(30 * time.Second)},
			wantCode: "",
		},
		{
			name:     "issued in the future",
			token:    mutate(func(c map[string]any) { c["iat"] = now.Add(time.Hour).Unix() }),
			wantCode: core.ErrorCodeInvalidClaims,
		},
		{
			name:     "not yet valid",
			token:    mutate(func(c map[string]any) { c["nbf"] = now.Add(time.Minute).Unix() }),
			wantCode: core.ErrorCodeTokenNotYetValid,
		},
		{
			name:     "nbf within clock skew",
			token:    mutate(func(c map[string]any) { c["nbf"] = now.Add(10 * time.Second).Unix() }),
			opts:     []Option{WithAllowedClockSkew(30 * time.Second)},
			wantCode: "",
		},
		{
			name:     "custom claims pass",
			token:    mutate(func(map[string]any) {}),
			opts:     []Option{WithCustomClaims(func() CustomClaims { return &scopeClaims{} })},
			wantCode: "",
		},
		{
			name:     "custom claims fail",
			token:    mutate(func(c map[string]any) { c["scope"] = "write" }),
			opts:     []Option{WithCustomClaims(func() CustomClaims { return &scopeClaims{} })},
			wantCode: core.ErrorCodeInvalidClaims,
		},
		{
			name:     "valid token",
			token:    mutate(func(map[string]any) {}),
			wantCode: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := newTestValidator(t, keys, now, tc.opts...)

			claims, err := v.Validate(context.Background(), tc.token)
			if tc.wantCode == "" {
				require.NoError(t, err)
				require.NotNil(t, claims)
				return
			}

			require.Error(t, err)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, core.ErrJWTInvalid)

			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.wantCode, vErr.Code)
		})
	}
}

// tamper re-encodes the payload of a signed token with one claim changed,
// keeping the original header and signature.
func tamper(t *testing.T, token string, claims map[string]any, name string, value any) string {
	t.Helper()
	claims[name] = value
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	header, rest, _ := strings.Cut(token, ".")
	_, signature, _ := strings.Cut(rest, ".")
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "." + signature
}

func TestValidator_ValidClaims(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	active := newSigningKey(t, "active-kid")
	v := newTestValidator(t, &fakeKeySource{cached: keySetOf(t, active)}, now)

	original := validClaims(now)
	original["nbf"] = now.Add(-time.Second).Unix()
	token := active.sign(t, original)

	got, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)

	claims, ok := got.(*ValidatedClaims)
	require.True(t, ok)

	assert.Equal(t, RegisteredClaims{
		Issuer:    testIssuer,
		Subject:   "service-account-client-42",
		Audience:  []string{testAudience, "realm-management"},
		Expiry:    now.Add(5 * time.Minute).Unix(),
		NotBefore: now.Add(-time.Second).Unix(),
		IssuedAt:  now.Unix(),
		ID:        "4d0c5a4e-0f1c-4f5e-9c4f-2b7f0e4c9a11",
	}, claims.RegisteredClaims)

	t.Run("extra holds only unregistered claims", func(t *testing.T) {
		assert.Equal(t, "client-42", claims.Extra["azp"])
		assert.Equal(t, "read", claims.Extra["scope"])
		assert.NotContains(t, claims.Extra, "iss")
		assert.NotContains(t, claims.Extra, "exp")
	})

	t.Run("map round-trips every claim", func(t *testing.T) {
		want, err := json.Marshal(original)
		require.NoError(t, err)
		have, err := json.Marshal(claims.Map())
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(have))
	})

	t.Run("map is a copy", func(t *testing.T) {
		m := claims.Map()
		m["scope"] = "changed"
		assert.Equal(t, "read", claims.Map()["scope"])
	})
}

func TestValidator_KeySelection(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	active := newSigningKey(t, "active-kid")
	rotated := newSigningKey(t, "rotated-kid")

	t.Run("unknown kid is not a signature error", func(t *testing.T) {
		keys := &fakeKeySource{cached: keySetOf(t, active)}
		v := newTestValidator(t, keys, now)

		_, err := v.Validate(context.Background(), rotated.sign(t, validClaims(now)))
		require.Error(t, err)

		var unknown *UnknownKeyError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "rotated-kid", unknown.KeyID)
		assert.ErrorIs(t, err, ErrUnknownKey)
		assert.NotErrorIs(t, err, core.ErrJWTInvalid)
		assert.Equal(t, core.ErrorCodeJWKSKeyNotFound, core.ErrorCode(err))
		assert.Equal(t, 1, keys.refreshes)
	})

	t.Run("known kid does not refresh", func(t *testing.T) {
		keys := &fakeKeySource{cached: keySetOf(t, active)}
		v := newTestValidator(t, keys, now)

		_, err := v.Validate(context.Background(), active.sign(t, validClaims(now)))
		require.NoError(t, err)
		assert.Zero(t, keys.refreshes)
	})

	t.Run("refresh picks up a rotated key", func(t *testing.T) {
		keys := &fakeKeySource{cached: keySetOf(t, active), fresh: keySetOf(t, rotated)}
		v := newTestValidator(t, keys, now)

		claims, err := v.Validate(context.Background(), rotated.sign(t, validClaims(now)))
		require.NoError(t, err)
		assert.Equal(t, "service-account-client-42", claims.RegisteredClaims.Subject)
		assert.Equal(t, 1, keys.refreshes)
	})

	t.Run("same kid with a different key fails the signature", func(t *testing.T) {
		impostor := newSigningKey(t, "active-kid")
		keys := &fakeKeySource{cached: keySetOf(t, active)}
		v := newTestValidator(t, keys, now)

		_, err := v.Validate(context.Background(), impostor.sign(t, validClaims(now)))
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, core.ErrorCodeInvalidSignature, vErr.Code)
	})

	t.Run("key set failure", func(t *testing.T) {
		keys := &fakeKeySource{err: errors.New("connection refused")}
		v := newTestValidator(t, keys, now)

		_, err := v.Validate(context.Background(), active.sign(t, validClaims(now)))
		var ksErr *KeySetError
		require.ErrorAs(t, err, &ksErr)
		assert.ErrorContains(t, err, "connection refused")
		assert.Equal(t, core.ErrorCodeJWKSFetchFailed, core.ErrorCode(err))
	})
}

func TestValidator_WithCachingProvider(t *testing.T) {
	now := time.Now()
	first := newSigningKey(t, "first-kid")
	second := newSigningKey(t, "second-kid")

	var (
		mu      sync.Mutex
		current = keySetOf(t, first)
		fetches int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		fetches++
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(current))
	}))
	t.Cleanup(server.Close)

	jwksURI, err := url.Parse(server.URL + "/protocol/openid-connect/certs")
	require.NoError(t, err)

	provider, err := jwks.NewCachingProvider(
		jwks.WithCustomJWKSURI(jwksURI),
		jwks.WithMinRefreshInterval(0),
	)
	require.NoError(t, err)

	v := newTestValidator(t, provider, now)

	_, err = v.Validate(context.Background(), first.sign(t, validClaims(now)))
	require.NoError(t, err)

	mu.Lock()
	current = keySetOf(t, second)
	mu.Unlock()

	_, err = v.Validate(context.Background(), second.sign(t, validClaims(now)))
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), first.sign(t, validClaims(now)))
	assert.ErrorIs(t, err, ErrUnknownKey)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, fetches)
}

func TestValidator_IssuerResolver(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	active := newSigningKey(t, "active-kid")
	keys := &fakeKeySource{cached: keySetOf(t, active)}

	t.Run("discovered issuer wins over a trailing slash in config", func(t *testing.T) {
		v := newTestValidator(t, keys, now,
			WithIssuer(testIssuer+"/"),
			WithIssuerResolver(staticIssuer(testIssuer)),
		)

		claims, err := v.Validate(context.Background(), active.sign(t, validClaims(now)))
		require.NoError(t, err)
		assert.Equal(t, testIssuer, claims.RegisteredClaims.Issuer)
	})

	t.Run("token must still match the discovered issuer", func(t *testing.T) {
		v := newTestValidator(t, keys, now, WithIssuerResolver(staticIssuer("https://other.example.com/realms/demo")))

		_, err := v.Validate(context.Background(), active.sign(t, validClaims(now)))
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, core.ErrorCodeInvalidIssuer, vErr.Code)
	})

	t.Run("resolver failure is not a validation error", func(t *testing.T) {
		v := newTestValidator(t, keys, now, WithIssuerResolver(failingIssuer{err: errors.New("discovery unreachable")}))

		_, err := v.Validate(context.Background(), active.sign(t, validClaims(now)))
		require.ErrorContains(t, err, "discovery unreachable")
		assert.NotErrorIs(t, err, core.ErrJWTInvalid)
	})

	t.Run("resolver alone satisfies New", func(t *testing.T) {
		_, err := New(WithKeySource(keys), WithIssuerResolver(staticIssuer(testIssuer)))
		require.NoError(t, err)
	})
}
