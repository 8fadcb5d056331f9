package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/pkjwt/pkjwt/core"
)

// KeySource supplies the identity provider's signing keys.
// Refresh bypasses any cache and is called once when a kid is not found.
type KeySource interface {
	KeySet(ctx context.Context) (jwk.Set, error)
	Refresh(ctx context.Context) (jwk.Set, error)
}

// IssuerResolver returns the issuer the provider announces in its discovery
// document. *oidc.Discoverer satisfies it.
type IssuerResolver interface {
	ProviderIssuer(ctx context.Context) (string, error)
}

// Validator verifies RS256 access tokens issued by the identity provider.
type Validator struct {
	keys             KeySource           // Required.
	issuer           string              // Required unless issuerResolver is set.
	issuerResolver   IssuerResolver      // Optional, wins over issuer.
	audiences        []string            // Defaults to DefaultAudience.
	allowedClockSkew time.Duration       // Optional.
	customClaims     func() CustomClaims // Optional.
	now              func() time.Time
	logger           core.Logger
}

// New sets up a new Validator. WithKeySource and one of WithIssuer or
// WithIssuerResolver are required.
func New(opts ...Option) (*Validator, error) {
	v := &Validator{
		audiences: []string{DefaultAudience},
		now:       time.Now,
		logger:    core.NoopLogger{},
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if v.keys == nil {
		return nil, errors.New("key source is required (use WithKeySource)")
	}
	if v.issuer == "" && v.issuerResolver == nil {
		return nil, errors.New("issuer is required (use WithIssuer or WithIssuerResolver)")
	}

	return v, nil
}

// ValidateToken satisfies core.Validator. The returned value is always a
// *ValidatedClaims when err is nil.
func (v *Validator) ValidateToken(ctx context.Context, tokenString string) (any, error) {
	return v.Validate(ctx, tokenString)
}

// Validate verifies the signature and registered claims of tokenString.
//
// A kid missing from the provider key set yields *UnknownKeyError after one
// forced refresh. Signature and claim failures yield *core.ValidationError.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*ValidatedClaims, error) {
	if err := validateTokenFormat(tokenString); err != nil {
		return nil, core.NewValidationError(core.ErrorCodeTokenMalformed, "malformed token", err)
	}

	msg, err := jws.Parse([]byte(tokenString), jws.WithCompact())
	if err != nil {
		return nil, core.NewValidationError(core.ErrorCodeTokenMalformed, "malformed token header", err)
	}
	headers := msg.Signatures()[0].ProtectedHeaders()

	alg, _ := headers.Algorithm()
	if alg != jwa.RS256() {
		return nil, core.NewValidationError(
			core.ErrorCodeInvalidAlgorithm,
			"unexpected signing algorithm",
			fmt.Errorf("got %q, want %q", alg.String(), jwa.RS256().String()),
		)
	}

	kid, _ := headers.KeyID()
	key, err := v.signingKey(ctx, kid)
	if err != nil {
		return nil, err
	}

	payload, err := jws.Verify([]byte(tokenString), jws.WithKey(jwa.RS256(), key))
	if err != nil {
		return nil, core.NewValidationError(core.ErrorCodeInvalidSignature, "signature verification failed", err)
	}

	// The signature was verified above, so only claim parsing is left to jwt.
	token, err := jwt.ParseInsecure([]byte(tokenString))
	if err != nil {
		return nil, core.NewValidationError(core.ErrorCodeInvalidClaims, "invalid registered claims", err)
	}

	issuer, err := v.expectedIssuer(ctx)
	if err != nil {
		return nil, err
	}
	if err := v.checkRegistered(token, issuer); err != nil {
		return nil, err
	}

	var all map[string]any
	if err := json.Unmarshal(payload, &all); err != nil {
		return nil, core.NewValidationError(core.ErrorCodeTokenMalformed, "could not decode token payload", err)
	}

	claims := &ValidatedClaims{
		RegisteredClaims: registeredClaims(token),
		Extra:            make(map[string]any),
		all:              all,
	}
	for name, value := range all {
		if !registeredClaimNames[name] {
			claims.Extra[name] = value
		}
	}

	if v.customClaims != nil {
		custom := v.customClaims()
		if err := json.Unmarshal(payload, custom); err != nil {
			return nil, core.NewValidationError(core.ErrorCodeInvalidClaims, "could not decode custom claims", err)
		}
		if err := custom.Validate(ctx); err != nil {
			return nil, core.NewValidationError(core.ErrorCodeInvalidClaims, "custom claims not validated", err)
		}
		claims.CustomClaims = custom
	}

	return claims, nil
}

func (v *Validator) expectedIssuer(ctx context.Context) (string, error) {
	if v.issuerResolver == nil {
		return v.issuer, nil
	}
	issuer, err := v.issuerResolver.ProviderIssuer(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve provider issuer: %w", err)
	}
	return issuer, nil
}

// signingKey finds kid in the cached key set, refreshing it once on a miss.
func (v *Validator) signingKey(ctx context.Context, kid string) (jwk.Key, error) {
	set, err := v.keys.KeySet(ctx)
	if err != nil {
		return nil, &KeySetError{Err: err}
	}
	if key, ok := findKey(set, kid); ok {
		return key, nil
	}

	v.logger.Debug("kid not in cached provider keys, refreshing", "kid", kid)
	set, err = v.keys.Refresh(ctx)
	if err != nil {
		return nil, &KeySetError{Err: err}
	}
	if key, ok := findKey(set, kid); ok {
		return key, nil
	}

	v.logger.Warn("kid not in provider keys after refresh", "kid", kid)
	return nil, &UnknownKeyError{KeyID: kid}
}

func findKey(set jwk.Set, kid string) (jwk.Key, bool) {
	if set == nil || kid == "" {
		return nil, false
	}
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if id, ok := key.KeyID(); ok && id == kid {
			return key, true
		}
	}
	return nil, false
}

// checkRegistered runs the jwt time checks (exp, nbf, iat) with the
// configured skew and clock, then iss and aud.
func (v *Validator) checkRegistered(token jwt.Token, issuer string) error {
	err := jwt.Validate(token,
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithAcceptableSkew(v.allowedClockSkew),
		jwt.WithIssuer(issuer),
		jwt.WithValidator(jwt.ValidatorFunc(v.audienceValid)),
	)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, jwt.TokenExpiredError()):
		return core.NewValidationError(core.ErrorCodeTokenExpired, "token is expired", err)
	case errors.Is(err, jwt.TokenNotYetValidError()):
		return core.NewValidationError(core.ErrorCodeTokenNotYetValid, "token is not valid yet", err)
	case errors.Is(err, jwt.InvalidIssuerError()):
		got, _ := token.Issuer()
		return core.NewValidationError(
			core.ErrorCodeInvalidIssuer,
			"issuer mismatch",
			fmt.Errorf("got %q, want %q: %w", got, issuer, err),
		)
	case errors.Is(err, jwt.InvalidAudienceError()):
		return core.NewValidationError(core.ErrorCodeInvalidAudience, "audience mismatch", err)
	default:
		return core.NewValidationError(core.ErrorCodeInvalidClaims, "invalid registered claims", err)
	}
}

// audienceValid accepts a token whose aud contains any configured audience.
func (v *Validator) audienceValid(_ context.Context, token jwt.Token) error {
	aud, _ := token.Audience()
	if slices.ContainsFunc(v.audiences, func(want string) bool { return slices.Contains(aud, want) }) {
		return nil
	}
	return fmt.Errorf("%w: token audience %v does not contain any of %v", jwt.InvalidAudienceError(), aud, v.audiences)
}

func registeredClaims(token jwt.Token) RegisteredClaims {
	var rc RegisteredClaims
	rc.Issuer, _ = token.Issuer()
	rc.Subject, _ = token.Subject()
	rc.Audience, _ = token.Audience()
	rc.ID, _ = token.JwtID()
	if exp, ok := token.Expiration(); ok {
		rc.Expiry = exp.Unix()
	}
	if nbf, ok := token.NotBefore(); ok {
		rc.NotBefore = nbf.Unix()
	}
	if iat, ok := token.IssuedAt(); ok {
		rc.IssuedAt = iat.Unix()
	}
	return rc
}
