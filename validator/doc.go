/*
Package validator verifies the access tokens that the identity provider
issues at the end of the client credentials exchange.

Only RS256 compact JWS tokens are accepted. The signing key is located by the
kid header in the provider key set supplied by a KeySource, normally a
*jwks.CachingProvider. A kid missing from the cached set triggers one forced
refresh; if the kid is still absent the result is *UnknownKeyError, never a
signature error.

Signature and claim failures are returned as *core.ValidationError with one
of the core.ErrorCode* codes:

	v, err := validator.New(
		validator.WithKeySource(provider),
		validator.WithIssuer("https://idp.example.com/realms/demo"),
		validator.WithAudience("account"),
		validator.WithAllowedClockSkew(30*time.Second),
	)
	if err != nil {
		log.Fatal(err)
	}

	claims, err := v.Validate(ctx, token)
	if err != nil {
		var vErr *core.ValidationError
		if errors.As(err, &vErr) {
			log.Printf("rejected: %s", vErr.Code)
		}
		return
	}
	fmt.Println(claims.RegisteredClaims.Subject, claims.Map()["scope"])

ValidatedClaims keeps the registered claims typed and exposes every other
claim through Extra, so claims this package does not know about are still
returned to the caller unchanged.
*/
package validator
