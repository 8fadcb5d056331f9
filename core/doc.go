/*
Package core holds the token check that the HTTP middleware and the gin adapter
delegate to.

	c, err := core.New(
	    core.WithValidator(val),
	    core.WithLogger(logger),
	    core.WithMetrics(metrics),
	)
	if err != nil {
	    log.Fatal(err)
	}

	claims, err := c.CheckToken(ctx, rawToken)

An empty token yields ErrJWTMissing unless WithCredentialsOptional(true) is set,
in which case CheckToken returns (nil, nil). Every other failure is passed
through from the Validator unchanged so callers can distinguish a
*ValidationError (the token is bad) from infrastructure errors.

# Error codes

ErrorCode maps an error to the short code used in log lines and in the
result label of the token_validations_total counter:

	core.ErrorCode(err) // "token_expired", "invalid_audience", "jwks_key_not_found", ...

# Context helpers

Adapters store the validated claims with SetClaims and handlers read them
back with GetClaims:

	claims, err := core.GetClaims[*validator.ValidatedClaims](r.Context())
*/
package core
