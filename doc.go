/*
Package pkjwt runs the OAuth2 client credentials flow with private_key_jwt
client authentication against a Keycloak style identity provider, and guards
HTTP handlers with the access tokens that provider issues.

The lifecycle is split across packages:

  - keystore generates, rotates and stores the RSA signing key (encrypted
    PKCS#8 at rest, kid and password in an env file)
  - jwks publishes the public half as a JWK Set and caches the provider's
    key set
  - assertion signs the short lived client assertion
  - exchange trades the assertion for an access token and calls the
    protected resource with it
  - validator verifies provider access tokens by kid
  - core holds the transport agnostic token check shared by the adapters

This package is the net/http adapter, plus the logging, metrics and tracing
backends used by the service.

# Quick Start

	issuerURL, _ := url.Parse("https://idp.example.com/realms/demo")
	provider, err := jwks.NewCachingProvider(jwks.WithIssuerURL(issuerURL))
	if err != nil {
	    log.Fatal(err)
	}

	v, err := validator.New(
	    validator.WithKeySource(provider),
	    validator.WithIssuer(issuerURL.String()),
	)
	if err != nil {
	    log.Fatal(err)
	}

	middleware, err := pkjwt.New(pkjwt.WithValidator(v))
	if err != nil {
	    log.Fatal(err)
	}
	http.Handle("/protected_api", middleware.CheckJWT(apiHandler))

# Accessing Claims

	func apiHandler(w http.ResponseWriter, r *http.Request) {
	    claims, err := pkjwt.GetClaims[*validator.ValidatedClaims](r.Context())
	    if err != nil {
	        http.Error(w, "Unauthorized", http.StatusUnauthorized)
	        return
	    }
	    json.NewEncoder(w).Encode(claims.Map())
	}

# Error Responses

DefaultErrorHandler answers 400 {"message":"JWT is missing."} when no bearer
token is sent, 400 for an Authorization header that is not a bearer
credential, 401 {"message":"Token validation failed: <reason>"} for a
*core.ValidationError and 500 for everything else. A token signed by a key
the provider no longer publishes is a 500: it is reported as
*validator.UnknownKeyError, not as an invalid token.

# Logging, Metrics and Tracing

NewLogger builds a Logger on logrus, zap or zerolog. NewPrometheusMetrics
returns a core.Metrics with its own registry and an exposition Handler.
NewOpenTelemetryTracer adapts an OpenTelemetry tracer to core.Tracer.
*/
package pkjwt
