/*
Package jwks handles both directions of JSON Web Key Set traffic.

Publisher serves the public half of our own signing key, so the identity
provider can verify client assertions:

	publisher, _ := jwks.NewPublisher(store)
	doc, err := publisher.PublishJSON(ctx) // {"keys":[{"kty":"RSA","kid":...,"use":"sig","alg":"RS256",...}]}

CachingProvider fetches the identity provider's key set, used to verify the
access tokens it issues:

	provider, err := jwks.NewCachingProvider(
	    jwks.WithIssuerURL(issuerURL),
	    jwks.WithCacheTTL(15*time.Minute),
	    jwks.WithMinRefreshInterval(30*time.Second),
	)

	set, err := provider.KeySet(ctx)   // cached
	set, err = provider.Refresh(ctx)   // forced, at most once per interval

The JWKS URI comes from WithCustomJWKSURI or from the discovery document.
Cached sets are refreshed in the background at 80% of their TTL, and a
Cache-Control max-age longer than the configured TTL extends it.
*/
package jwks
