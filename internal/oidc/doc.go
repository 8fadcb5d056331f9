/*
Package oidc discovers identity provider endpoints from the
.well-known/openid-configuration document.

	issuerURL, _ := url.Parse("https://idp.example.com/realms/demo")
	d, err := oidc.NewDiscoverer(issuerURL, oidc.WithTTL(time.Hour))
	if err != nil {
	    log.Fatal(err)
	}

	jwksURI, err := d.JWKSURI(ctx)
	tokenURL, err := d.TokenEndpoint(ctx)

Metadata is fetched on first use rather than at startup and is kept in a
go-cache TTL cache. Documents whose issuer differs from the issuer they were
fetched for are rejected with ErrIssuerMismatch.
*/
package oidc
