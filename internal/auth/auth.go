// Package auth carries caller identity through the request lifecycle.
//
// MediaStore does not validate tokens itself; validation belongs to the
// identity provider in front of the gateway. This package only extracts the
// inbound Authorization / X-Api-Key headers so they can be forwarded to the
// collection and job services and audited in events.
package auth

import (
	"context"
	"net/http"
)

// Credentials holds the caller-supplied auth material forwarded verbatim to
// upstream services.
type Credentials struct {
	// Authorization is the raw Authorization header value (e.g., "Bearer x").
	Authorization string
	// APIKey is the tenant API key header value.
	APIKey string
}

// Empty reports whether no auth material is present.
func (c Credentials) Empty() bool {
	return c.Authorization == "" && c.APIKey == ""
}

// Apply sets the forwarded headers on an outbound request.
func (c Credentials) Apply(req *http.Request) {
	if c.Authorization != "" {
		req.Header.Set("Authorization", c.Authorization)
	}
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}
}

// Headers returns the forwarded headers as a map, used in event payloads.
func (c Credentials) Headers() map[string]string {
	h := make(map[string]string, 2)
	if c.Authorization != "" {
		h["Authorization"] = c.Authorization
	}
	if c.APIKey != "" {
		h["X-Api-Key"] = c.APIKey
	}
	return h
}

type contextKey struct{}

// FromRequest extracts credentials from the inbound request, falling back to
// the static token when the request carries no Authorization header.
func FromRequest(r *http.Request, staticToken string) Credentials {
	creds := Credentials{
		Authorization: r.Header.Get("Authorization"),
		APIKey:        r.Header.Get("X-Api-Key"),
	}
	if creds.Authorization == "" && staticToken != "" {
		creds.Authorization = "Bearer " + staticToken
	}
	return creds
}

// Static returns credentials built from the configured fallback token only.
// Used by bus consumers, which have no inbound request to forward from.
func Static(staticToken string) Credentials {
	if staticToken == "" {
		return Credentials{}
	}
	return Credentials{Authorization: "Bearer " + staticToken}
}

// WithCredentials returns a context carrying the credentials.
func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, contextKey{}, creds)
}

// FromContext returns the credentials stored in ctx, or zero credentials.
func FromContext(ctx context.Context) Credentials {
	creds, _ := ctx.Value(contextKey{}).(Credentials)
	return creds
}

// Middleware extracts caller credentials on every request and stores them in
// the request context for handlers to forward.
func Middleware(staticToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := FromRequest(r, staticToken)
			next.ServeHTTP(w, r.WithContext(WithCredentials(r.Context(), creds)))
		})
	}
}
