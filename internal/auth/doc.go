// Package auth provides HS256 JWT verification and the HTTP bearer-token
// middleware gating the relay's admin surface. When no secret is configured
// the gateway runs open and logs a warning instead.
package auth
