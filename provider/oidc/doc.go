// Package oidc validates tokens minted by an external OpenID Connect
// issuer and maps their claims onto local sessions.
//
// Use it with auth.WithTokenValidator to accept issuer-signed tokens
// while keeping local session and course authorization behavior.
package oidc
