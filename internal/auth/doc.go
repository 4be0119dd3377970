// ABOUTME: Package documentation for authentication
// ABOUTME: Bearer tokens, roles, and identity propagation

// Package auth authenticates API callers and propagates their identity.
//
// Callers present a bearer token: an HS256 JWT carrying sub, email, and role
// claims, or a static bcrypt-hashed service token that maps to an admin
// identity. Middleware validates the token and attaches an Identity to the
// request context; RequireRole gates handlers by role, with admin passing
// every gate.
package auth
