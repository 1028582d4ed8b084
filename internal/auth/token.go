// Package auth defines the token supplier collaborator. The core never
// stores or refreshes tokens itself; it asks the supplier at each use.
package auth

import "os"

// TokenSource returns a non-expired bearer token, or "" when no valid token
// is available. Implementations must be safe for concurrent use.
type TokenSource interface {
	Token() string
}

// Static wraps a fixed token string.
type Static string

// Token implements TokenSource.
func (s Static) Token() string { return string(s) }

// Env reads the token from an environment variable on every call.
type Env string

// Token implements TokenSource.
func (e Env) Token() string { return os.Getenv(string(e)) }
