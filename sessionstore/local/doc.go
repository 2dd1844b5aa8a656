// Package local is a self-hosted session store backend for development and
// tests. Accounts and refresh tokens live in SQLite through bun; access
// tokens are HS256 JWTs carrying the same claims as the hosted store.
package local
