// Package sessionstore holds the plumbing shared by the session store
// adapters: the per client Store built by a Manager over a Backend,
// ordered event fan-out, token storage and access token verification.
package sessionstore
