// Package holocrypt serves the HoloCrypt marketing and account front-end:
// landing and about pages, login and registration forms backed by a hosted
// session store, and the dashboard/profile pages that require a session.
//
// Client scopes:
//   - Every browser gets a client scope, identified by an HTTP-only cookie and
//     held by a Registry. A scope owns one Provider (the auth context) and one
//     LoginThrottle. Scopes that stay idle past the configured TTL are closed,
//     which releases their session-change subscription.
//
// Auth context:
//   - Provider is the only writer of AuthState. On Mount it subscribes to the
//     SessionStore and resolves the current session in the background; until
//     then AuthState.Loading is true. Every session event replaces the cached
//     session with the one carried by the event.
//
// Route guard:
//   - ProtectedRoute renders a loading placeholder while the scope is loading,
//     redirects to /login when there is no session, and otherwise hands the
//     request to the guarded handler.
//
// Session stores:
//   - Adapters live under sessionstore/. They classify failures at the
//     boundary into ErrorKind values so views never inspect error text.
package holocrypt
