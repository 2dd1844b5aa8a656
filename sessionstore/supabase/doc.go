// Package supabase is the session store adapter for a hosted GoTrue
// (Supabase Auth) endpoint. Client speaks the REST API directly; Factory
// wraps it in a sessionstore.Manager so each client scope keeps its
// session in a sessionstore.TokenStorage.
package supabase
