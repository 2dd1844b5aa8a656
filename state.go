package holocrypt

// AuthState is the snapshot consumers read from a Provider
type AuthState struct {
	Session *Session
	Loading bool
}

// User returns the signed in user or nil
func (s AuthState) User() *User {
	return s.Session.GetUser()
}

// Authenticated reports a resolved state holding a session
func (s AuthState) Authenticated() bool {
	return !s.Loading && s.Session != nil
}
