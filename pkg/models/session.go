package models

// Session is the state reported by the external session/identity provider.
// While IsLoading is true the remaining fields are not yet meaningful.
type Session struct {
	User            User
	IsAuthenticated bool
	IsLoading       bool
}

// LoadingSession returns a session that is still resolving.
func LoadingSession() Session {
	return Session{IsLoading: true}
}

// AnonymousSession returns a resolved session with no signed-in user.
func AnonymousSession() Session {
	return Session{}
}

// AuthenticatedSession returns a resolved session for u.
func AuthenticatedSession(u User) Session {
	return Session{User: u, IsAuthenticated: u != nil}
}
