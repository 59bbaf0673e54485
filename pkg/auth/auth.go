// Package auth decides who may operate the gallery synchronization.
package auth

// Identity is who sends a request.
type Identity struct {
	// Subject is the user id, taken from "sub" claim of the token.
	Subject string
}

// Authorizer tells whether an identity has the admin capability.
//
// Only admins may trigger reconciliation and tag weeks.
type Authorizer interface {
	IsAdmin(Identity) bool
}

// Subjects is an Authorizer which admits listed subjects as admins.
type Subjects map[string]struct{}

var _ Authorizer = Subjects{}

func NewSubjects(subjects ...string) Subjects {
	s := make(Subjects, len(subjects))
	for _, sub := range subjects {
		s[sub] = struct{}{}
	}
	return s
}

func (s Subjects) IsAdmin(id Identity) bool {
	if id.Subject == "" {
		return false
	}
	_, ok := s[id.Subject]
	return ok
}
