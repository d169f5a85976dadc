// Package auth checks voter credentials and maps bearer tokens to the
// identity they were issued for.
package auth

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrInvalidCredentials is returned by Login when the identity is unknown or
// the password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Sessions is an in-memory session table. Tokens are random UUIDs and do not
// expire; they are dropped on Logout or when the process stops.
type Sessions struct {
	sync.RWMutex

	credentials map[string]string
	tokens      map[string]string

	logger *logrus.Entry
}

// NewSessions creates a session table over a login table mapping identities to
// passwords.
func NewSessions(credentials map[string]string, logger *logrus.Entry) *Sessions {
	creds := make(map[string]string, len(credentials))
	for id, pw := range credentials {
		creds[id] = pw
	}
	return &Sessions{
		credentials: creds,
		tokens:      make(map[string]string),
		logger:      logger.WithField("component", "auth"),
	}
}

// Login checks the password of an identity and issues a new token.
func (s *Sessions) Login(identityID, password string) (string, error) {
	s.Lock()
	defer s.Unlock()

	pw, ok := s.credentials[identityID]
	if !ok || pw != password || password == "" {
		s.logger.WithField("voter_id", identityID).Warn("Failed login")
		return "", ErrInvalidCredentials
	}

	token := uuid.New().String()
	s.tokens[token] = identityID

	s.logger.WithField("voter_id", identityID).Debug("Login")

	return token, nil
}

// Resolve returns the identity a token was issued for.
func (s *Sessions) Resolve(token string) (string, bool) {
	s.RLock()
	defer s.RUnlock()
	id, ok := s.tokens[token]
	return id, ok
}

// Logout invalidates a token. Unknown tokens are ignored.
func (s *Sessions) Logout(token string) {
	s.Lock()
	defer s.Unlock()
	delete(s.tokens, token)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.tokens)
}
