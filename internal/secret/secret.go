// Package secret stores one credential in the OS keyring under the current user.
package secret

import (
	"errors"
	"fmt"
	"os/user"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service id.
const DefaultService = "chiken"

// Store reads and writes the credential for (service, user).
type Store struct {
	service string
	user    string
}

// Option configures a Store.
type Option func(*Store)

// WithUser overrides the account name; by default the current OS user is used.
func WithUser(name string) Option {
	return func(s *Store) { s.user = name }
}

// New creates a store for service. An empty service means DefaultService.
func New(service string, opts ...Option) (*Store, error) {
	if service == "" {
		service = DefaultService
	}
	s := &Store{service: service}
	for _, o := range opts {
		o(s)
	}
	if s.user == "" {
		u, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("current user: %w", err)
		}
		s.user = u.Username
	}
	return s, nil
}

// Service returns the keyring service id.
func (s *Store) Service() string { return s.service }

// User returns the keyring account name.
func (s *Store) User() string { return s.user }

// StoreSecret saves value, replacing any previous one.
func (s *Store) StoreSecret(value string) error {
	if err := keyring.Set(s.service, s.user, value); err != nil {
		return fmt.Errorf("set secret: %w", err)
	}
	return nil
}

// LoadSecret returns the stored value. When nothing is stored found is false and err is nil.
func (s *Store) LoadSecret() (value string, found bool, err error) {
	v, err := keyring.Get(s.service, s.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get secret: %w", err)
	}
	return v, true, nil
}

// DeleteSecret removes the stored value. Deleting nothing is not an error.
func (s *Store) DeleteSecret() error {
	err := keyring.Delete(s.service, s.user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}
