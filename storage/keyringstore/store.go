// Package keyringstore persists the credential file in the platform
// keychain via 99designs/keyring.
package keyringstore

import (
	"context"
	"errors"

	"github.com/99designs/keyring"

	"github.com/davewd/firebase-data-gui/credential"
)

const (
	defaultService = "firebase-data-gui"
	itemKey        = "service-account"
)

// Store is a credential.Store backed by the OS keychain.
type Store struct {
	ring keyring.Keyring
}

var _ credential.Store = (*Store)(nil)

// Open opens the keychain under the given service name (empty uses the
// default).
func Open(service string) (*Store, error) {
	if service == "" {
		service = defaultService
	}
	ring, err := keyring.Open(keyring.Config{ServiceName: service})
	if err != nil {
		return nil, err
	}
	return &Store{ring: ring}, nil
}

func (s *Store) Save(ctx context.Context, data []byte) error {
	_ = ctx
	return s.ring.Set(keyring.Item{
		Key:   itemKey,
		Label: "Firebase service account",
		Data:  data,
	})
}

func (s *Store) Load(ctx context.Context) ([]byte, bool, error) {
	_ = ctx
	item, err := s.ring.Get(itemKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Data, true, nil
}

func (s *Store) Clear(ctx context.Context) error {
	_ = ctx
	if err := s.ring.Remove(itemKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}
