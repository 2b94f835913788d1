// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"errors"

	"github.com/zalando/go-keyring"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// KeyringStore uses the OS keyring: Keychain on macOS, the secret service
// over D-Bus on Linux and the Credential Manager on Windows.
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

var _ Store = (*KeyringStore)(nil)

func (s *KeyringStore) Set(service, key, value string) error {
	if err := checkName(service, key); err != nil {
		return err
	}
	if value == "" {
		return sgerr.New(sgerr.CodeSecretInvalidInput, "secret value must not be empty")
	}
	if err := keyring.Set(service, key, value); err != nil {
		return sgerr.Wrapf(err, sgerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return nil
}

func (s *KeyringStore) Get(service, key string) (string, error) {
	if err := checkName(service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", sgerr.Errorf(sgerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return "", sgerr.Wrapf(err, sgerr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkName(service, key); err != nil {
		return err
	}
	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return sgerr.Errorf(sgerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return sgerr.Wrapf(err, sgerr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}
	return nil
}

func checkName(service, key string) error {
	if service == "" {
		return sgerr.New(sgerr.CodeSecretInvalidInput, "secret service must not be empty")
	}
	if key == "" {
		return sgerr.New(sgerr.CodeSecretInvalidInput, "secret key must not be empty")
	}
	return nil
}
