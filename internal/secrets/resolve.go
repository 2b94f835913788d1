// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"strings"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

const keyringScheme = "keyring://"

func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI splits keyring://service/key. The key may contain
// slashes; the service may not.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", sgerr.Errorf(sgerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}
	service, key, ok := strings.Cut(strings.TrimPrefix(uri, keyringScheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", sgerr.Errorf(sgerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// KeyringURI is the inverse of ParseKeyringURI.
func KeyringURI(service, key string) string {
	return keyringScheme + service + "/" + key
}

// Resolve returns value unchanged unless it is a keyring URI, in which case
// it returns the stored secret. An unresolvable URI is an error: the URI
// itself must never be used as a credential.
func Resolve(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}
	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}
	secret, err := store.Get(service, key)
	if err != nil {
		return "", sgerr.Wrapf(err, sgerr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}
