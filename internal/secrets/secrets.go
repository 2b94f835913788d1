// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps bearer tokens and other credentials out of config
// files. A config value of the form keyring://service/key is replaced at
// startup by the secret stored under that service and key.
package secrets

// Store saves and fetches secrets by service and key.
type Store interface {
	Set(service, key, value string) error
	// Get returns an error with CodeSecretNotFound when nothing is stored.
	Get(service, key string) (string, error)
	Delete(service, key string) error
}
