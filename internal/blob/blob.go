// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package blob stores large property payloads as files.
package blob

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// Store keeps one file per key under a root directory. Keys are slash
// separated relative paths.
type Store struct {
	fs   afero.Fs
	root string
}

func New(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// NewOS stores blobs on the local file system under dir.
func NewOS(dir string) *Store {
	return New(afero.NewOsFs(), dir)
}

// NewMemory stores blobs in memory.
func NewMemory() *Store {
	return New(afero.NewMemMapFs(), "/blobs")
}

// Put writes r under key, replacing any previous content, and returns the
// number of bytes written.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	target, err := s.path(key)
	if err != nil {
		return 0, err
	}
	if err := s.fs.MkdirAll(path.Dir(target), 0o750); err != nil {
		return 0, sgerr.Wrap(err, sgerr.CodeBlobWriteFailure, "creating blob directory", sgerr.Field("key", key))
	}

	tmp := target + ".tmp-" + randomSuffix()
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, sgerr.Wrap(err, sgerr.CodeBlobWriteFailure, "creating blob", sgerr.Field("key", key))
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(tmp)
		return 0, sgerr.Wrap(err, sgerr.CodeBlobWriteFailure, "writing blob", sgerr.Field("key", key))
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return 0, sgerr.Wrap(err, sgerr.CodeBlobWriteFailure, "committing blob", sgerr.Field("key", key))
	}
	return n, nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil, sgerr.New(sgerr.CodeBlobObjectNotFound, "blob not found", sgerr.Field("key", key))
	}
	if err != nil {
		return nil, sgerr.Wrap(err, sgerr.CodeBlobReadFailure, "opening blob", sgerr.Field("key", key))
	}
	return f, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return sgerr.Wrap(err, sgerr.CodeBlobWriteFailure, "deleting blob", sgerr.Field("key", key))
	}
	return nil
}

func (s *Store) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, "..") {
		return "", sgerr.New(sgerr.CodeBlobWriteFailure, "invalid blob key", sgerr.Field("key", key))
	}
	return path.Join(s.root, clean), nil
}

func randomSuffix() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
