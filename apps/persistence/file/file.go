// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package file stores the token cache in a file. Each Load and each Save holds an advisory
// lock on a companion lock file, and writes replace the file atomically. The lock is not held
// between the Load before a cache access and the Save after it, so when two processes change
// the cache at the same time the last Save wins.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/persistence"
	"github.com/cenkalti/backoff/v5"
)

// lockSuffix is appended to the cache path to name the lock file.
const lockSuffix = ".lockfile"

// errLocked is returned by tryLock when another process holds the lock.
var errLocked = errors.New("lock is held by another process")

// Storage is a persistence.Persistence backed by a file.
type Storage struct {
	path string
	perm fs.FileMode
	// maxWait bounds how long Load and Save wait for the lock.
	maxWait time.Duration
}

var _ persistence.Persistence = (*Storage)(nil)

// Option is an optional argument to New.
type Option func(s *Storage)

// WithPermissions sets the mode of a created cache file. The default is 0600.
func WithPermissions(perm fs.FileMode) Option {
	return func(s *Storage) {
		s.perm = perm
	}
}

// WithLockTimeout sets how long to wait for another process to release the lock. The default
// is 10 seconds. The context's deadline also applies.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Storage) {
		s.maxWait = d
	}
}

// New returns a Storage for the file at path. The directory is created if needed.
func New(path string, options ...Option) (*Storage, error) {
	if path == "" {
		return nil, errors.New("file path can't be empty")
	}
	s := &Storage{path: path, perm: 0600, maxWait: 10 * time.Second}
	for _, o := range options {
		o(s)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("couldn't create the cache directory: %w", err)
	}
	return s, nil
}

// Path returns the cache file's path.
func (s *Storage) Path() string {
	return s.path
}

// Load implements persistence.Persistence. A missing file is an empty cache.
func (s *Storage) Load(ctx context.Context) ([]byte, error) {
	var b []byte
	err := s.locked(ctx, func() error {
		var err error
		b, err = os.ReadFile(s.path)
		if errors.Is(err, fs.ErrNotExist) {
			b, err = nil, nil
		}
		return err
	})
	return b, err
}

// Save implements persistence.Persistence.
func (s *Storage) Save(ctx context.Context, b []byte) error {
	return s.locked(ctx, func() error {
		return s.write(b)
	})
}

// write replaces the cache file by renaming a complete temporary file over it, so readers
// never see a partial write.
func (s *Storage) write(b []byte) error {
	f, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, s.perm); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// locked runs fn while holding the lock file, retrying with backoff while another
// process holds it.
func (s *Storage) locked(ctx context.Context, fn func() error) error {
	lf, err := os.OpenFile(s.path+lockSuffix, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("couldn't open the lock file: %w", err)
	}
	defer lf.Close()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := tryLock(lf)
		if err != nil && !errors.Is(err, errLocked) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(s.maxWait))
	if err != nil {
		return fmt.Errorf("couldn't lock %s: %w", lf.Name(), err)
	}
	defer unlock(lf)

	return fn()
}
