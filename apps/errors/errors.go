// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package errors holds the error types returned by the token cache.
package errors

import (
	"errors"
	"fmt"

	"github.com/kylelemons/godebug/pretty"
)

var prettyConf = &pretty.Config{IncludeUnexported: false, SkipZeroFields: true, TrackCycles: true}

type verboser interface {
	Verbose() string
}

// Verbose prints the most verbose error that the error message has.
func Verbose(err error) string {
	var v verboser
	if errors.As(err, &v) {
		return v.Verbose()
	}
	return err.Error()
}

// New is equivalent to errors.New().
func New(text string) error {
	return errors.New(text)
}

// Phase names the cache access hook that failed.
type Phase string

const (
	// BeforeCacheAccess is the hook that runs before the cache is read or written.
	BeforeCacheAccess Phase = "BeforeCacheAccess"
	// AfterCacheAccess is the hook that runs after an operation changed the cache.
	AfterCacheAccess Phase = "AfterCacheAccess"
)

// CacheAccessErr is returned when a cache access hook returns an error. Changes the
// operation made to the in-memory cache before the failure are not undone. Implements error.
type CacheAccessErr struct {
	// Phase is the hook that failed.
	Phase Phase
	// Operation is the TokenCache method that ran the hook.
	Operation string
	// HasChanged is the value the hook was given.
	HasChanged bool
	// Err is the error returned by the hook.
	Err error
}

// Error implements error.Error().
func (e *CacheAccessErr) Error() string {
	return fmt.Sprintf("%s during %s: %s", e.Phase, e.Operation, e.Err)
}

// Unwrap returns the hook's error.
func (e *CacheAccessErr) Unwrap() error {
	return e.Err
}

// Verbose prints a verbose error message with the state the hook was called with.
func (e *CacheAccessErr) Verbose() string {
	state := struct {
		Phase      Phase
		Operation  string
		HasChanged bool
	}{e.Phase, e.Operation, e.HasChanged}
	return fmt.Sprintf("%s:\n\tHook:\n%s", e.Err, prettyConf.Sprint(state))
}
