// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package time provides for custom types to translate time from JSON and other formats
// into time.Time objects.
package time

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unix provides a type that can marshal and unmarshal a string representation
// of the unix epoch into a time.Time object. The cache schema shared with other
// MSAL implementations stores these as JSON strings ("1700000000").
type Unix struct {
	T time.Time
}

// NewUnix returns t truncated to whole seconds in UTC.
func NewUnix(t time.Time) Unix {
	if t.IsZero() {
		return Unix{}
	}
	return Unix{T: time.Unix(t.Unix(), 0).UTC()}
}

// IsZero reports if the time is unset.
func (u Unix) IsZero() bool {
	return u.T.IsZero()
}

// MarshalJSON implements encoding/json.MarshalJSON().
func (u Unix) MarshalJSON() ([]byte, error) {
	if u.T.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(fmt.Sprintf("%q", strconv.FormatInt(u.T.Unix(), 10))), nil
}

// UnmarshalJSON implements encoding/json.UnmarshalJSON(). Both "1700000000" and
// 1700000000 are accepted. An empty string is the zero time.
func (u *Unix) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		u.T = time.Time{}
		return nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("unix time(%s) could not be converted from string to int: %w", string(b), err)
	}
	u.T = time.Unix(i, 0).UTC()
	return nil
}
