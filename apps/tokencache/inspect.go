// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package tokencache

import (
	"sort"

	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/json"
	"github.com/AzureAD/microsoft-authentication-cache-for-go/apps/internal/storage"
)

// MarshalEntry returns the JSON of a KVStore value as it appears in the serialized cache.
func MarshalEntry(v any) ([]byte, error) {
	return json.Marshal(v)
}

// SectionCount describes one recognized section of the cache.
type SectionCount struct {
	// Name is the section's name in the serialized cache, such as "AccessToken".
	Name string
	// Entries counts every entry, including Unrecognized ones.
	Entries int
	// Unrecognized counts entries kept as they were read because they aren't valid
	// entities of the section's kind.
	Unrecognized int
	// ForeignKeys counts entities stored under a key that doesn't decode to the entity's own
	// fields, such as keys written with another SDK's key rules.
	ForeignKeys int
}

// Sections reports the recognized sections of the cache and the names of the top level
// sections it doesn't recognize, in sorted order. Hooks are not run.
func (t *TokenCache) Sections() ([]SectionCount, []string) {
	passthrough := t.manager.Passthrough()
	counts := make([]SectionCount, 0, len(storage.Sections))
	for _, sec := range storage.Sections {
		counts = append(counts, SectionCount{
			Name:         sec,
			Entries:      t.manager.SectionLen(sec),
			Unrecognized: len(passthrough[sec]),
			ForeignKeys:  len(t.manager.ForeignKeys(sec)),
		})
	}

	unknown := t.manager.UnknownSections()
	names := make([]string, 0, len(unknown))
	for k := range unknown {
		names = append(names, k)
	}
	sort.Strings(names)
	return counts, names
}
