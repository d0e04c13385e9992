// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package json provides functions for marshalling and unmarshalling types to JSON. These functions are
meant to be utilized inside of structs that implement json.Unmarshaler and json.Marshaler interfaces.
This package provides the additional functionality of writing fields that are not in the struct when
marshalling and reading them back when unmarshalling. This allows us to read in a cache entry written
by a newer (or other language) MSAL, change it, and write it back out without losing data.

To use, a struct must have a field named "AdditionalFields" of type map[string]interface{}. Values
put there by Unmarshal are json.RawMessage, which Marshal writes back out verbatim.

A field tagged with omitempty whose value was present in the input but decoded to its zero value is
also kept in AdditionalFields. Marshal omits the zero field and writes the original value instead,
so "name": "" survives a round trip.

Nested structs (or pointers to them) that have an AdditionalFields field are handled recursively.
Any type implementing json.Marshaler or json.Unmarshaler is handed to encoding/json. Embedded
structs are not supported.
*/
package json

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

const addField = "AdditionalFields"

var (
	marshalerType   = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
	mapStrInterType = reflect.TypeOf(map[string]interface{}{})
)

// Marshal is used to marshal a type into its JSON representation. It
// wraps the stdlib calls in order to marshal a struct or *struct so
// that a field called "AdditionalFields" of type map[string]interface{}
// with "-" used inside struct tag `json:"-"` can be marshalled as if
// they were fields within the struct.
func Marshal(i interface{}) ([]byte, error) {
	v := reflect.ValueOf(i)
	if !v.IsValid() {
		return []byte("null"), nil
	}
	if v.Type().Implements(marshalerType) {
		return json.Marshal(i)
	}
	v = deref(v)
	if !v.IsValid() {
		return []byte("null"), nil
	}
	if v.Kind() != reflect.Struct {
		return json.Marshal(i)
	}
	return marshalStruct(v)
}

// Unmarshal unmarshals a []byte representing JSON into i, which must be a *struct. In addition, if the struct has
// a field called AdditionalFields of type map[string]interface{}, JSON data representing fields not in the struct
// will be written as key/value pairs to AdditionalFields.
func Unmarshal(b []byte, i interface{}) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}

	v := reflect.ValueOf(i)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("Unmarshal() received type %T, which is not a *struct", i)
	}
	if v.Type().Implements(unmarshalerType) {
		return json.Unmarshal(b, i)
	}
	if v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("Unmarshal() received type %T, which is not a *struct", i)
	}
	return unmarshalStruct(b, v.Elem())
}

// MarshalRaw marshals i into a json.RawMessage. If I cannot be marshalled,
// this will panic. This is exposed to help test AdditionalField values
// which are stored as json.RawMessage.
func MarshalRaw(i interface{}) json.RawMessage {
	b, err := json.Marshal(i)
	if err != nil {
		panic(err)
	}
	return json.RawMessage(b)
}

// field describes one exported struct field that takes part in marshalling.
type field struct {
	index     int
	name      string
	omitEmpty bool
}

// fields returns the JSON fields of struct type t and the index of its AdditionalFields
// field, which is -1 if there isn't one.
func fields(t reflect.Type) ([]field, int, error) {
	add := -1
	var fs []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		if sf.Name == addField {
			if sf.Type != mapStrInterType {
				return nil, -1, fmt.Errorf("type %s has field 'AdditionalFields' that is not a map[string]interface{}", t)
			}
			add = i
			continue
		}
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = sf.Name
		}
		fs = append(fs, field{index: i, name: name, omitEmpty: strings.Contains(opts, "omitempty")})
	}
	return fs, add, nil
}

// hasAdditionalFields reports if t is a struct (or *struct) that this package should
// walk rather than handing it to encoding/json.
func hasAdditionalFields(t reflect.Type) bool {
	if t.Implements(marshalerType) || reflect.PointerTo(t).Implements(unmarshalerType) {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	_, ok := t.FieldByName(addField)
	return ok
}

func marshalStruct(v reflect.Value) ([]byte, error) {
	fs, add, err := fields(v.Type())
	if err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(fs))
	for _, f := range fs {
		fv := v.Field(f.index)
		if f.omitEmpty && isZero(fv) {
			continue
		}
		b, err := marshalValue(fv)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.name, err)
		}
		out[f.name] = b
	}

	if add >= 0 {
		for k, val := range v.Field(add).Interface().(map[string]interface{}) {
			if _, ok := out[k]; ok {
				continue
			}
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("AdditionalFields[%s]: %w", k, err)
			}
			out[k] = b
		}
	}
	return json.Marshal(out)
}

func marshalValue(v reflect.Value) ([]byte, error) {
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return []byte("null"), nil
	}
	if hasAdditionalFields(v.Type()) {
		return marshalStruct(deref(v))
	}
	return json.Marshal(v.Interface())
}

func unmarshalStruct(b []byte, v reflect.Value) error {
	fs, add, err := fields(v.Type())
	if err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	byName := make(map[string]field, len(fs))
	for _, f := range fs {
		byName[f.name] = f
	}

	var extra map[string]interface{}
	keep := func(k string, m json.RawMessage) {
		if add < 0 {
			return
		}
		if extra == nil {
			extra = map[string]interface{}{}
		}
		extra[k] = m
	}

	for k, m := range raw {
		f, ok := byName[k]
		if !ok {
			keep(k, m)
			continue
		}
		fv := v.Field(f.index)
		if err := unmarshalValue(m, fv); err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
		if f.omitEmpty && isZero(fv) {
			keep(k, m)
		}
	}

	if add >= 0 && extra != nil {
		v.Field(add).Set(reflect.ValueOf(extra))
	}
	return nil
}

func unmarshalValue(m json.RawMessage, v reflect.Value) error {
	if !hasAdditionalFields(v.Type()) {
		return json.Unmarshal(m, v.Addr().Interface())
	}
	if bytes.Equal(bytes.TrimSpace(m), []byte("null")) {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return unmarshalStruct(m, v)
}

type zeroer interface {
	IsZero() bool
}

func isZero(v reflect.Value) bool {
	if z, ok := v.Interface().(zeroer); ok {
		if v.Kind() == reflect.Ptr && v.IsNil() {
			return true
		}
		return z.IsZero()
	}
	return v.IsZero()
}

func deref(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// ErrNotObject is returned by Object when the input is valid JSON but not a JSON object.
var ErrNotObject = errors.New("json value is not an object")

// Object decodes b into its members without interpreting them. It is used to walk
// documents whose shape is only partly known.
func Object(b []byte) (map[string]json.RawMessage, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		if json.Valid(b) {
			return nil, ErrNotObject
		}
		return nil, errors.New("invalid json")
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	return m, nil
}

// IsString reports if m holds a JSON string.
func IsString(m json.RawMessage) bool {
	m = bytes.TrimSpace(m)
	return len(m) >= 2 && m[0] == '"'
}

// Equal reports if a and b hold the same JSON value. Object key order and
// insignificant whitespace are ignored.
func Equal(a, b []byte) bool {
	var x, y interface{}
	if err := json.Unmarshal(a, &x); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &y); err != nil {
		return false
	}
	return reflect.DeepEqual(x, y)
}
