/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"errors"
	"reflect"
	"strings"
)

var errNotStruct = errors.New("input must be a struct or pointer to struct")

// RedactSensitive converts a config struct to a generic map, omitting every
// field tagged `sensitive:"true"`. The result is safe to log or serve.
func RedactSensitive(input any) (map[string]any, error) {
	if input == nil {
		return map[string]any{}, nil
	}

	switch out := redact(reflect.ValueOf(input)).(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return out, nil
	default:
		return nil, errNotStruct
	}
}

func redact(rv reflect.Value) any {
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}

		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		rt := rv.Type()
		out := make(map[string]any, rt.NumField())

		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() || field.Tag.Get("sensitive") == "true" {
				continue
			}

			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				continue
			}

			if name == "" {
				name = field.Name
			}

			out[name] = redact(rv.Field(i))
		}

		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = redact(rv.Index(i))
		}

		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())

		iter := rv.MapRange()
		for iter.Next() {
			if key, ok := iter.Key().Interface().(string); ok {
				out[key] = redact(iter.Value())
			}
		}

		return out
	default:
		if !rv.IsValid() || !rv.CanInterface() {
			return nil
		}

		return rv.Interface()
	}
}
