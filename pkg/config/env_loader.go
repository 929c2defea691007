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

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

var (
	// ErrDstMustBeNonNilPointer indicates that the destination must be a non-nil pointer.
	ErrDstMustBeNonNilPointer = errors.New("dst must be a non-nil pointer")
	// ErrDstMustBePointerToStruct indicates that the destination must be a pointer to a struct.
	ErrDstMustBePointerToStruct = errors.New("dst must be a pointer to a struct")
)

var (
	durationType    = reflect.TypeOf(time.Duration(0))
	modelsDurType   = reflect.TypeOf(models.Duration(0))
	unmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
)

// EnvConfigLoader maps environment variables onto struct fields by their
// json tags. Nested structs join names with underscores, so with prefix
// GUARDIAN_ the field Database.Host reads GUARDIAN_DATABASE_HOST.
//
// A complete JSON document in <prefix>CONFIG_JSON takes precedence over
// individual variables.
type EnvConfigLoader struct {
	logger  logger.Logger
	prefix  string
	lookup  func(string) (string, bool)
	environ func() []string
}

// NewEnvConfigLoader creates an environment loader.
func NewEnvConfigLoader(log logger.Logger, prefix string) *EnvConfigLoader {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &EnvConfigLoader{
		logger:  log,
		prefix:  prefix,
		lookup:  os.LookupEnv,
		environ: os.Environ,
	}
}

// Load implements ConfigLoader.
func (e *EnvConfigLoader) Load(_ context.Context, _ string, dst interface{}) error {
	if raw, ok := e.lookup(e.prefix + "CONFIG_JSON"); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return fmt.Errorf("failed to unmarshal %sCONFIG_JSON: %w", e.prefix, err)
		}

		e.logger.Info().Msgf("Loaded configuration from %sCONFIG_JSON", e.prefix)

		return nil
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrDstMustBeNonNilPointer
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return ErrDstMustBePointerToStruct
	}

	if err := e.loadStruct(v, e.prefix); err != nil {
		return err
	}

	e.logger.Info().Msg("Loaded configuration from environment variables")

	return nil
}

func (e *EnvConfigLoader) loadStruct(v reflect.Value, prefix string) error {
	t := v.Type()

	var errs []error

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		name, _, _ := strings.Cut(fieldType.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}

		envName := prefix + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))

		if err := e.setField(field, envName); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// hasPrefix reports whether any variable starts with prefix.
func (e *EnvConfigLoader) hasPrefix(prefix string) bool {
	for _, kv := range e.environ() {
		if strings.HasPrefix(kv, prefix) {
			return true
		}
	}

	return false
}

func isNested(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t.Kind() == reflect.Struct && !reflect.PointerTo(t).Implements(unmarshalerType)
}

func (e *EnvConfigLoader) setField(field reflect.Value, envName string) error {
	if isNested(field.Type()) {
		// Optional sections stay nil unless something configures them.
		if field.Kind() == reflect.Ptr {
			if field.IsNil() {
				if !e.hasPrefix(envName + "_") {
					return nil
				}

				field.Set(reflect.New(field.Type().Elem()))
			}

			field = field.Elem()
		}

		return e.loadStruct(field, envName+"_")
	}

	raw, ok := e.lookup(envName)
	if !ok || raw == "" {
		return nil
	}

	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}

		field = field.Elem()
	}

	if err := setScalar(field, raw); err != nil {
		return fmt.Errorf("%s: %w", envName, err)
	}

	e.logger.Debug().Str("env", envName).Msg("Loaded value from environment variable")

	return nil
}

func setScalar(field reflect.Value, raw string) error {
	switch field.Type() {
	case durationType, modelsDurType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		field.SetInt(int64(d))

		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}

		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}

		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer: %w", err)
		}

		field.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}

		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String && !strings.HasPrefix(strings.TrimSpace(raw), "[") {
			parts := strings.Split(raw, ",")
			slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))

			for i, p := range parts {
				slice.Index(i).SetString(strings.TrimSpace(p))
			}

			field.Set(slice)

			return nil
		}

		return unmarshalInto(field, raw)
	default:
		return unmarshalInto(field, raw)
	}

	return nil
}

func unmarshalInto(field reflect.Value, raw string) error {
	if err := json.Unmarshal([]byte(raw), field.Addr().Interface()); err != nil {
		return fmt.Errorf("unsupported value for %s: %w", field.Kind(), err)
	}

	return nil
}
