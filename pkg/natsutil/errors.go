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

package natsutil

import "errors"

var (
	// ErrCAParsingFailed is returned when CA certificate cannot be parsed
	ErrCAParsingFailed = errors.New("failed to parse CA certificate")
	// ErrObjectNotFound is returned when a recording is missing from the object store.
	ErrObjectNotFound = errors.New("object not found")

	errTLSIncomplete   = errors.New("tls requires cert_file, key_file and ca_file")
	errEmptyObjectName = errors.New("object name is required")
	errNilChange       = errors.New("change event is nil")
)
