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

import "errors"

// Error taxonomy shared by every component. Callers wrap these with %w and
// test with errors.Is.
var (
	// ErrUnavailable means a source was unreachable or timed out. It drives
	// fallback and is never surfaced to a user as a fault.
	ErrUnavailable = errors.New("source unavailable")
	// ErrInvalidInput means a request to the orchestrator was rejected synchronously.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPersistenceFailure means captured media could not be saved.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrConfiguration means a query has no usable source configured.
	ErrConfiguration = errors.New("configuration error")
)

var (
	errInvalidDuration    = errors.New("invalid duration")
	errMissingURL         = errors.New("video record with remote origin requires a url")
	errUnexpectedURL      = errors.New("local video record must not carry a url")
	errMissingLocalID     = errors.New("local video record requires a local_id")
	errUnexpectedLocalID  = errors.New("remote video record must not carry a local_id")
	errUnknownOrigin      = errors.New("unknown video origin")
	errMissingFilename    = errors.New("video record requires a filename")
	errMissingEndpoint    = errors.New("device has no ip_address configured")
	errInvalidCoordinates = errors.New("coordinates out of range")
)
