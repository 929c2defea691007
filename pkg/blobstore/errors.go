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

package blobstore

import "errors"

var (
	// ErrNotFound is returned when a blob id has no stored data.
	ErrNotFound = errors.New("blob not found")

	errInvalidID        = errors.New("invalid blob id")
	errEmptyBlob        = errors.New("blob is empty")
	errInsufficientDisk = errors.New("insufficient free space")
	errChecksumMismatch = errors.New("blob checksum or size mismatch")
	errRootRequired     = errors.New("storage root is required")
	errInvalidKey       = errors.New("invalid state key")
)
