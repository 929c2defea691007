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

package companion

import "errors"

var (
	errUnexpectedStatusCode = errors.New("unexpected status code")
	errNotSupported         = errors.New("endpoint not supported by device")
	errEmptyFilename        = errors.New("filename is required")
	errDeviceOffline        = errors.New("device reported offline")
	errNoCoordinates        = errors.New("location payload has no coordinates")
	errUnknownRecordMode    = errors.New("unknown record mode")
)
