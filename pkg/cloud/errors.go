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

package cloud

import "errors"

var (
	errNoObjectStore  = errors.New("cloud object store is not configured")
	errNoChangeFeed   = errors.New("cloud change feed is not configured")
	errNoLocationFeed = errors.New("cloud location stream is not configured")
	errNotVideo       = errors.New("upload must have a video/* content type")
	errEmptyUpload    = errors.New("upload body is required")
)
