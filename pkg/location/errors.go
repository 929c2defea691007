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

package location

import "errors"

var (
	errUnknownMode    = errors.New("unknown location mode")
	errNoChain        = errors.New("poll mode requires a source chain")
	errNoStream       = errors.New("stream mode requires a change stream")
	errWrongMode      = errors.New("location push is only accepted in geolocation mode")
	errNilSample      = errors.New("location sample is required")
	errAlreadyStarted = errors.New("location synchronizer already started")
)
