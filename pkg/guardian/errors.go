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

package guardian

import "errors"

var (
	errMissingUserID   = errors.New("user_id is required")
	errMissingDeviceID = errors.New("device_id is required")
	errStreamNeedsNATS = errors.New("location stream mode requires cloud nats")
	errInvalidPublicIP = errors.New("invalid geoip public_ip")
	errNoDevice        = errors.New("device record not available")
	errNoCloud         = errors.New("cloud backend not configured")
	errAlreadyStarted  = errors.New("view already started")
)
