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

package capture

import "errors"

var (
	errNoH264Track    = errors.New("stream has no H264 track")
	errNoKeyframe     = errors.New("no keyframe received before stop")
	errMissingURL     = errors.New("rtsp url is required")
	errBufferLimit    = errors.New("capture exceeded its size limit")
	errAlreadyStopped = errors.New("capture already stopped")
)
