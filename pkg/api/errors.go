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

package api

import (
	"errors"
	"net/http"

	"github.com/carverauto/guardian/pkg/blobstore"
	"github.com/carverauto/guardian/pkg/db"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/natsutil"
)

var (
	errAlreadyStarted = errors.New("api server already started")
	errMissingFile    = errors.New("multipart field \"file\" is required")
	errNotVideo       = errors.New("file must be a video")
	errMissingFields  = errors.New("missing required fields")
)

// httpError pairs a message with the status it is served under.
type httpError struct {
	Message string
	Status  int
}

func (h httpError) Error() string {
	return h.Message
}

// statusFor maps the error taxonomy onto HTTP. invalid is the status used
// for ErrInvalidInput, which is 409 for state conflicts and 400 for
// malformed requests.
func statusFor(err error, invalid int) int {
	var he httpError

	switch {
	case errors.As(err, &he):
		return he.Status
	case errors.Is(err, blobstore.ErrNotFound),
		errors.Is(err, natsutil.ErrObjectNotFound),
		errors.Is(err, db.ErrDeviceNotFound),
		errors.Is(err, db.ErrLocationNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidInput):
		return invalid
	case errors.Is(err, models.ErrPersistenceFailure):
		return http.StatusInternalServerError
	case errors.Is(err, models.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor adds the remedy to persistence failures.
func messageFor(err error) string {
	if errors.Is(err, models.ErrPersistenceFailure) {
		return "Recording could not be saved: " + err.Error() + ". Free up local storage and try again."
	}

	return err.Error()
}
