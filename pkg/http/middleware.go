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

// Package http holds the middleware shared by the guardian HTTP surfaces.
package http

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

const corsMaxAge = 3600

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	corsHeaders = []string{"Content-Type", "Authorization", "X-Requested-With"}
)

// CommonMiddleware wraps next with request logging, panic recovery, proxy
// header handling and CORS, outermost last.
func CommonMiddleware(next http.Handler, cors models.CORSConfig, log logger.Logger) http.Handler {
	h := RequestLogger(next, log)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: log}),
		handlers.PrintRecoveryStack(true),
	)(h)
	h = handlers.ProxyHeaders(h)

	return CORS(cors)(h)
}

// CORS answers preflight requests and reflects allowed origins. An empty
// origin list allows any origin.
func CORS(cfg models.CORSConfig) func(http.Handler) http.Handler {
	opts := []handlers.CORSOption{
		handlers.AllowedMethods(corsMethods),
		handlers.AllowedHeaders(corsHeaders),
		handlers.MaxAge(corsMaxAge),
	}

	if len(cfg.AllowedOrigins) > 0 {
		opts = append(opts, handlers.AllowedOrigins(cfg.AllowedOrigins))
	}

	if cfg.AllowCredentials {
		opts = append(opts, handlers.AllowCredentials())
	}

	return handlers.CORS(opts...)
}

// RequestLogger logs one line per request after it completes.
func RequestLogger(next http.Handler, log logger.Logger) http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, next, func(_ io.Writer, p handlers.LogFormatterParams) {
		event := log.Debug()
		if p.StatusCode >= http.StatusInternalServerError {
			event = log.Warn()
		}

		event.
			Str("method", p.Request.Method).
			Str("path", p.URL.Path).
			Str("remote", p.Request.RemoteAddr).
			Int("status", p.StatusCode).
			Int("size", p.Size).
			Dur("elapsed", time.Since(p.TimeStamp)).
			Msg("HTTP request")
	})
}

type recoveryLogger struct {
	log logger.Logger
}

func (r recoveryLogger) Println(v ...interface{}) {
	r.log.Error().Msg(fmt.Sprint(v...))
}
