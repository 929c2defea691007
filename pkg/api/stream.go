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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamPingInterval = 30 * time.Second
	streamReadDeadline = 90 * time.Second
	streamWriteTimeout = 10 * time.Second
)

// StreamMessage is one frame on /api/stream.
type StreamMessage struct {
	Type      string    `json:"type"` // "data", "error", "ping"
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// checkWebSocketOrigin accepts requests without an Origin header and
// origins listed in the CORS config. An empty list accepts every origin.
func (s *Server) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.CORS.AllowedOrigins) == 0 {
		return true
	}

	for _, allowed := range s.cfg.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	s.logger.Warn().Str("origin", origin).Msg("WebSocket origin rejected")

	return false
}

// @Summary Stream snapshots
// @Description Upgrades to a WebSocket and pushes the full snapshot on connect and on every change.
// @Tags Guardian
// @Router /api/stream [get]
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkWebSocketOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("Failed to upgrade to WebSocket")

		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	changes, unsubscribe := s.view.Subscribe()
	defer unsubscribe()

	go s.handleClientMessages(ctx, conn, cancel)

	s.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("Stream client connected")

	if err := s.streamSnapshots(ctx, conn, changes); err != nil {
		s.logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Stream ended")
	}
}

func (s *Server) streamSnapshots(ctx context.Context, conn *websocket.Conn, changes <-chan struct{}) error {
	if err := sendDataMessage(conn, s.view.Snapshot()); err != nil {
		return err
	}

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				_ = sendErrorMessage(conn, "guardian stopped")
				return nil
			}

			if err := sendDataMessage(conn, s.view.Snapshot()); err != nil {
				return err
			}
		case <-ticker.C:
			if err := sendPingMessage(conn); err != nil {
				return err
			}
		}
	}
}

// handleClientMessages drains the client side so that close frames and
// disconnects cancel the stream.
func (s *Server) handleClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	for ctx.Err() == nil {
		if err := conn.SetReadDeadline(time.Now().Add(streamReadDeadline)); err != nil {
			return
		}

		if _, _, err := conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("client_addr", conn.RemoteAddr().String()).Msg("Unexpected WebSocket close")
			} else if errors.As(err, &closeErr) {
				s.logger.Debug().Int("close_code", closeErr.Code).Msg("WebSocket closed")
			}

			return
		}
	}
}

func writeFrame(conn *websocket.Conn, msg *StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}

	return conn.WriteJSON(msg)
}

func sendDataMessage(conn *websocket.Conn, data any) error {
	if err := writeFrame(conn, &StreamMessage{Type: "data", Data: data, Timestamp: time.Now()}); err != nil {
		return fmt.Errorf("failed to write JSON message: %w", err)
	}

	return nil
}

func sendErrorMessage(conn *websocket.Conn, errMsg string) error {
	if err := writeFrame(conn, &StreamMessage{Type: "error", Error: errMsg, Timestamp: time.Now()}); err != nil {
		return fmt.Errorf("failed to write error message: %w", err)
	}

	return nil
}

func sendPingMessage(conn *websocket.Conn) error {
	if err := writeFrame(conn, &StreamMessage{Type: "ping", Timestamp: time.Now()}); err != nil {
		return fmt.Errorf("failed to write ping message: %w", err)
	}

	return nil
}
