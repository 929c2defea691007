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

// Package capture records from an RTSP camera on this host. It is the local
// fallback target of the recording orchestrator.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v5"
	"github.com/bluenviron/gortsplib/v5/pkg/base"
	"github.com/bluenviron/gortsplib/v5/pkg/format"
	"github.com/bluenviron/gortsplib/v5/pkg/format/rtph264"
	"github.com/pion/rtp"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/recording"
)

const defaultMaxBytes = 256 << 20

// Config points the recorder at a camera.
type Config struct {
	URL string `json:"url"`
	// MaxBytes caps one capture. Zero uses 256 MiB.
	MaxBytes int `json:"max_bytes,omitempty"`
	// ReadTimeout bounds RTSP reads.
	ReadTimeout models.Duration `json:"read_timeout,omitempty"`
}

// Validate fills defaults.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: %w", models.ErrConfiguration, errMissingURL)
	}

	if c.MaxBytes <= 0 {
		c.MaxBytes = defaultMaxBytes
	}

	c.ReadTimeout = c.ReadTimeout.OrDefault(10 * time.Second)

	return nil
}

// RTSPRecorder implements recording.LocalCapture.
type RTSPRecorder struct {
	cfg    Config
	url    *base.URL
	logger logger.Logger
}

var _ recording.LocalCapture = (*RTSPRecorder)(nil)

// NewRTSPRecorder parses the camera URL.
func NewRTSPRecorder(cfg Config, log logger.Logger) (*RTSPRecorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	u, err := base.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid rtsp url: %w", models.ErrConfiguration, err)
	}

	return &RTSPRecorder{cfg: cfg, url: u, logger: log}, nil
}

// Start connects to the camera and begins buffering its H264 track.
func (r *RTSPRecorder) Start(ctx context.Context) (recording.Capture, error) {
	client := &gortsplib.Client{
		Scheme:      r.url.Scheme,
		Host:        r.url.Host,
		ReadTimeout: r.cfg.ReadTimeout.Std(),
	}

	if err := client.Start(); err != nil {
		return nil, fmt.Errorf("%w: rtsp connect: %w", models.ErrUnavailable, err)
	}

	// Close the client if ctx ends before the handshake completes.
	stopWatch := context.AfterFunc(ctx, client.Close)

	s, err := r.setup(client)
	if !stopWatch() {
		// ctx ended and the client is already closed.
		return nil, fmt.Errorf("%w: rtsp handshake: %w", models.ErrUnavailable, ctx.Err())
	}

	if err != nil {
		client.Close()
		return nil, err
	}

	r.logger.Info().Str("url", r.url.Host).Msg("Local capture started")

	return s, nil
}

func (r *RTSPRecorder) setup(client *gortsplib.Client) (*rtspSession, error) {
	desc, _, err := client.Describe(r.url)
	if err != nil {
		return nil, fmt.Errorf("%w: rtsp describe: %w", models.ErrUnavailable, err)
	}

	var forma *format.H264

	medi := desc.FindFormat(&forma)
	if medi == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUnavailable, errNoH264Track)
	}

	dec, err := forma.CreateDecoder()
	if err != nil {
		return nil, fmt.Errorf("h264 decoder: %w", err)
	}

	if _, err := client.Setup(desc.BaseURL, medi, 0, 0); err != nil {
		return nil, fmt.Errorf("%w: rtsp setup: %w", models.ErrUnavailable, err)
	}

	s := &rtspSession{
		client: client,
		buf:    newAUBuffer(r.cfg.MaxBytes),
		logger: r.logger,
	}

	s.buf.SetParams(forma.SPS, forma.PPS)

	client.OnPacketRTP(medi, forma, func(pkt *rtp.Packet) {
		s.handlePacket(dec, pkt)
	})

	if _, err := client.Play(nil); err != nil {
		return nil, fmt.Errorf("%w: rtsp play: %w", models.ErrUnavailable, err)
	}

	return s, nil
}

type rtspSession struct {
	client *gortsplib.Client
	buf    *auBuffer
	logger logger.Logger

	stopOnce sync.Once
}

func (s *rtspSession) handlePacket(dec *rtph264.Decoder, pkt *rtp.Packet) {
	au, err := dec.Decode(pkt)
	if err != nil {
		if !errors.Is(err, rtph264.ErrMorePacketsNeeded) && !errors.Is(err, rtph264.ErrNonStartingPacketAndNoPrevious) {
			s.logger.Debug().Err(err).Msg("Dropping undecodable RTP packet")
		}

		return
	}

	if err := s.buf.Write(au); err != nil && errors.Is(err, errBufferLimit) {
		s.logger.Warn().Msg("Local capture reached its size limit, further frames dropped")
	}
}

// Stop closes the RTSP session and returns the buffered stream.
func (s *rtspSession) Stop(context.Context) (*recording.Media, error) {
	first := false

	s.stopOnce.Do(func() {
		first = true
		s.client.Close()
	})

	if !first {
		return nil, errAlreadyStopped
	}

	data, units := s.buf.Bytes()
	if units == 0 {
		return nil, errNoKeyframe
	}

	return &recording.Media{Data: data, ContentType: ContentType}, nil
}
