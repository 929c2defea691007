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

// Package transcode converts recordings to MP4 with ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

// MP4 is the output content type.
const MP4 = "video/mp4"

const maxStderr = 4096

var errEmptyInput = errors.New("nothing to transcode")

// Config locates ffmpeg.
type Config struct {
	Binary  string          `json:"binary,omitempty"`
	Timeout models.Duration `json:"timeout,omitempty"`
}

// Validate fills defaults.
func (c *Config) Validate() error {
	if c.Binary == "" {
		c.Binary = "ffmpeg"
	}

	c.Timeout = c.Timeout.OrDefault(2 * time.Minute)

	return nil
}

type runFunc func(ctx context.Context, binary string, args []string, stdin io.Reader, stdout, stderr io.Writer) error

// FFmpeg pipes media through an ffmpeg process.
type FFmpeg struct {
	cfg    Config
	logger logger.Logger
	run    runFunc
}

// New returns a transcoder. The binary is resolved on first use.
func New(cfg Config, log logger.Logger) *FFmpeg {
	_ = cfg.Validate()

	return &FFmpeg{cfg: cfg, logger: log, run: execRun}
}

func execRun(ctx context.Context, binary string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	return cmd.Run()
}

// Available reports whether the ffmpeg binary can be found.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.cfg.Binary)
	return err == nil
}

// Transcode converts data to fragmented MP4. MP4 input is returned unchanged.
func (f *FFmpeg) Transcode(ctx context.Context, data []byte, contentType string) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: %w", models.ErrInvalidInput, errEmptyInput)
	}

	if mediaType(contentType) == MP4 {
		return data, MP4, nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout.Std())
	defer cancel()

	var stdout, stderr bytes.Buffer

	args := buildArgs(contentType)
	start := time.Now()

	if err := f.run(ctx, f.cfg.Binary, args, bytes.NewReader(data), &stdout, &stderr); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[len(msg)-maxStderr:]
		}

		return nil, "", fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
	}

	f.logger.Debug().
		Str("input", contentType).
		Int("in_bytes", len(data)).
		Int("out_bytes", stdout.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Transcoded recording")

	return stdout.Bytes(), MP4, nil
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// buildArgs reads stdin and writes fragmented MP4 to stdout, which needs
// no seekable output.
func buildArgs(contentType string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	if mediaType(contentType) == "video/h264" {
		args = append(args, "-f", "h264")
	}

	return append(args,
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4",
		"pipe:1",
	)
}
