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

package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

// StartRequest carries the user's start parameters.
type StartRequest struct {
	DeviceID      string
	DurationLimit time.Duration
}

// Orchestrator owns the single recording session of one device.
type Orchestrator struct {
	cfg        Config
	companion  CompanionRecorder
	local      LocalCapture
	blobs      BlobSaver
	transcoder Transcoder
	logger     logger.Logger
	now        func() time.Time
	afterFunc  func(d time.Duration, f func()) stopper

	mu         sync.Mutex
	session    models.RecordingSession
	capture    Capture
	timer      stopper
	onComplete []CompleteFunc
}

type stopper interface {
	Stop() bool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithCompanion sets the preferred target.
func WithCompanion(c CompanionRecorder) Option {
	return func(o *Orchestrator) { o.companion = c }
}

// WithLocalCapture sets the fallback target.
func WithLocalCapture(l LocalCapture) Option {
	return func(o *Orchestrator) { o.local = l }
}

// WithTranscoder converts local captures before saving.
func WithTranscoder(t Transcoder) Option {
	return func(o *Orchestrator) { o.transcoder = t }
}

// NewOrchestrator builds an idle orchestrator. blobs persists local captures.
func NewOrchestrator(cfg Config, blobs BlobSaver, log logger.Logger, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:     cfg,
		blobs:   blobs,
		logger:  log,
		now:     func() time.Time { return time.Now().UTC() },
		session: models.RecordingSession{State: models.SessionIdle},
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// OnComplete registers fn to run after every persisted session.
func (o *Orchestrator) OnComplete(fn CompleteFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.onComplete = append(o.onComplete, fn)
}

// Session returns a copy of the current session.
func (o *Orchestrator) Session() models.RecordingSession {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.session
}

// Start begins a session. A request while another session is starting,
// active or stopping fails with ErrInvalidInput.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (models.RecordingSession, error) {
	limit := o.cfg.clamp(req.DurationLimit)

	o.mu.Lock()
	if o.session.State.Busy() {
		o.mu.Unlock()
		return models.RecordingSession{}, fmt.Errorf("%w: %w", models.ErrInvalidInput, errSessionBusy)
	}

	id := uuid.NewString()
	o.session = models.RecordingSession{
		ID:            id,
		DeviceID:      req.DeviceID,
		State:         models.SessionStarting,
		StartedAt:     o.now(),
		DurationLimit: models.Duration(limit),
	}
	o.mu.Unlock()

	target, fixed, capture, err := o.selectTarget(ctx, limit)
	if err != nil {
		return o.fail(id, err), err
	}

	if fixed && limit == 0 {
		limit = o.cfg.DefaultDuration.Std()
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.session.State = models.SessionActive
	o.session.Target = target
	o.session.FixedDuration = fixed
	o.session.DurationLimit = models.Duration(limit)
	o.capture = capture

	if limit > 0 {
		o.timer = o.afterFunc(limit, func() { o.autoStop(id) })
	}

	o.logger.Info().
		Str("session_id", id).
		Str("target", string(target)).
		Dur("limit", limit).
		Bool("fixed", fixed).
		Msg("Recording started")

	return o.session, nil
}

// selectTarget tries the companion device within CompanionTimeout, then
// local capture.
func (o *Orchestrator) selectTarget(ctx context.Context, limit time.Duration) (models.RecordingTarget, bool, Capture, error) {
	var companionErr error

	if o.companion != nil {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.CompanionTimeout.Std())
		res, err := o.companion.StartRecording(cctx, limit)
		cancel()

		if err == nil {
			return models.TargetCompanion, res.Fixed, nil, nil
		}

		companionErr = err

		o.logger.Warn().Err(err).Msg("Companion device did not start recording, falling back to local capture")
	}

	if ctx.Err() != nil {
		return "", false, nil, ctx.Err()
	}

	if o.local == nil {
		if companionErr != nil {
			return "", false, nil, fmt.Errorf("%w: %w: %w", models.ErrUnavailable, errNoTarget, companionErr)
		}

		return "", false, nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errNoTarget)
	}

	capture, err := o.local.Start(ctx)
	if err != nil {
		return "", false, nil, fmt.Errorf("local capture: %w", err)
	}

	return models.TargetLocal, false, capture, nil
}

// Stop ends the active session and persists its media.
func (o *Orchestrator) Stop(ctx context.Context) (models.RecordingSession, error) {
	return o.stop(ctx, "")
}

func (o *Orchestrator) autoStop(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.StopTimeout.Std())
	defer cancel()

	if _, err := o.stop(ctx, id); err != nil && !errors.Is(err, errStaleSession) {
		o.logger.Warn().Err(err).Str("session_id", id).Msg("Automatic stop failed")
	}
}

// stop finishes the session identified by id, or the current one when id is empty.
func (o *Orchestrator) stop(ctx context.Context, id string) (models.RecordingSession, error) {
	o.mu.Lock()

	if id != "" && o.session.ID != id {
		o.mu.Unlock()
		return models.RecordingSession{}, errStaleSession
	}

	if o.session.State != models.SessionActive {
		o.mu.Unlock()

		if id != "" {
			return models.RecordingSession{}, errStaleSession
		}

		return models.RecordingSession{}, fmt.Errorf("%w: %w", models.ErrInvalidInput, errNoActiveSession)
	}

	o.session.State = models.SessionStopping

	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}

	session := o.session
	capture := o.capture
	o.capture = nil
	o.mu.Unlock()

	var (
		video *models.VideoRecord
		err   error
	)

	switch session.Target {
	case models.TargetCompanion:
		err = o.stopCompanion(ctx, session)
	case models.TargetLocal:
		video, err = o.persistLocal(ctx, session, capture)
	}

	if err != nil {
		return o.fail(session.ID, err), err
	}

	o.mu.Lock()
	o.session.State = models.SessionIdle
	done := o.session
	callbacks := append([]CompleteFunc(nil), o.onComplete...)
	o.mu.Unlock()

	o.logger.Info().Str("session_id", done.ID).Str("target", string(done.Target)).Msg("Recording stopped")

	for _, fn := range callbacks {
		fn(done, video)
	}

	return done, nil
}

// stopCompanion ends a device session. Fixed-duration sessions stop on
// their own; the device uploads the result to the cloud.
func (o *Orchestrator) stopCompanion(ctx context.Context, session models.RecordingSession) error {
	if session.FixedDuration || o.companion == nil {
		return nil
	}

	if err := o.companion.StopRecording(ctx); err != nil {
		return fmt.Errorf("companion stop: %w", err)
	}

	return nil
}

func (o *Orchestrator) persistLocal(ctx context.Context, session models.RecordingSession, capture Capture) (*models.VideoRecord, error) {
	if capture == nil {
		return nil, fmt.Errorf("%w: local capture lost", models.ErrPersistenceFailure)
	}

	media, err := capture.Stop(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: local capture: %w", models.ErrPersistenceFailure, err)
	}

	data, contentType := media.Data, media.ContentType

	if o.transcoder != nil {
		out, outType, err := o.transcoder.Transcode(ctx, data, contentType)
		if err != nil {
			o.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Transcode failed, saving original capture")
		} else {
			data, contentType = out, outType
		}
	}

	entry, err := o.blobs.Save(ctx, data, contentType)
	if err != nil {
		if !errors.Is(err, models.ErrPersistenceFailure) {
			err = fmt.Errorf("%w: %w", models.ErrPersistenceFailure, err)
		}

		return nil, err
	}

	video := &models.VideoRecord{
		Filename:  models.LocalVideoFilename(entry.ID, models.VideoExtension(contentType)),
		Size:      entry.Size,
		Timestamp: entry.Timestamp,
		Origin:    models.OriginLocal,
		LocalID:   entry.ID,
		DeviceID:  session.DeviceID,
	}

	return video, nil
}

// fail moves the session to Failed unless it was replaced meanwhile.
func (o *Orchestrator) fail(id string, cause error) models.RecordingSession {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session.ID == id {
		o.session.State = models.SessionFailed
		o.session.Error = cause.Error()
		o.capture = nil
	}

	o.logger.Error().Err(cause).Str("session_id", id).Msg("Recording failed")

	return o.session
}
