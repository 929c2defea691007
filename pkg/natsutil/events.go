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

package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

// videoSubjects matches every video change op.
const videoSubjects = models.VideoSubjectPrefix + ".>"

// EventPublisher publishes catalog change CloudEvents to NATS JetStream.
type EventPublisher struct {
	js     jetstream.JetStream
	stream string
	logger logger.Logger
}

// NewEventPublisher creates an EventPublisher for the specified stream.
func NewEventPublisher(js jetstream.JetStream, streamName string, log logger.Logger) *EventPublisher {
	return &EventPublisher{
		js:     js,
		stream: streamName,
		logger: log,
	}
}

// Stream is the stream the publisher writes to.
func (p *EventPublisher) Stream() string {
	return p.stream
}

// PublishVideoChange announces an insert, update or delete on the cloud videos table.
func (p *EventPublisher) PublishVideoChange(ctx context.Context, change *models.VideoChangeEvent) error {
	if change == nil {
		return errNilChange
	}

	event := models.NewVideoCloudEvent(change)

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal video change event: %w", err)
	}

	ack, err := p.js.Publish(ctx, event.Subject, eventBytes, jetstream.WithMsgID(event.ID))
	if err != nil {
		return fmt.Errorf("%w: failed to publish video change event: %w", models.ErrUnavailable, err)
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Str("subject", event.Subject).
		Uint64("seq", ack.Sequence).
		Msg("published video change")

	return nil
}

// EnsureStream creates the stream or widens its subjects so that subject is captured.
func EnsureStream(ctx context.Context, js jetstream.JetStream, streamName, subject string) error {
	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		if !isStreamMissingErr(err) {
			return fmt.Errorf("failed to look up stream %s: %w", streamName, err)
		}

		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     streamName,
			Subjects: []string{subject},
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}

		return nil
	}

	cfg := stream.CachedInfo().Config

	subjects := ensureSubjectList(cfg.Subjects, subject)
	if len(subjects) == len(cfg.Subjects) {
		return nil
	}

	cfg.Subjects = subjects

	if _, err := js.UpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to update stream %s subjects: %w", streamName, err)
	}

	return nil
}

// CreateEventPublisher ensures the video subjects are captured by streamName.
func CreateEventPublisher(ctx context.Context, js jetstream.JetStream, streamName string, log logger.Logger) (*EventPublisher, error) {
	if err := EnsureStream(ctx, js, streamName, videoSubjects); err != nil {
		return nil, err
	}

	return NewEventPublisher(js, streamName, log), nil
}

func ensureSubjectList(subjects []string, subject string) []string {
	for _, existing := range subjects {
		if matchesSubject(existing, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether pattern covers subject using NATS wildcard rules.
func matchesSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for i, tok := range pTokens {
		if tok == ">" {
			return len(sTokens) > i
		}

		if i >= len(sTokens) {
			return false
		}

		if tok != "*" && tok != sTokens[i] {
			return false
		}
	}

	return len(pTokens) == len(sTokens)
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}
