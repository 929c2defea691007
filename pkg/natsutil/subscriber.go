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
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

// videoChangeBuffer bounds how far a slow subscriber can lag before the
// consumer blocks.
const videoChangeBuffer = 16

type videoEnvelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func decodeVideoChange(data []byte) (*models.VideoChangeEvent, error) {
	var env videoEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode cloud event: %w", err)
	}

	if env.Type != models.VideoEventType {
		return nil, fmt.Errorf("%w: unexpected event type %q", models.ErrInvalidInput, env.Type)
	}

	var change models.VideoChangeEvent
	if err := json.Unmarshal(env.Data, &change); err != nil {
		return nil, fmt.Errorf("failed to decode video change: %w", err)
	}

	return &change, nil
}

// SubscribeVideoChanges delivers new video change events until ctx is
// cancelled. The returned channel is closed afterwards. An ordered consumer
// starting at new messages is used, so no durable state is left on the server.
func SubscribeVideoChanges(
	ctx context.Context, js jetstream.JetStream, streamName string, log logger.Logger,
) (<-chan models.VideoChangeEvent, error) {
	cons, err := js.OrderedConsumer(ctx, streamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{videoSubjects},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create video consumer: %w", models.ErrUnavailable, err)
	}

	ch := make(chan models.VideoChangeEvent, videoChangeBuffer)
	done := make(chan struct{})

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		change, err := decodeVideoChange(msg.Data())
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed video change")
			return
		}

		select {
		case ch <- *change:
		case <-done:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to consume video changes: %w", models.ErrUnavailable, err)
	}

	go func() {
		<-ctx.Done()
		close(done)
		cc.Stop()
		<-cc.Closed()
		close(ch)
	}()

	return ch, nil
}
