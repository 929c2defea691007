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

package catalog

import (
	"context"

	"github.com/carverauto/guardian/pkg/blobstore"
	"github.com/carverauto/guardian/pkg/models"
	"github.com/carverauto/guardian/pkg/probe"
)

// Lister lists remote recordings.
type Lister interface {
	Videos(ctx context.Context) ([]models.VideoRecord, error)
}

// BlobLister lists local recordings.
type BlobLister interface {
	List(ctx context.Context) ([]blobstore.Entry, error)
}

// RemoteSource wraps a companion or cloud lister as a catalog probe.
func RemoteSource(source models.SourceKind, l Lister) probe.Probe[[]models.VideoRecord] {
	return probe.New[[]models.VideoRecord](source, l.Videos)
}

// LocalSource exposes the blob store as catalog records.
func LocalSource(store BlobLister) probe.Probe[[]models.VideoRecord] {
	return probe.New[[]models.VideoRecord](models.SourceLocal, func(ctx context.Context) ([]models.VideoRecord, error) {
		entries, err := store.List(ctx)
		if err != nil {
			return nil, err
		}

		return LocalRecords(entries), nil
	})
}

// LocalRecords converts blob entries into catalog records.
func LocalRecords(entries []blobstore.Entry) []models.VideoRecord {
	out := make([]models.VideoRecord, 0, len(entries))

	for _, e := range entries {
		out = append(out, models.VideoRecord{
			Filename:  models.LocalVideoFilename(e.ID, models.VideoExtension(e.ContentType)),
			Size:      e.Size,
			Timestamp: e.Timestamp,
			Origin:    models.OriginLocal,
			LocalID:   e.ID,
		})
	}

	return out
}
