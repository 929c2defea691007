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
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/guardian/pkg/models"
)

const contentTypeKey = "content-type"

// ObjectInfo describes a stored recording.
type ObjectInfo struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// ObjectStore keeps uploaded recordings in a JetStream object store bucket.
type ObjectStore struct {
	store      jetstream.ObjectStore
	publicBase string
}

// NewObjectStore creates or binds the recordings bucket. publicBase is the
// externally reachable prefix objects are served under.
func NewObjectStore(ctx context.Context, js jetstream.JetStream, bucket, publicBase string) (*ObjectStore, error) {
	store, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "guardian recordings",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store %s: %w", bucket, err)
	}

	return &ObjectStore{store: store, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// Put stores r under name.
func (o *ObjectStore) Put(ctx context.Context, name, contentType string, r io.Reader) (*ObjectInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, errEmptyObjectName)
	}

	info, err := o.store.Put(ctx, jetstream.ObjectMeta{
		Name:     name,
		Metadata: map[string]string{contentTypeKey: contentType},
	}, r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to store %s: %w", models.ErrPersistenceFailure, name, err)
	}

	return toObjectInfo(info), nil
}

// Get opens a stored object. The caller closes the reader.
func (o *ObjectStore) Get(ctx context.Context, name string) (io.ReadCloser, *ObjectInfo, error) {
	res, err := o.store.Get(ctx, name)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, nil, ErrObjectNotFound
	}

	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to open %s: %w", models.ErrUnavailable, name, err)
	}

	info, err := res.Info()
	if err != nil {
		_ = res.Close()
		return nil, nil, fmt.Errorf("%w: failed to stat %s: %w", models.ErrUnavailable, name, err)
	}

	return res, toObjectInfo(info), nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (o *ObjectStore) Delete(ctx context.Context, name string) error {
	err := o.store.Delete(ctx, name)
	if err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}

	return nil
}

// PublicURL derives the URL a stored object is served from.
func (o *ObjectStore) PublicURL(name string) string {
	return o.publicBase + "/" + url.PathEscape(name)
}

func toObjectInfo(info *jetstream.ObjectInfo) *ObjectInfo {
	out := &ObjectInfo{
		Name:    info.Name,
		Size:    int64(info.Size),
		ModTime: info.ModTime.UTC(),
	}

	if info.Metadata != nil {
		out.ContentType = info.Metadata[contentTypeKey]
	}

	return out
}
