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

// Package blobstore persists locally captured recordings and small state
// documents on the filesystem.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/carverauto/guardian/pkg/logger"
	"github.com/carverauto/guardian/pkg/models"
)

const (
	blobDir  = "blobs"
	stateDir = "state"
	metaExt  = ".json"

	dirPerms  os.FileMode = 0o700
	filePerms os.FileMode = 0o600

	// defaultReserve is kept free on the volume after every write.
	defaultReserve = 64 << 20
)

var stateKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Entry describes one stored blob.
type Entry struct {
	ID          string    `json:"id"`
	Size        int64     `json:"size"`
	Timestamp   time.Time `json:"timestamp"`
	ContentType string    `json:"content_type,omitempty"`
	Checksum    string    `json:"checksum"`
}

// Op is a kind of store mutation.
type Op string

const (
	OpSaved   Op = "saved"
	OpDeleted Op = "deleted"
)

// ChangeFunc observes store mutations. It runs synchronously after the
// mutation is durable and must not block.
type ChangeFunc func(op Op, entry Entry)

// FreeSpaceFunc reports free bytes on the volume holding path.
type FreeSpaceFunc func(ctx context.Context, path string) (uint64, error)

// FileStore is a Store on the local filesystem.
type FileStore struct {
	root      string
	reserve   uint64
	freeSpace FreeSpaceFunc
	logger    logger.Logger
	now       func() time.Time

	mu        sync.Mutex
	listeners []ChangeFunc
}

// Option customizes a FileStore.
type Option func(*FileStore)

// WithReserve sets the bytes that must stay free after a write.
func WithReserve(bytes uint64) Option {
	return func(s *FileStore) {
		s.reserve = bytes
	}
}

// WithFreeSpaceFunc replaces the disk usage probe.
func WithFreeSpaceFunc(fn FreeSpaceFunc) Option {
	return func(s *FileStore) {
		s.freeSpace = fn
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *FileStore) {
		s.logger = l
	}
}

func diskFree(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}

	return usage.Free, nil
}

// New creates the directory layout under root.
func New(root string, opts ...Option) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, errRootRequired)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfiguration, err)
	}

	s := &FileStore{
		root:      abs,
		reserve:   defaultReserve,
		freeSpace: diskFree,
		logger:    logger.NewTestLogger(),
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	for _, dir := range []string{blobDir, stateDir} {
		if err := os.MkdirAll(filepath.Join(abs, dir), dirPerms); err != nil {
			return nil, fmt.Errorf("%w: failed to create %s directory: %w", models.ErrPersistenceFailure, dir, err)
		}
	}

	return s, nil
}

// OnChange registers fn for every subsequent mutation.
func (s *FileStore) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, fn)
}

func (s *FileStore) notify(op Op, e Entry) {
	s.mu.Lock()
	listeners := append([]ChangeFunc(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(op, e)
	}
}

func (s *FileStore) blobPath(id string) string {
	return filepath.Join(s.root, blobDir, id)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && !strings.ContainsAny(id, "/\\.")
}

// Save stores data and returns its entry. Failures wrap
// models.ErrPersistenceFailure.
func (s *FileStore) Save(ctx context.Context, data []byte, contentType string) (Entry, error) {
	if len(data) == 0 {
		return Entry{}, fmt.Errorf("%w: %w", models.ErrPersistenceFailure, errEmptyBlob)
	}

	if s.freeSpace != nil {
		free, err := s.freeSpace(ctx, s.root)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Unable to read free space, writing anyway")
		} else if free < uint64(len(data))+s.reserve {
			return Entry{}, fmt.Errorf("%w: %w: need %d bytes, %d free",
				models.ErrPersistenceFailure, errInsufficientDisk, len(data), free)
		}
	}

	sum := sha256.Sum256(data)
	entry := Entry{
		ID:          uuid.New().String(),
		Size:        int64(len(data)),
		Timestamp:   s.now(),
		ContentType: contentType,
		Checksum:    hex.EncodeToString(sum[:]),
	}

	path := s.blobPath(entry.ID)

	if err := writeAtomic(path, data); err != nil {
		return Entry{}, fmt.Errorf("%w: %w", models.ErrPersistenceFailure, err)
	}

	meta, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", models.ErrPersistenceFailure, err)
	}

	if err := writeAtomic(path+metaExt, meta); err != nil {
		_ = os.Remove(path)
		return Entry{}, fmt.Errorf("%w: %w", models.ErrPersistenceFailure, err)
	}

	s.logger.Info().Str("id", entry.ID).Int64("size", entry.Size).Msg("Stored local recording")
	s.notify(OpSaved, entry)

	return entry, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := tmp.Chmod(filePerms); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to commit file: %w", err)
	}

	return nil
}

func (s *FileStore) readEntry(id string) (Entry, error) {
	raw, err := os.ReadFile(s.blobPath(id) + metaExt)
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, ErrNotFound
	}

	if err != nil {
		return Entry{}, err
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("corrupt metadata for %s: %w", id, err)
	}

	return e, nil
}

// Get returns the bytes stored under id, or ErrNotFound.
func (s *FileStore) Get(_ context.Context, id string) ([]byte, Entry, error) {
	if !validID(id) {
		return nil, Entry{}, fmt.Errorf("%w: %w", ErrNotFound, errInvalidID)
	}

	entry, err := s.readEntry(id)
	if err != nil {
		return nil, Entry{}, err
	}

	data, err := os.ReadFile(s.blobPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Entry{}, ErrNotFound
	}

	if err != nil {
		return nil, Entry{}, fmt.Errorf("failed to read blob %s: %w", id, err)
	}

	sum := sha256.Sum256(data)
	if entry.Checksum != hex.EncodeToString(sum[:]) || entry.Size != int64(len(data)) {
		return nil, Entry{}, fmt.Errorf("%w: %s", errChecksumMismatch, id)
	}

	return data, entry, nil
}

// List returns every stored entry, newest first. Corrupt metadata files are
// skipped.
func (s *FileStore) List(_ context.Context) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, blobDir, "*"+metaExt))
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(matches))

	for _, m := range matches {
		id := strings.TrimSuffix(filepath.Base(m), metaExt)
		if !validID(id) {
			continue
		}

		e, err := s.readEntry(id)
		if err != nil {
			s.logger.Warn().Err(err).Str("id", id).Msg("Skipping unreadable blob metadata")
			continue
		}

		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	return out, nil
}

// Delete removes a blob. Deleting an unknown id returns ErrNotFound.
func (s *FileStore) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %w", ErrNotFound, errInvalidID)
	}

	entry, err := s.readEntry(id)
	if err != nil {
		return err
	}

	if err := os.Remove(s.blobPath(id) + metaExt); err != nil {
		return fmt.Errorf("%w: %w", models.ErrPersistenceFailure, err)
	}

	if err := os.Remove(s.blobPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn().Err(err).Str("id", id).Msg("Blob data left behind after delete")
	}

	s.notify(OpDeleted, entry)

	return nil
}

// SaveJSON persists a small state document under key.
func (s *FileStore) SaveJSON(key string, v any) error {
	if !stateKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", errInvalidKey, key)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrPersistenceFailure, err)
	}

	if err := writeAtomic(filepath.Join(s.root, stateDir, key+metaExt), raw); err != nil {
		return fmt.Errorf("%w: %w", models.ErrPersistenceFailure, err)
	}

	return nil
}

// LoadJSON decodes the document stored under key into v. A missing
// document returns ErrNotFound.
func (s *FileStore) LoadJSON(key string, v any) error {
	if !stateKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", errInvalidKey, key)
	}

	raw, err := os.ReadFile(filepath.Join(s.root, stateDir, key+metaExt))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}

	if err != nil {
		return err
	}

	return json.Unmarshal(raw, v)
}
