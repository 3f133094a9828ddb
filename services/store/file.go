package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"sjsage522/srpauditor/logger"
)

// FileStore implements Store as a single JSON document on disk
type FileStore struct {
	mu       sync.RWMutex
	data     map[string]string
	filename string
	log      *logger.Logger
}

// NewFileStore opens filename, loading existing data when present
func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		data:     make(map[string]string),
		filename: filename,
		log:      logger.ForStore().WithField("backend", "file"),
	}

	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load store file %s: %w", filename, err)
	}
	fs.log.Debug().Str("file", filename).Int("keys", len(fs.data)).Msg("Opened store file")

	return fs, nil
}

// Get retrieves a value
func (fs *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	value, ok := fs.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(value), nil
}

// Set stores a value and rewrites the file
func (fs *FileStore) Set(_ context.Context, key string, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.data[key] = string(value)
	return fs.save()
}

// Delete removes a value and rewrites the file
func (fs *FileStore) Delete(_ context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.data[key]; !ok {
		return nil
	}
	delete(fs.data, key)
	return fs.save()
}

// Close is a no-op; every write is already flushed
func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) save() error {
	data, err := json.MarshalIndent(fs.data, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first for atomicity
	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, fs.filename)
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &fs.data)
}
