package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileTokenStore keeps the broker token in a YAML file for local
// development and single-machine deployments.
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

// NewFileTokenStore resolves path and ensures its directory exists.
func NewFileTokenStore(path string) (*FileTokenStore, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating token directory: %w", err)
	}
	return &FileTokenStore{path: absPath}, nil
}

// Load reads and parses the token file.
func (s *FileTokenStore) Load(ctx context.Context) (*BrokerToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var token BrokerToken
	if err := yaml.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parsing token file: %w", err)
	}
	return &token, nil
}

// Save writes the token file with owner-only permissions.
func (s *FileTokenStore) Save(ctx context.Context, token *BrokerToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(token)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Ping reports whether the token directory is accessible.
func (s *FileTokenStore) Ping() error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

// Close is a no-op for the file store.
func (s *FileTokenStore) Close() error { return nil }
