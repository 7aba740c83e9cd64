package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/JaimeStill/matchflow/pkg/lifecycle"
)

// Memory is an in-process System for local runs and tests.
type Memory struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	logger *slog.Logger
}

// NewMemory creates an empty in-process store.
func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		blobs:  make(map[string][]byte),
		logger: logger,
	}
}

func (m *Memory) Start(lc *lifecycle.Coordinator) error {
	m.logger.Info("in-memory storage active")
	return nil
}

func (m *Memory) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.blobs[key] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.blobs[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, key)
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key]
	return ok, nil
}
