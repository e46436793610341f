package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

const namePrefix = "snapshot-"

// Data is the on-disk snapshot document. Section maps are keyed by entity ID
// and hold the entity's JSON encoding as produced by the store layer.
type Data struct {
	Version   string                     `json:"version"`
	Timestamp time.Time                  `json:"timestamp"`
	Sessions  map[string]json.RawMessage `json:"sessions,omitempty"`
	Messages  map[string]json.RawMessage `json:"messages,omitempty"`
	Signals   map[string]json.RawMessage `json:"signals,omitempty"`
	Metadata  map[string]string          `json:"metadata,omitempty"`
}

// Storage defines the interface for snapshot storage backends
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Service writes and restores snapshot documents
type Service struct {
	storage Storage
	version string
}

// NewService creates a snapshot service
func NewService(storage Storage, version string) *Service {
	return &Service{
		storage: storage,
		version: version,
	}
}

// Create writes a snapshot and returns its name
func (s *Service) Create(ctx context.Context, data *Data) (string, error) {
	data.Version = s.version
	data.Timestamp = time.Now().UTC()

	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("%s%s.json", namePrefix, data.Timestamp.Format("20060102-150405.000"))

	if err := s.storage.Save(ctx, name, bytes.NewReader(encoded)); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}

	return name, nil
}

// Restore loads a snapshot by name
func (s *Service) Restore(ctx context.Context, name string) (*Data, error) {
	reader, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &data, nil
}

// RestoreLatest loads the most recent snapshot, or nil when none exist
func (s *Service) RestoreLatest(ctx context.Context) (*Data, error) {
	names, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	// Names embed the creation time, so lexicographic order is chronological.
	sort.Strings(names)
	return s.Restore(ctx, names[len(names)-1])
}

// List returns all snapshot names
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.storage.List(ctx, namePrefix)
}

// Delete removes a snapshot by name
func (s *Service) Delete(ctx context.Context, name string) error {
	return s.storage.Delete(ctx, name)
}

// Prune deletes snapshots older than the retention window and returns how
// many were removed. Names that do not parse are left alone.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int, error) {
	names, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-retention)
	removed := 0

	for _, name := range names {
		ts, err := parseSnapshotTime(name)
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			if err := s.storage.Delete(ctx, name); err != nil {
				return removed, fmt.Errorf("failed to prune snapshot %s: %w", name, err)
			}
			removed++
		}
	}

	return removed, nil
}

func parseSnapshotTime(name string) (time.Time, error) {
	trimmed := name
	if len(trimmed) > len(namePrefix) {
		trimmed = trimmed[len(namePrefix):]
	}
	if idx := len(trimmed) - len(".json"); idx > 0 && trimmed[idx:] == ".json" {
		trimmed = trimmed[:idx]
	}
	return time.Parse("20060102-150405.000", trimmed)
}
