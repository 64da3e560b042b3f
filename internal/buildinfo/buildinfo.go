// Package buildinfo records the outcome of an image build so later steps and
// dependent projects can consume it.
package buildinfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Builder identifies the backend that produced an image.
type Builder string

const (
	BuilderDockerfile Builder = "DOCKERFILE"
	BuilderDirect     Builder = "DIRECT"
)

// ErrNotFound is returned when no result has been recorded.
var ErrNotFound = errors.New("build result not found")

// BuildResult is the record written next to every image archive.
type BuildResult struct {
	Tag     string  `json:"tag"`
	Builder Builder `json:"builder"`
	ImageID string  `json:"imageId"`
}

func (r BuildResult) validate() error {
	switch {
	case r.Tag == "":
		return errors.New("tag is empty")
	case r.ImageID == "":
		return errors.New("imageId is empty")
	case r.Builder != BuilderDockerfile && r.Builder != BuilderDirect:
		return fmt.Errorf("unknown builder %q", r.Builder)
	}

	return nil
}

// Write stores r as JSON at path, creating parent directories.
func Write(path string, r BuildResult) error {
	if err := r.validate(); err != nil {
		return fmt.Errorf("invalid build result: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal build result: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create build result directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write build result: %w", err)
	}

	return nil
}

// Read loads a BuildResult written by Write.
func Read(path string) (BuildResult, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return BuildResult{}, fmt.Errorf("%w at %s", ErrNotFound, path)
	}
	if err != nil {
		return BuildResult{}, fmt.Errorf("read build result: %w", err)
	}

	var r BuildResult
	if err := json.Unmarshal(data, &r); err != nil {
		return BuildResult{}, fmt.Errorf("unmarshal build result %s: %w", path, err)
	}
	if err := r.validate(); err != nil {
		return BuildResult{}, fmt.Errorf("invalid build result %s: %w", path, err)
	}

	return r, nil
}

// Store hands results from one build to another within the same run. Lookups
// that miss fall back to the result file on disk.
type Store struct {
	mux     sync.RWMutex
	results map[string]BuildResult
}

func NewStore() *Store {
	return &Store{results: map[string]BuildResult{}}
}

// Put records r for the build whose result file is path.
func (s *Store) Put(path string, r BuildResult) {
	s.mux.Lock()
	defer s.mux.Unlock()

	s.results[filepath.Clean(path)] = r
}

// Get returns the result recorded for path, reading path if nothing was
// recorded in memory.
func (s *Store) Get(path string) (BuildResult, error) {
	s.mux.RLock()
	r, ok := s.results[filepath.Clean(path)]
	s.mux.RUnlock()
	if ok {
		return r, nil
	}

	return Read(path)
}
