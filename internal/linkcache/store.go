// Package linkcache persists the discovered link set between runs. The file
// is meant to be reviewed and edited by people, so loading accepts comments
// and trailing commas.
package linkcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
	"github.com/tailscale/hujson"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navcrawl/internal/discovery"
)

// ErrNoArtifact means there is no usable cached link set and discovery
// has to run live.
var ErrNoArtifact = errors.New("linkcache: no usable link artifact")

// Store reads and writes the link artifact at a fixed path.
type Store struct {
	path   string
	logger *zap.Logger
}

// New creates a store for path.
func New(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger.Named("linkcache")}
}

// Path returns the artifact location.
func (s *Store) Path() string { return s.path }

// Exists reports whether an artifact file is present.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Save writes links as an indented JSON array. The file is replaced
// atomically so a crash never leaves a truncated artifact behind.
func (s *Store) Save(links []discovery.NavigationLink) error {
	if links == nil {
		links = []discovery.NavigationLink{}
	}
	data, err := json.MarshalIndent(links, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode links: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".links-*.json")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write links: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write links: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("could not move links into place: %w", err)
	}

	s.logger.Info("Saved discovered links.", zap.String("path", s.path), zap.Int("count", len(links)))
	return nil
}

// Load reads the artifact. A missing or unparsable file yields
// ErrNoArtifact; the parse problem itself is logged.
func (s *Store) Load() ([]discovery.NavigationLink, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Could not read link artifact.", zap.String("path", s.path), zap.Error(err))
		}
		return nil, ErrNoArtifact
	}

	links, err := Parse(data)
	if err != nil {
		s.logger.Warn("Link artifact is not usable; discovery will run live.", zap.String("path", s.path), zap.Error(err))
		return nil, ErrNoArtifact
	}
	s.logger.Info("Loaded links from artifact.", zap.String("path", s.path), zap.Int("count", len(links)))
	return links, nil
}

// Parse decodes a permissive JSON array of {text, href}. Entries without an
// href are dropped and duplicates collapse onto the first occurrence.
func Parse(data []byte) ([]discovery.NavigationLink, error) {
	standard, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("malformed artifact: %w", err)
	}

	var links []discovery.NavigationLink
	if err := json.Unmarshal(standard, &links); err != nil {
		return nil, fmt.Errorf("artifact is not a link array: %w", err)
	}
	return discovery.Dedup(links), nil
}
