package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
)

// Environment variables that relocate toolkeeper's directories.
const (
	EnvConfigDir = "TOOLKEEPER_CONFIG_DIR"
	EnvDataDir   = "TOOLKEEPER_DATA_DIR"
)

const appDir = "toolkeeper"

// ConfigDir returns the directory holding toolkeeper.lua.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(base, appDir), nil
}

// DataDir returns the directory holding the managed tool, downloads and the
// install journal.
func DataDir() (string, error) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate data directory: %w", err)
	}
	return filepath.Join(base, appDir), nil
}

// DefaultPath returns the path of toolkeeper.lua in ConfigDir.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Store loads and saves one configuration file.
//
// Saving regenerates the file from the parsed Config, so Lua expressions in a
// hand-written file are replaced by their values.
type Store struct {
	path   string
	parser *Parser
	gen    *Generator
	logger logging.Logger

	mu sync.Mutex
}

// NewStore creates a store for the file at path.
func NewStore(path string, parser *Parser) *Store {
	if parser == nil {
		parser = NewParser(nil)
	}
	return &Store{
		path:   path,
		parser: parser,
		gen:    NewGenerator(),
		logger: logging.Nop(),
	}
}

// WithLogger sets the store logger.
func (s *Store) WithLogger(l logging.Logger) *Store {
	s.logger = logging.OrNop(l)
	return s
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the config file exists.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load parses the config file. A missing file yields Default.
func (s *Store) Load(ctx context.Context) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (*Config, error) {
	cfg, err := s.parser.ParseFile(ctx, s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("no config file, using defaults", "path", s.path)
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	return cfg, nil
}

// Save validates cfg and writes it with write-then-rename.
func (s *Store) Save(cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(cfg)
}

func (s *Store) save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	content, err := s.gen.Generate(cfg)
	if err != nil {
		return fmt.Errorf("generate config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary config: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temporary config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temporary config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temporary config: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}

	s.logger.Debug("config saved", "path", s.path)
	return nil
}

// Remember records the tool path and, when set, the digest of a tool the
// user accepted without whitelist approval. An empty digest keeps the one
// already stored.
func (s *Store) Remember(path, trustedDigest string) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultParseTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load(ctx)
	if err != nil {
		return err
	}

	cfg.Tool.Path = path
	if trustedDigest != "" {
		cfg.Tool.TrustedDigest = trustedDigest
	}

	if err := s.save(cfg); err != nil {
		return err
	}
	s.logger.Info("tool remembered", "path", path, "trusted_digest", trustedDigest)
	return nil
}

// Update loads the config, applies fn and saves the result.
func (s *Store) Update(ctx context.Context, fn func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return s.save(cfg)
}
