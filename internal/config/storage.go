package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dooshek/gamecoach/internal/fileops"
	"github.com/dooshek/gamecoach/internal/types"
	"gopkg.in/yaml.v3"
)

// ownWriteWindow is how long a document this process wrote is recognised
// when the watcher reads it back
const ownWriteWindow = 30 * time.Second

// FileStorage persists settings as YAML in the gamecoach config directory
type FileStorage struct {
	files fileops.FileOps

	mu      sync.Mutex
	written map[string]time.Time
}

func NewFileStorage(files fileops.FileOps) *FileStorage {
	return &FileStorage{files: files, written: make(map[string]time.Time)}
}

// Load returns whatever keys the settings file carries. A missing file
// yields an empty patch so callers fall back to defaults.
func (s *FileStorage) Load(ctx context.Context) (types.SettingsPatch, error) {
	data, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return types.SettingsPatch{}, nil
	}
	return parse(data)
}

// LoadExternal is Load for the file watcher. It reports external=false,
// with no patch, when the file holds a document this storage saved
// recently, so an older save read back cannot overwrite newer settings.
func (s *FileStorage) LoadExternal(ctx context.Context) (patch types.SettingsPatch, external bool, err error) {
	data, err := s.read(ctx)
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return types.SettingsPatch{}, true, nil
	}
	if s.isOwn(data) {
		return nil, false, nil
	}
	patch, err = parse(data)
	return patch, err == nil, err
}

func (s *FileStorage) read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.files.LoadConfig(fileops.SettingsFilename)
	if err != nil {
		if errors.Is(err, fileops.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return data, nil
}

func parse(data []byte) (types.SettingsPatch, error) {
	patch := types.SettingsPatch{}
	if err := yaml.Unmarshal(data, &patch); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return patch, nil
}

func (s *FileStorage) remember(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for doc, at := range s.written {
		if now.Sub(at) > ownWriteWindow {
			delete(s.written, doc)
		}
	}
	s.written[string(data)] = now
}

func (s *FileStorage) isOwn(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.written[string(data)]
	return ok && time.Since(at) <= ownWriteWindow
}

// Save writes the full settings document, replacing the previous file atomically
func (s *FileStorage) Save(ctx context.Context, settings types.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := s.files.EnsureDirectories(); err != nil {
		return err
	}
	// recorded first; the watcher can fire before SaveConfig returns
	s.remember(data)
	if err := s.files.SaveConfig(fileops.SettingsFilename, data); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
