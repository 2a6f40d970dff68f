package fileops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/dooshek/gamecoach/internal/logger"
)

// ErrConfigNotFound is returned when a configuration file does not exist
var ErrConfigNotFound = errors.New("configuration file not found")

// ErrProcessAlreadyRunning is returned when a gamecoach host is already running
var ErrProcessAlreadyRunning = errors.New("gamecoach host is already running")

const (
	SettingsFilename = "settings.yaml"
	statsFilename    = "stats.json"
	pidFilename      = "gamecoach.pid"
	socketFilename   = "gamecoach.sock"
)

// FileOps interface defines operations for managing files in the gamecoach config directory
type FileOps interface {
	// GetConfigDir returns the full path to the gamecoach config directory
	GetConfigDir() string

	// GetSettingsPath returns the full path to the settings file
	GetSettingsPath() string

	// GetStatsPath returns the full path to the analysis statistics file
	GetStatsPath() string

	// GetLogsDir returns the directory used for --log-filename defaults
	GetLogsDir() string

	// GetSocketPath returns the unix socket the host listens on
	GetSocketPath() string

	// SaveConfig atomically replaces a file in the config directory
	SaveConfig(filename string, data []byte) error

	// LoadConfig loads data from a file in the config directory
	LoadConfig(filename string) ([]byte, error)

	// EnsureDirectories creates necessary directories if they don't exist
	EnsureDirectories() error

	// SavePID saves the current process ID to a file
	SavePID() error

	// CheckPID checks if another instance is running
	// Returns ErrProcessAlreadyRunning if another instance is running
	CheckPID() error

	// CleanupPID removes the PID file
	CleanupPID() error
}

// DefaultFileOps implements FileOps interface
type DefaultFileOps struct {
	configDir  string
	runtimeDir string
}

// NewDefaultFileOps creates a new DefaultFileOps instance
func NewDefaultFileOps() (*DefaultFileOps, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "gamecoach")
	runtimeDir := configDir
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		runtimeDir = filepath.Join(xdg, "gamecoach")
	}

	return &DefaultFileOps{
		configDir:  configDir,
		runtimeDir: runtimeDir,
	}, nil
}

// NewFileOpsAt roots every path at dir; used by tests and --config-dir
func NewFileOpsAt(dir string) *DefaultFileOps {
	return &DefaultFileOps{configDir: dir, runtimeDir: dir}
}

func (f *DefaultFileOps) GetConfigDir() string {
	return f.configDir
}

func (f *DefaultFileOps) GetSettingsPath() string {
	return filepath.Join(f.configDir, SettingsFilename)
}

func (f *DefaultFileOps) GetStatsPath() string {
	return filepath.Join(f.configDir, statsFilename)
}

func (f *DefaultFileOps) GetLogsDir() string {
	return filepath.Join(f.configDir, "logs")
}

func (f *DefaultFileOps) GetSocketPath() string {
	return filepath.Join(f.runtimeDir, socketFilename)
}

func (f *DefaultFileOps) SaveConfig(filename string, data []byte) error {
	path := filepath.Join(f.configDir, filename)

	tmp, err := os.CreateTemp(f.configDir, "."+filename+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set file permissions: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (f *DefaultFileOps) LoadConfig(filename string) ([]byte, error) {
	path := filepath.Join(f.configDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return data, nil
}

func (f *DefaultFileOps) EnsureDirectories() error {
	dirs := []string{
		f.configDir,
		f.runtimeDir,
		f.GetLogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

func (f *DefaultFileOps) getPIDFilePath() string {
	return filepath.Join(f.runtimeDir, pidFilename)
}

func (f *DefaultFileOps) SavePID() error {
	pidFile := f.getPIDFilePath()
	pid := os.Getpid()
	return os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o644)
}

func (f *DefaultFileOps) CheckPID() error {
	pidFile := f.getPIDFilePath()

	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("invalid PID in file: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	// Signal 0 only probes for existence
	if err := process.Signal(syscall.Signal(0)); err == nil {
		return ErrProcessAlreadyRunning
	}

	logger.Debug("Found stale PID file, will be overwritten")
	return nil
}

func (f *DefaultFileOps) CleanupPID() error {
	return os.Remove(f.getPIDFilePath())
}
