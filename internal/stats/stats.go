package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dooshek/gamecoach/internal/fileops"
	"github.com/dooshek/gamecoach/internal/logger"
)

// ProviderStats holds statistics for a specific analysis provider
type ProviderStats struct {
	AnalysisCount int     `json:"analysis_count"`
	FailureCount  int     `json:"failure_count"`
	TotalSeconds  float64 `json:"total_seconds"`
}

// Stats holds all analysis statistics
type Stats struct {
	Providers map[string]*ProviderStats `json:"providers"`
}

// StatsManager manages analysis statistics persistence
type StatsManager struct {
	stats    Stats
	files    fileops.FileOps
	filename string
	mu       sync.Mutex
}

// NewStatsManager creates a new stats manager and loads existing data
func NewStatsManager(files fileops.FileOps) *StatsManager {
	sm := &StatsManager{
		files:    files,
		filename: filepath.Base(files.GetStatsPath()),
		stats: Stats{
			Providers: make(map[string]*ProviderStats),
		},
	}

	if err := sm.load(); err != nil {
		logger.Debugf("Could not load stats (will start fresh): %v", err)
	}

	return sm
}

// Record adds one finished analysis and persists immediately. A non-nil
// err counts the analysis as failed.
func (sm *StatsManager) Record(provider string, duration time.Duration, err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ps, exists := sm.stats.Providers[provider]
	if !exists {
		ps = &ProviderStats{}
		sm.stats.Providers[provider] = ps
	}

	ps.AnalysisCount++
	ps.TotalSeconds += duration.Seconds()
	if err != nil {
		ps.FailureCount++
	}

	if err := sm.save(); err != nil {
		logger.Error("Failed to save stats after recording analysis", err)
	}
}

// GetStats returns a deep copy of current statistics
func (sm *StatsManager) GetStats() Stats {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	statsCopy := Stats{
		Providers: make(map[string]*ProviderStats, len(sm.stats.Providers)),
	}
	for name, ps := range sm.stats.Providers {
		c := *ps
		statsCopy.Providers[name] = &c
	}
	return statsCopy
}

// GetStatsJSON returns statistics as a JSON string (for D-Bus)
func (sm *StatsManager) GetStatsJSON() (string, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	data, err := json.Marshal(sm.stats)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stats to JSON: %w", err)
	}

	return string(data), nil
}

// Reset clears all statistics and persists empty state
func (sm *StatsManager) Reset() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.stats = Stats{
		Providers: make(map[string]*ProviderStats),
	}

	if err := sm.save(); err != nil {
		return fmt.Errorf("failed to save reset stats: %w", err)
	}

	return nil
}

func (sm *StatsManager) load() error {
	data, err := sm.files.LoadConfig(sm.filename)
	if err != nil {
		if errors.Is(err, fileops.ErrConfigNotFound) {
			logger.Debugf("Stats file not found, starting fresh: %s", sm.files.GetStatsPath())
			return nil
		}
		return fmt.Errorf("failed to read stats file: %w", err)
	}

	if err := json.Unmarshal(data, &sm.stats); err != nil {
		return fmt.Errorf("failed to unmarshal stats: %w", err)
	}

	if sm.stats.Providers == nil {
		sm.stats.Providers = make(map[string]*ProviderStats)
	}

	logger.Debugf("Loaded stats from %s", sm.files.GetStatsPath())
	return nil
}

func (sm *StatsManager) save() error {
	data, err := json.MarshalIndent(sm.stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := sm.files.SaveConfig(sm.filename, data); err != nil {
		return err
	}

	logger.Debugf("Saved stats to %s", sm.files.GetStatsPath())
	return nil
}
