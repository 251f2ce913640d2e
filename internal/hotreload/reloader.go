package hotreload

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"netmon/pkg/config"
	"netmon/pkg/profile"
)

// ProfileSink receives a freshly loaded profile set. The monitor implements
// it.
type ProfileSink interface {
	Configure(profiles []*profile.Profile) error
}

// ReloadResult represents the result of a reload operation
type ReloadResult struct {
	Success   bool
	Duration  time.Duration
	Error     error
	Timestamp time.Time
	Profiles  int
}

// ProfileReloader reloads the profile set whenever the profiles file
// changes. A file that fails to load or validate keeps the previous set in
// place.
type ProfileReloader struct {
	sink         ProfileSink
	profilesPath string
	seed         int64
	watcher      *FileWatcher
	logger       *zap.Logger
	config       *config.HotReloadConfig

	totalReloads   atomic.Int64
	successReloads atomic.Int64
	failedReloads  atomic.Int64
}

// NewProfileReloader creates a new profile reloader instance
func NewProfileReloader(sink ProfileSink, profilesPath string, cfg *config.Config, logger *zap.Logger) (*ProfileReloader, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if profilesPath == "" {
		return nil, fmt.Errorf("profiles path cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	debounceDelay := cfg.HotReload.DebounceDelay
	if debounceDelay == 0 {
		debounceDelay = 300 * time.Millisecond
	}

	watcher, err := NewFileWatcher(logger.With(zap.String("component", "file_watcher")), debounceDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &ProfileReloader{
		sink:         sink,
		profilesPath: profilesPath,
		seed:         cfg.Monitor.Seed,
		watcher:      watcher,
		logger:       logger.With(zap.String("component", "profile_reloader")),
		config:       &cfg.HotReload,
	}, nil
}

// Start starts watching the profiles file
func (pr *ProfileReloader) Start() error {
	if !pr.config.Enabled {
		pr.logger.Info("Hot reload is disabled")
		return nil
	}

	if err := pr.watcher.AddPath(pr.profilesPath); err != nil {
		return fmt.Errorf("failed to watch profiles file: %w", err)
	}

	if err := pr.watcher.Start(pr.onFileEvent); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	pr.logger.Info("Hot reload started", zap.String("profiles_path", pr.profilesPath))
	return nil
}

// Stop stops the reloader
func (pr *ProfileReloader) Stop() error {
	return pr.watcher.Stop()
}

// Stats returns total, successful and failed reload counts
func (pr *ProfileReloader) Stats() (total, success, failed int64) {
	return pr.totalReloads.Load(), pr.successReloads.Load(), pr.failedReloads.Load()
}

func (pr *ProfileReloader) onFileEvent(event FileEvent) {
	if event.Removed {
		pr.logger.Warn("Profiles file removed, keeping current profile set",
			zap.String("path", event.Path))
		return
	}

	result := pr.reload()
	pr.logReloadResult(result)
}

func (pr *ProfileReloader) reload() ReloadResult {
	start := time.Now()
	pr.totalReloads.Add(1)

	profiles, err := profile.LoadFile(pr.profilesPath, pr.seed)
	if err != nil {
		pr.failedReloads.Add(1)
		return ReloadResult{
			Duration:  time.Since(start),
			Error:     fmt.Errorf("failed to load profiles: %w", err),
			Timestamp: time.Now(),
		}
	}

	if err := pr.sink.Configure(profiles); err != nil {
		pr.failedReloads.Add(1)
		return ReloadResult{
			Duration:  time.Since(start),
			Error:     fmt.Errorf("failed to configure profiles: %w", err),
			Timestamp: time.Now(),
		}
	}

	pr.successReloads.Add(1)
	return ReloadResult{
		Success:   true,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
		Profiles:  len(profiles),
	}
}

func (pr *ProfileReloader) logReloadResult(result ReloadResult) {
	if result.Success {
		pr.logger.Info("Profiles reloaded",
			zap.Int("profiles", result.Profiles),
			zap.Duration("duration", result.Duration))
		return
	}

	pr.logger.Error("Profile reload failed, previous set kept",
		zap.Error(result.Error),
		zap.Duration("duration", result.Duration))
}
