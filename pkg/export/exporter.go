package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"netmon/pkg/config"
	"netmon/pkg/monitor"
)

// Setting selects which records an export run keeps.
type Setting int

const (
	// SettingUnlimited exports every record.
	SettingUnlimited Setting = iota
	// SettingFirst exports the first N records.
	SettingFirst
	// SettingLast exports the last N records.
	SettingLast
)

// ParseSetting maps a configuration string onto a Setting.
func ParseSetting(value string) (Setting, error) {
	switch value {
	case "", "unlimited":
		return SettingUnlimited, nil
	case "first":
		return SettingFirst, nil
	case "last":
		return SettingLast, nil
	default:
		return SettingUnlimited, fmt.Errorf("unknown export setting: %s", value)
	}
}

// FileExporter writes record snapshots to JSON files under a run directory.
// Snapshot exports are debounced so bursts of record mutations collapse into
// one write.
type FileExporter struct {
	directory     string
	setting       Setting
	count         int
	debounceDelay time.Duration

	mu      sync.Mutex
	queued  bool
	pending []*monitor.Record

	logger *zap.Logger
}

// NewFileExporter creates an exporter from configuration. The run directory
// is created eagerly so permission problems surface at construction time.
func NewFileExporter(cfg *config.ExportConfig, logger *zap.Logger) (*FileExporter, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("export directory cannot be empty")
	}

	setting, err := ParseSetting(cfg.Setting)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	return &FileExporter{
		directory:     cfg.Directory,
		setting:       setting,
		count:         cfg.Count,
		debounceDelay: cfg.DebounceDelay,
		logger:        logger,
	}, nil
}

// Export writes the record snapshot to records.json, debounced by the
// configured delay. The most recent snapshot handed in before the write
// fires wins.
func (e *FileExporter) Export(records []*monitor.Record) error {
	e.mu.Lock()
	e.pending = records
	if e.queued {
		e.mu.Unlock()
		return nil
	}
	e.queued = true
	e.mu.Unlock()

	if e.debounceDelay <= 0 {
		e.flush()
		return nil
	}

	time.AfterFunc(e.debounceDelay, e.flush)
	return nil
}

// ExportRecord writes one record's detail file alongside the snapshot.
func (e *FileExporter) ExportRecord(record *monitor.Record, records []*monitor.Record) error {
	detail := envelope(record)
	path := filepath.Join(e.directory, fmt.Sprintf("record-%s.json", record.Key))

	if err := e.writeJSON(path, detail); err != nil {
		return fmt.Errorf("failed to export record %s: %w", record.Key, err)
	}

	e.logger.Debug("Exported record detail",
		zap.String("key", record.Key),
		zap.String("path", path))

	return e.Export(records)
}

// Flush writes any pending snapshot immediately. Useful at shutdown. A
// debounce timer that fires afterwards finds nothing pending and is a no-op.
func (e *FileExporter) Flush() {
	e.flush()
}

func (e *FileExporter) flush() {
	e.mu.Lock()
	records := e.pending
	e.pending = nil
	e.queued = false
	e.mu.Unlock()

	if records == nil {
		return
	}

	trimmed := e.trim(records)
	container := Container{
		ExportedAt: time.Now(),
		Records:    make([]RecordEnvelope, 0, len(trimmed)),
	}
	for _, record := range trimmed {
		container.Records = append(container.Records, envelope(record))
	}

	path := filepath.Join(e.directory, "records.json")
	if err := e.writeJSON(path, container); err != nil {
		e.logger.Warn("Failed to export records", zap.Error(err))
		return
	}

	e.logger.Debug("Exported records",
		zap.Int("count", len(container.Records)),
		zap.String("path", path))
}

// trim applies the first/last setting to the snapshot.
func (e *FileExporter) trim(records []*monitor.Record) []*monitor.Record {
	switch e.setting {
	case SettingFirst:
		if len(records) > e.count {
			return records[:e.count]
		}
	case SettingLast:
		if len(records) > e.count {
			return records[len(records)-e.count:]
		}
	}
	return records
}

func (e *FileExporter) writeJSON(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	return nil
}
