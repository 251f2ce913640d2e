package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"netmon/pkg/config"
	"netmon/pkg/monitor"
)

func concludedRecord(key string, start time.Time) *monitor.Record {
	record := &monitor.Record{
		Key: key,
		Request: &monitor.RequestSnapshot{
			Method: "GET",
			URL:    "https://a.test/" + key,
		},
		StartTimestamp: start,
		EndTimestamp:   start.Add(120 * time.Millisecond),
		RequestSize:    10,
		ResponseSize:   20,
	}
	record.Conclusion = &monitor.Completed{
		Source:   monitor.LoadSourceNetwork,
		Response: &monitor.ResponseMeta{StatusCode: 200},
	}
	return record
}

func newTestExporter(t *testing.T, setting string, count int) (*FileExporter, string) {
	t.Helper()
	dir := t.TempDir()
	exporter, err := NewFileExporter(&config.ExportConfig{
		Directory: dir,
		Setting:   setting,
		Count:     count,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return exporter, dir
}

func TestParseSetting(t *testing.T) {
	tests := []struct {
		value   string
		want    Setting
		wantErr bool
	}{
		{value: "", want: SettingUnlimited},
		{value: "unlimited", want: SettingUnlimited},
		{value: "first", want: SettingFirst},
		{value: "last", want: SettingLast},
		{value: "everything", wantErr: true},
	}

	for _, tt := range tests {
		setting, err := ParseSetting(tt.value)
		if tt.wantErr {
			assert.Error(t, err, tt.value)
			continue
		}
		require.NoError(t, err, tt.value)
		assert.Equal(t, tt.want, setting, tt.value)
	}
}

func TestNewFileExporterErrors(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewFileExporter(&config.ExportConfig{}, logger)
	assert.Error(t, err, "empty directory")

	_, err = NewFileExporter(&config.ExportConfig{Directory: t.TempDir(), Setting: "bogus"}, logger)
	assert.Error(t, err, "unknown setting")
}

func TestExportWritesContainer(t *testing.T) {
	exporter, dir := newTestExporter(t, "unlimited", 0)

	start := time.Now().Add(-time.Second)
	records := []*monitor.Record{
		concludedRecord("one", start),
		concludedRecord("two", start.Add(10*time.Millisecond)),
	}

	require.NoError(t, exporter.Export(records))

	container, err := ReadContainer(filepath.Join(dir, "records.json"))
	require.NoError(t, err)
	require.Len(t, container.Records, 2)

	first := container.Records[0]
	assert.Equal(t, "one", first.Identifier)
	assert.Equal(t, "GET", first.Request.Method)
	assert.Equal(t, "https://a.test/one", first.Request.URL)
	assert.Equal(t, "Completed: 200", first.Conclusion)
	assert.Equal(t, int64(10), first.RequestSize)
	assert.Equal(t, int64(20), first.ResponseSize)
	require.NotNil(t, first.TimeSpent)
	assert.InDelta(t, 0.12, *first.TimeSpent, 0.001)
}

func TestExportInFlightRecord(t *testing.T) {
	exporter, dir := newTestExporter(t, "unlimited", 0)

	record := &monitor.Record{
		Key:            "pending",
		Request:        &monitor.RequestSnapshot{Method: "GET", URL: "https://a.test/pending"},
		StartTimestamp: time.Now(),
	}

	require.NoError(t, exporter.Export([]*monitor.Record{record}))

	container, err := ReadContainer(filepath.Join(dir, "records.json"))
	require.NoError(t, err)
	require.Len(t, container.Records, 1)

	envelope := container.Records[0]
	assert.Equal(t, "-", envelope.Conclusion)
	assert.Nil(t, envelope.EndedAt)
	assert.Nil(t, envelope.TimeSpent)
}

func TestExportTrimSettings(t *testing.T) {
	start := time.Now()
	records := []*monitor.Record{
		concludedRecord("one", start),
		concludedRecord("two", start.Add(time.Millisecond)),
		concludedRecord("three", start.Add(2*time.Millisecond)),
	}

	tests := []struct {
		name    string
		setting string
		count   int
		want    []string
	}{
		{name: "unlimited_keeps_all", setting: "unlimited", want: []string{"one", "two", "three"}},
		{name: "first_two", setting: "first", count: 2, want: []string{"one", "two"}},
		{name: "last_two", setting: "last", count: 2, want: []string{"two", "three"}},
		{name: "count_larger_than_set", setting: "first", count: 10, want: []string{"one", "two", "three"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter, dir := newTestExporter(t, tt.setting, tt.count)
			require.NoError(t, exporter.Export(records))

			container, err := ReadContainer(filepath.Join(dir, "records.json"))
			require.NoError(t, err)

			var keys []string
			for _, envelope := range container.Records {
				keys = append(keys, envelope.Identifier)
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestExportDebounceLatestSnapshotWins(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewFileExporter(&config.ExportConfig{
		Directory:     dir,
		DebounceDelay: 50 * time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, exporter.Export([]*monitor.Record{concludedRecord("stale", start)}))
	require.NoError(t, exporter.Export([]*monitor.Record{
		concludedRecord("fresh-one", start),
		concludedRecord("fresh-two", start.Add(time.Millisecond)),
	}))

	path := filepath.Join(dir, "records.json")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing is written before the debounce fires")

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	container, err := ReadContainer(path)
	require.NoError(t, err)
	require.Len(t, container.Records, 2)
	assert.Equal(t, "fresh-one", container.Records[0].Identifier)
}

func TestExportRecordWritesDetailFile(t *testing.T) {
	exporter, dir := newTestExporter(t, "unlimited", 0)

	record := concludedRecord("solo", time.Now())
	require.NoError(t, exporter.ExportRecord(record, []*monitor.Record{record}))

	data, err := os.ReadFile(filepath.Join(dir, "record-solo.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"identifier": "solo"`)

	// The snapshot file is written alongside the detail file.
	_, err = os.Stat(filepath.Join(dir, "records.json"))
	assert.NoError(t, err)
}

func TestFlushWritesPendingImmediately(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewFileExporter(&config.ExportConfig{
		Directory:     dir,
		DebounceDelay: time.Hour,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, exporter.Export([]*monitor.Record{concludedRecord("one", time.Now())}))
	exporter.Flush()

	container, err := ReadContainer(filepath.Join(dir, "records.json"))
	require.NoError(t, err)
	assert.Len(t, container.Records, 1)
}
