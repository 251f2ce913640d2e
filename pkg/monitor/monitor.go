package monitor

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"netmon/pkg/profile"
)

// Exporter is the outbound interface to the export collaborator. It receives
// point-in-time record snapshots; file formats and paths are its concern.
type Exporter interface {
	Export(records []*Record) error
	ExportRecord(record *Record, records []*Record) error
}

// Monitor is the interception service object: one shared instance per
// process where needed, but with an explicit, injectable lifetime instead of
// a global singleton.
type Monitor struct {
	store     *Store
	gate      *Gate
	transport *Transport
	logger    *zap.Logger

	exporter      Exporter
	passiveExport atomic.Bool

	installMu    sync.Mutex
	installed    bool
	priorDefault http.RoundTripper
}

// Option customizes a Monitor.
type Option func(*options)

type options struct {
	base     http.RoundTripper
	exporter Exporter
}

// WithBaseTransport sets the transport real requests dispatch through. It
// must not route back through the monitor.
func WithBaseTransport(base http.RoundTripper) Option {
	return func(o *options) { o.base = base }
}

// WithExporter attaches the export collaborator.
func WithExporter(exporter Exporter) Option {
	return func(o *options) { o.exporter = exporter }
}

// New creates a Monitor. Interception stays inactive until StartMonitoring
// is called.
func New(logger *zap.Logger, opts ...Option) *Monitor {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := NewStore(logger)
	gate := NewGate(logger)

	m := &Monitor{
		store:     store,
		gate:      gate,
		transport: NewTransport(o.base, store, gate, logger),
		logger:    logger,
		exporter:  o.exporter,
	}

	return m
}

// StartMonitoring activates interception globally.
func (m *Monitor) StartMonitoring() {
	m.store.Subscribe(m)
	m.gate.Activate()
	m.logger.Info("Network monitoring started")
}

// StopMonitoring deactivates interception globally. Accumulated records are
// kept.
func (m *Monitor) StopMonitoring() {
	m.gate.Deactivate()
	m.logger.Info("Network monitoring stopped")
}

// IsMonitoring reports whether interception is active.
func (m *Monitor) IsMonitoring() bool {
	return m.gate.Active()
}

// Transport returns the interception hook as an http.RoundTripper.
func (m *Monitor) Transport() http.RoundTripper {
	return m.transport
}

// Client returns an http.Client whose requests pass through the monitor.
func (m *Monitor) Client() *http.Client {
	return &http.Client{Transport: m.transport}
}

// Wrap returns a RoundTripper that intercepts through this monitor's gate and
// store but dispatches real requests through the given base. Useful when a
// client already carries a customized transport.
func (m *Monitor) Wrap(base http.RoundTripper) http.RoundTripper {
	return NewTransport(base, m.store, m.gate, m.logger)
}

// InstallDefaultTransport splices the monitor into http.DefaultTransport so
// requests made through the default client are intercepted.
func (m *Monitor) InstallDefaultTransport() {
	m.installMu.Lock()
	defer m.installMu.Unlock()

	if m.installed {
		return
	}

	m.priorDefault = http.DefaultTransport
	http.DefaultTransport = m.transport
	m.installed = true
}

// UninstallDefaultTransport restores the transport that was in place before
// InstallDefaultTransport.
func (m *Monitor) UninstallDefaultTransport() {
	m.installMu.Lock()
	defer m.installMu.Unlock()

	if !m.installed {
		return
	}

	http.DefaultTransport = m.priorDefault
	m.priorDefault = nil
	m.installed = false
}

// RecordMediaPayload toggles whether image response bodies are retained
// (default true).
func (m *Monitor) RecordMediaPayload(enabled bool) {
	m.transport.SetRecordMediaPayload(enabled)
}

// Configure replaces the active profile set. A set with duplicate response
// identifiers across profiles is rejected with a DuplicateIdentifierError.
func (m *Monitor) Configure(profiles []*profile.Profile) error {
	if err := m.store.ConfigureProfiles(profiles); err != nil {
		return fmt.Errorf("failed to configure profiles: %w", err)
	}

	m.logger.Info("Profiles configured", zap.Int("count", len(profiles)))
	return nil
}

// ConfigureAdditional appends profiles to the active set.
func (m *Monitor) ConfigureAdditional(profiles ...*profile.Profile) error {
	combined := append(m.store.Profiles(), profiles...)
	return m.Configure(combined)
}

// Deconfigure removes a specific profile from the active set.
func (m *Monitor) Deconfigure(p *profile.Profile) error {
	var remaining []*profile.Profile
	for _, existing := range m.store.Profiles() {
		if existing != p {
			remaining = append(remaining, existing)
		}
	}
	return m.Configure(remaining)
}

// ResetProfiles removes all profiles.
func (m *Monitor) ResetProfiles() {
	// An empty set cannot fail validation.
	_ = m.Configure(nil)
}

// ConfigureIgnoredDomains sets the substrings whose presence in an absolute
// URL exempts a request from interception.
func (m *Monitor) ConfigureIgnoredDomains(domains []string) {
	m.gate.ConfigureIgnoredDomains(domains)
}

// Clear asynchronously resets records, usage counts and size totals. The
// completion fires after the store mutation and before observers are
// notified.
func (m *Monitor) Clear(completion func()) {
	go m.store.Clear(completion)
}

// Subscribe registers an observer for record-set updates; idempotent per
// observer identity.
func (m *Monitor) Subscribe(observer Observer) {
	m.store.Subscribe(observer)
}

// Unsubscribe removes an observer.
func (m *Monitor) Unsubscribe(observer Observer) {
	m.store.Unsubscribe(observer)
}

// Records returns a point-in-time copy of the accumulated records, sorted by
// start timestamp.
func (m *Monitor) Records() []*Record {
	return m.store.Snapshot()
}

// Profiles returns a copy of the active profile set.
func (m *Monitor) Profiles() []*profile.Profile {
	return m.store.Profiles()
}

// TotalRequestSize returns the sum of all recorded request payload sizes.
func (m *Monitor) TotalRequestSize() int64 {
	requestSize, _ := m.store.Totals()
	return requestSize
}

// TotalResponseSize returns the sum of all recorded response payload sizes.
func (m *Monitor) TotalResponseSize() int64 {
	_, responseSize := m.store.Totals()
	return responseSize
}

// UsageCount returns how many times the identified profile response has been
// served.
func (m *Monitor) UsageCount(identifier string) uint {
	return m.store.UsageCount(identifier)
}

// Store exposes the record store to collaborators that need direct snapshot
// access, such as the inspection server.
func (m *Monitor) Store() *Store {
	return m.store
}

// SetPassiveExport toggles automatic export once every record is concluded.
// Requires an exporter collaborator.
func (m *Monitor) SetPassiveExport(enabled bool) {
	m.passiveExport.Store(enabled)
}

// ExportRecordData hands the current record snapshot to the export
// collaborator.
func (m *Monitor) ExportRecordData() error {
	if m.exporter == nil {
		return fmt.Errorf("no exporter configured")
	}
	return m.exporter.Export(m.store.Snapshot())
}

// ExportData hands one record, plus the overall snapshot for context, to the
// export collaborator.
func (m *Monitor) ExportData(record *Record) error {
	if m.exporter == nil {
		return fmt.Errorf("no exporter configured")
	}
	return m.exporter.ExportRecord(record, m.store.Snapshot())
}

// RecordsUpdated implements Observer: when passive export is on and no
// record is left in flight, the snapshot is exported.
func (m *Monitor) RecordsUpdated(records []*Record) {
	if m.exporter == nil || !m.passiveExport.Load() {
		return
	}

	for _, record := range records {
		if record.Conclusion == nil {
			return
		}
	}

	if err := m.exporter.Export(records); err != nil {
		m.logger.Warn("Passive export failed", zap.Error(err))
	}
}

// ProfileFromRecord turns a completed network record into a static,
// unlimited profile serving the recorded response, enabling record-and-
// replay.
func ProfileFromRecord(record *Record) (*profile.Profile, error) {
	if record.Request == nil || record.Request.URL == "" {
		return nil, fmt.Errorf("record has no request URL")
	}

	completed, ok := record.Conclusion.(*Completed)
	if !ok || completed.Source != LoadSourceNetwork || completed.Response == nil {
		return nil, fmt.Errorf("record was not completed from the network")
	}

	return &profile.Profile{
		Request: profile.ProfileRequest{
			Pattern: profile.StaticPattern(record.Request.URL),
			Method:  record.Request.Method,
			Headers: record.Request.Headers,
			Body:    record.Request.Body,
		},
		Responses: []*profile.Response{{
			Identifier:    uuid.New().String(),
			StatusCode:    completed.Response.StatusCode,
			Headers:       completed.Response.Headers,
			Body:          completed.Body,
			Repeatability: profile.Unlimited(),
		}},
	}, nil
}
