package monitor

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"netmon/pkg/profile"
)

// Store is the thread-safe keyed collection of request records, the active
// profile set and the response usage map. All mutation is serialized through
// a single critical section; reads hand out point-in-time copies, never live
// handles to internals.
type Store struct {
	mu sync.Mutex

	records  map[string]*Record
	profiles []*profile.Profile
	usage    map[string]uint

	totalRequestSize  int64
	totalResponseSize int64

	bus    *observerBus
	logger *zap.Logger
}

// NewStore creates an empty record store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		records: make(map[string]*Record),
		usage:   make(map[string]uint),
		bus:     newObserverBus(),
		logger:  logger,
	}
}

// SetRecord upserts a record by key. Size totals are recomputed from the
// full record set, so repeated upserts for one key never double-count.
func (s *Store) SetRecord(record *Record) {
	s.mu.Lock()
	s.records[record.Key] = record.clone()
	s.recomputeTotals()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.bus.notify(snapshot)
}

// Conclude writes the terminal outcome of a record exactly once. A second
// attempt for the same key is a no-op; redirect and completion handling may
// race for the same record and only the first write lands. Returns whether
// the conclusion was applied.
func (s *Store) Conclude(key string, responseSize int64, conclusion Conclusion) bool {
	s.mu.Lock()

	record, ok := s.records[key]
	if !ok || record.Conclusion != nil {
		s.mu.Unlock()
		return false
	}

	record.EndTimestamp = time.Now()
	record.Conclusion = conclusion
	record.ResponseSize = responseSize
	s.recomputeTotals()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.bus.notify(snapshot)
	return true
}

// Record returns a copy of the record for the given key, or nil.
func (s *Store) Record(key string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return nil
	}
	return record.clone()
}

// Snapshot returns a consistent point-in-time copy of all records, sorted by
// start timestamp.
func (s *Store) Snapshot() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Clear atomically empties the records, the usage map and both size totals.
// done, when non-nil, fires after the mutation and before observers are
// notified.
func (s *Store) Clear(done func()) {
	s.mu.Lock()
	s.records = make(map[string]*Record)
	s.usage = make(map[string]uint)
	s.totalRequestSize = 0
	s.totalResponseSize = 0
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if done != nil {
		done()
	}
	s.bus.notify(snapshot)
}

// ConfigureProfiles replaces the active profile set wholesale. The set is
// validated for globally unique response identifiers first; an invalid set
// leaves the previous one in place.
func (s *Store) ConfigureProfiles(profiles []*profile.Profile) error {
	if err := profile.Validate(profiles); err != nil {
		return err
	}

	s.mu.Lock()
	s.profiles = make([]*profile.Profile, len(profiles))
	copy(s.profiles, profiles)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.bus.notify(snapshot)
	return nil
}

// Profiles returns a copy of the active profile set.
func (s *Store) Profiles() []*profile.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles := make([]*profile.Profile, len(s.profiles))
	copy(profiles, s.profiles)
	return profiles
}

// ResolveAndClaim runs profile resolution for the prospect and, on a match,
// bumps the chosen response's usage counter before releasing the critical
// section. The read of the usage map and the increment are atomic, so a
// limited response can never be claimed past its cap by concurrent requests.
func (s *Store) ResolveAndClaim(prospect profile.Prospect) profile.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := profile.Resolve(s.profiles, prospect, func(response *profile.Response) bool {
		maxUses, limited := response.Repeatability.MaxUses()
		if !limited {
			return true
		}
		return s.usage[response.Identifier] < maxUses
	})

	if outcome.Kind == profile.MatchedProfileAndResponse {
		s.usage[outcome.Response.Identifier]++
	}

	return outcome
}

// BumpUsage increments the use count for a response identifier, defaulting
// absent entries to zero first.
func (s *Store) BumpUsage(identifier string) {
	s.mu.Lock()
	s.usage[identifier]++
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.bus.notify(snapshot)
}

// UsageCount returns the use count recorded for a response identifier.
func (s *Store) UsageCount(identifier string) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[identifier]
}

// Totals returns the running request and response payload size sums.
func (s *Store) Totals() (requestSize, responseSize int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalRequestSize, s.totalResponseSize
}

// Subscribe registers an observer for record-set changes. Subscribing the
// same observer twice is a no-op.
func (s *Store) Subscribe(observer Observer) {
	s.bus.subscribe(observer)
}

// Unsubscribe removes an observer.
func (s *Store) Unsubscribe(observer Observer) {
	s.bus.unsubscribe(observer)
}

// recomputeTotals derives both size totals from the full record set. Chosen
// over incremental sums for correctness under record re-insertion.
func (s *Store) recomputeTotals() {
	var requestSize, responseSize int64
	for _, record := range s.records {
		requestSize += record.RequestSize
		responseSize += record.ResponseSize
	}
	s.totalRequestSize = requestSize
	s.totalResponseSize = responseSize
}

func (s *Store) snapshotLocked() []*Record {
	snapshot := make([]*Record, 0, len(s.records))
	for _, record := range s.records {
		snapshot = append(snapshot, record.clone())
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].StartTimestamp.Before(snapshot[j].StartTimestamp)
	})
	return snapshot
}
