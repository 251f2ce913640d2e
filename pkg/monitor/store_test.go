package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"netmon/pkg/profile"
)

func testRecord(key string, requestSize int64) *Record {
	return &Record{
		Key: key,
		Request: &RequestSnapshot{
			Method: "GET",
			URL:    "https://a.test/" + key,
		},
		StartTimestamp: time.Now(),
		RequestSize:    requestSize,
	}
}

func TestStoreSetRecordUpsert(t *testing.T) {
	store := NewStore(zaptest.NewLogger(t))

	store.SetRecord(testRecord("one", 10))
	store.SetRecord(testRecord("two", 5))

	requestSize, responseSize := store.Totals()
	assert.Equal(t, int64(15), requestSize)
	assert.Equal(t, int64(0), responseSize)

	// Re-inserting the same key must not double-count its size.
	store.SetRecord(testRecord("one", 20))

	requestSize, _ = store.Totals()
	assert.Equal(t, int64(25), requestSize)
	assert.Len(t, store.Snapshot(), 2)
}

func TestStoreRecordReturnsCopy(t *testing.T) {
	store := NewStore(zaptest.NewLogger(t))
	store.SetRecord(testRecord("one", 10))

	copied := store.Record("one")
	require.NotNil(t, copied)
	copied.RequestSize = 999

	assert.Equal(t, int64(10), store.Record("one").RequestSize)
	assert.Nil(t, store.Record("missing"))
}

func TestStoreConcludeWritesOnce(t *testing.T) {
	store := NewStore(zaptest.NewLogger(t))
	store.SetRecord(testRecord("one", 10))

	first := &Completed{Source: LoadSourceProfile, Response: &ResponseMeta{StatusCode: 200}}
	second := &Completed{Source: LoadSourceNetwork, Response: &ResponseMeta{StatusCode: 500}}

	assert.True(t, store.Conclude("one", 42, first))
	assert.False(t, store.Conclude("one", 7, second))

	record := store.Record("one")
	require.NotNil(t, record.Conclusion)
	assert.Same(t, first, record.Conclusion)
	assert.Equal(t, int64(42), record.ResponseSize)
	assert.False(t, record.EndTimestamp.IsZero())

	spent, concluded := record.TimeSpent()
	assert.True(t, concluded)
	assert.GreaterOrEqual(t, spent, time.Duration(0))
}

func TestStoreConcludeUnknownKey(t *testing.T) {
	store := NewStore(zaptest.NewLogger(t))
	assert.False(t, store.Conclude("missing", 0, &ClientError{}))
}

func TestStoreConcludeConcurrentOnlyOneLands(t *testing.T) {
	store := NewStore(zaptest.NewLogger(t))
	store.SetRecord(testRecord("one", 0))

	const attempts = 32
	applied := make(chan bool, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied <- store.Conclude("one", 1, &ClientError{})
		}()
	}
	wg.Wait()
	close(applied)

	wins := 0
	for ok := range applied {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestStoreClear(t *testing.T) {
	store := NewStore(zaptest.NewLogger(t))
	store.SetRecord(testRecord("one", 10))
	store.Conclude("one", 20, &Completed{Response: &ResponseMeta{StatusCode: 200}})
	store.BumpUsage("response-id")

	var order []string
	observer := NewFuncObserver(func(records []*Record) {
		if len(records) == 0 {
			order = append(order, "notify")
		}
	})
	store.Subscribe(observer)

	store.Clear(func() { order = append(order, "done") })

	// The completion fires after the mutation and before observers hear of it.
	assert.Equal(t, []string{"done", "notify"}, order)

	assert.Empty(t, store.Snapshot())
	assert.Zero(t, store.UsageCount("response-id"))
	requestSize, responseSize := store.Totals()
	assert.Zero(t, requestSize)
	assert.Zero(t, responseSize)

	// Clearing an empty store is a no-op that still completes.
	cleared := false
	store.Clear(func() { cleared = true })
	assert.True(t, cleared)
}

func TestStoreConfigureProfilesRejectsDuplicates(t *testing.T) {
	store := NewStore(zaptest.NewLogger(t))

	valid := []*profile.Profile{{
		Request:   profile.ProfileRequest{Pattern: profile.StaticPattern("https://a.test/x"), Method: "GET"},
		Responses: []*profile.Response{{Identifier: "a"}},
	}}
	require.NoError(t, store.ConfigureProfiles(valid))

	invalid := []*profile.Profile{
		{Responses: []*profile.Response{{Identifier: "dup"}}},
		{Responses: []*profile.Response{{Identifier: "dup"}}},
	}

	err := store.ConfigureProfiles(invalid)
	require.Error(t, err)
	var dup *profile.DuplicateIdentifierError
	assert.ErrorAs(t, err, &dup)

	// The previous set stays in place.
	profiles := store.Profiles()
	require.Len(t, profiles, 1)
	assert.Equal(t, "a", profiles[0].Responses[0].Identifier)
}

func TestStoreResolveAndClaimBumpsUsage(t *testing.T) {
	store := NewStore(zaptest.NewLogger(t))
	require.NoError(t, store.ConfigureProfiles([]*profile.Profile{{
		Request:   profile.ProfileRequest{Pattern: profile.StaticPattern("https://a.test/x"), Method: "GET"},
		Responses: []*profile.Response{{Identifier: "resp", Repeatability: profile.Limited(2)}},
	}}))

	prospect := profile.Prospect{Method: "GET", URL: "https://a.test/x"}

	outcome := store.ResolveAndClaim(prospect)
	assert.Equal(t, profile.MatchedProfileAndResponse, outcome.Kind)
	assert.Equal(t, uint(1), store.UsageCount("resp"))

	outcome = store.ResolveAndClaim(prospect)
	assert.Equal(t, profile.MatchedProfileAndResponse, outcome.Kind)

	// Third claim finds the response exhausted.
	outcome = store.ResolveAndClaim(prospect)
	assert.Equal(t, profile.NoAvailableProfileResponse, outcome.Kind)
	assert.Equal(t, uint(2), store.UsageCount("resp"))
}

func TestStoreResolveAndClaimConcurrentNeverOverclaims(t *testing.T) {
	store := NewStore(zaptest.NewLogger(t))

	const maxUses = 5
	require.NoError(t, store.ConfigureProfiles([]*profile.Profile{{
		Request:   profile.ProfileRequest{Pattern: profile.StaticPattern("https://a.test/x"), Method: "GET"},
		Responses: []*profile.Response{{Identifier: "resp", Repeatability: profile.Limited(maxUses)}},
	}}))

	prospect := profile.Prospect{Method: "GET", URL: "https://a.test/x"}

	const claimers = 40
	outcomes := make(chan profile.OutcomeKind, claimers)

	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- store.ResolveAndClaim(prospect).Kind
		}()
	}
	wg.Wait()
	close(outcomes)

	matched := 0
	for kind := range outcomes {
		if kind == profile.MatchedProfileAndResponse {
			matched++
		}
	}
	assert.Equal(t, maxUses, matched)
	assert.Equal(t, uint(maxUses), store.UsageCount("resp"))
}

func TestStoreSnapshotSortedByStart(t *testing.T) {
	store := NewStore(zaptest.NewLogger(t))

	early := testRecord("early", 0)
	early.StartTimestamp = time.Now().Add(-time.Minute)
	late := testRecord("late", 0)

	store.SetRecord(late)
	store.SetRecord(early)

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "early", snapshot[0].Key)
	assert.Equal(t, "late", snapshot[1].Key)
}
