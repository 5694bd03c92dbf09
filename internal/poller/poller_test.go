package poller

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cumodsquad/squadbot/internal/classify"
	"github.com/cumodsquad/squadbot/internal/watermark"
	"github.com/cumodsquad/squadbot/pkg/types"
)

var epoch = time.Date(2007, 10, 1, 0, 0, 0, 0, time.UTC)

type fakeAnnouncer struct {
	mu     sync.Mutex
	events []types.ClassifiedEvent
}

func (f *fakeAnnouncer) Announce(ev types.ClassifiedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeAnnouncer) categories() []types.Category {
	f.mu.Lock()
	defer f.mu.Unlock()
	cats := make([]types.Category, 0, len(f.events))
	for _, ev := range f.events {
		cats = append(cats, ev.Category)
	}
	return cats
}

func newTestStore(t *testing.T) *watermark.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watermarks.json")
	store, err := watermark.NewStore(path, map[string]time.Time{
		classify.KeyIssues:  epoch,
		classify.KeyPRs:     epoch,
		classify.KeyActions: epoch,
	}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func issueRecord(id string, created, updated time.Time) types.RawActivityRecord {
	return types.RawActivityRecord{
		Source:    types.SourceGithub,
		Actor:     "octocat",
		SubjectID: id,
		URL:       "https://github.com/cumodsquad/ui/issues/" + id,
		RepoName:  "cumodsquad/ui",
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

func staticCollection(name string, recs ...types.RawActivityRecord) Collection {
	return Collection{
		Name: name,
		Fetch: func(context.Context) ([]types.RawActivityRecord, error) {
			return recs, nil
		},
	}
}

func newTestPoller(store *watermark.Store, announcer Announcer, ignores []string, colls ...Collection) *Poller {
	return New("github", colls, store, announcer, ignores, time.Second, time.Second, zap.NewNop())
}

func TestFirstRunCatchesUpWithoutAnnouncing(t *testing.T) {
	store := newTestStore(t)
	announcer := &fakeAnnouncer{}

	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p := newTestPoller(store, announcer, nil, staticCollection("org", issueRecord("1", t1, t1)))
	p.poll(context.Background())

	assert.Empty(t, announcer.events)
	assert.Equal(t, t1, store.Get(classify.KeyIssues))

	// A genuinely new item on the next cycle is announced exactly once.
	t2 := t1.Add(time.Hour)
	p2 := newTestPoller(store, announcer, nil, staticCollection("org", issueRecord("2", t2, t2)))
	p2.poll(context.Background())

	require.Len(t, announcer.events, 1)
	assert.Equal(t, types.CategoryIssueOpened, announcer.events[0].Category)
	assert.Equal(t, t2, store.Get(classify.KeyIssues))
}

func TestAnnouncementsIdenticalUnderRechunking(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	recs := []types.RawActivityRecord{
		issueRecord("1", t0, t0),
		issueRecord("2", t0, t0.Add(time.Minute)),
		issueRecord("3", t0, t0.Add(2*time.Minute)),
		issueRecord("4", t0, t0.Add(3*time.Minute)),
	}

	runChunks := func(chunks [][]types.RawActivityRecord) []types.Category {
		store := newTestStore(t)
		// Move the watermark off the epoch so announcements are live.
		require.NoError(t, store.Advance(classify.KeyIssues, t0.Add(-time.Hour)))

		announcer := &fakeAnnouncer{}
		for _, chunk := range chunks {
			p := newTestPoller(store, announcer, nil, staticCollection("org", chunk...))
			p.poll(context.Background())
		}
		return announcer.categories()
	}

	oneCycle := runChunks([][]types.RawActivityRecord{recs})
	twoCycles := runChunks([][]types.RawActivityRecord{recs[:2], recs[2:]})
	fourCycles := runChunks([][]types.RawActivityRecord{
		{recs[0]}, {recs[1]}, {recs[2]}, {recs[3]},
	})

	assert.Equal(t, oneCycle, twoCycles)
	assert.Equal(t, oneCycle, fourCycles)
}

func TestRedeliveredRecordsAreFiltered(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t)
	require.NoError(t, store.Advance(classify.KeyIssues, t0.Add(-time.Hour)))

	announcer := &fakeAnnouncer{}
	rec := issueRecord("1", t0, t0)

	p := newTestPoller(store, announcer, nil, staticCollection("org", rec))
	p.poll(context.Background())
	p.poll(context.Background())

	assert.Len(t, announcer.events, 1)
}

func TestIgnoredActorsAreSkipped(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t)
	require.NoError(t, store.Advance(classify.KeyIssues, t0.Add(-time.Hour)))

	announcer := &fakeAnnouncer{}
	rec := issueRecord("1", t0, t0)
	rec.Actor = "Review-Ninja"

	p := newTestPoller(store, announcer, []string{"review-ninja"}, staticCollection("org", rec))
	p.poll(context.Background())

	assert.Empty(t, announcer.events)
	// Skipped records do not advance the watermark either.
	assert.Equal(t, t0.Add(-time.Hour), store.Get(classify.KeyIssues))
}

func TestFailingCollectionDoesNotLoseOthers(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t)
	require.NoError(t, store.Advance(classify.KeyIssues, t0.Add(-time.Hour)))

	announcer := &fakeAnnouncer{}
	failing := Collection{
		Name: "broken-org",
		Fetch: func(context.Context) ([]types.RawActivityRecord, error) {
			return nil, errors.New("rate limited")
		},
	}

	p := newTestPoller(store, announcer, nil,
		failing,
		staticCollection("org", issueRecord("1", t0, t0)),
	)
	p.poll(context.Background())

	assert.Len(t, announcer.events, 1)
}

func TestSameSubjectAndCategoryEmitsOnce(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t)
	require.NoError(t, store.Advance(classify.KeyIssues, t0.Add(-time.Hour)))

	first := issueRecord("1", t0.Add(-2*time.Hour), t0)
	first.Actor = "alice"
	second := issueRecord("1", t0.Add(-2*time.Hour), t0.Add(time.Minute))
	second.Actor = "bob"

	announcer := &fakeAnnouncer{}
	p := newTestPoller(store, announcer, nil, staticCollection("org", first, second))
	p.poll(context.Background())

	require.Len(t, announcer.events, 1)
	// The later record's text wins.
	assert.Contains(t, announcer.events[0].DisplayText, "bob")
	assert.Equal(t, t0.Add(time.Minute), store.Get(classify.KeyIssues))
}

func TestOpenedThenCommentedInOneCycle(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t)
	require.NoError(t, store.Advance(classify.KeyIssues, t0.Add(-time.Hour)))

	opened := issueRecord("1", t0, t0)
	commented := issueRecord("1", t0, t0.Add(time.Minute))
	commented.IsComment = true

	announcer := &fakeAnnouncer{}
	// Delivered newest-first; the cycle must reorder oldest-first.
	p := newTestPoller(store, announcer, nil, staticCollection("org", commented, opened))
	p.poll(context.Background())

	require.Equal(t, []types.Category{
		types.CategoryIssueOpened,
		types.CategoryIssueCommented,
	}, announcer.categories())
	assert.Equal(t, t0.Add(time.Minute), store.Get(classify.KeyIssues))
}

func TestIndependentWatermarksPerCategory(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newTestStore(t)
	require.NoError(t, store.Advance(classify.KeyIssues, t0.Add(-time.Hour)))
	// KeyPRs stays at the epoch: PR events catch up silently while issue
	// events announce.

	issue := issueRecord("1", t0, t0)
	pr := issueRecord("2", t0, t0)
	pr.IsPullRequest = true

	announcer := &fakeAnnouncer{}
	p := newTestPoller(store, announcer, nil, staticCollection("org", issue, pr))
	p.poll(context.Background())

	require.Len(t, announcer.events, 1)
	assert.Equal(t, types.CategoryIssueOpened, announcer.events[0].Category)
	assert.Equal(t, t0, store.Get(classify.KeyPRs))
}
