package mediagroup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type committedPost struct {
	photos  []string
	caption string
}

type memoryStore struct {
	mu    sync.Mutex
	posts []committedPost
	err   error
}

func (s *memoryStore) CreatePost(_ context.Context, photos []string, caption string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.posts = append(s.posts, committedPost{photos: photos, caption: caption})
	return int64(len(s.posts)), nil
}

func (s *memoryStore) committed() []committedPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]committedPost(nil), s.posts...)
}

// manualScheduler records scheduled callbacks so tests decide when windows elapse.
type manualScheduler struct {
	delays []time.Duration
	funcs  []func()
}

func (m *manualScheduler) schedule(d time.Duration, f func()) *time.Timer {
	m.delays = append(m.delays, d)
	m.funcs = append(m.funcs, f)
	return nil
}

func (m *manualScheduler) fireAll() {
	funcs := m.funcs
	m.funcs = nil
	for _, f := range funcs {
		f()
	}
}

func newTestAggregator(store Store) (*Aggregator, *manualScheduler) {
	sched := &manualScheduler{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAggregator(store, logger, WithScheduler(sched.schedule)), sched
}

func TestStandalonePhotoCommitsImmediately(t *testing.T) {
	store := &memoryStore{}
	agg, sched := newTestAggregator(store)

	var result Result
	agg.Observe(context.Background(), Photo{Ref: "p.jpg", Done: func(r Result) { result = r }})

	require.Len(t, store.committed(), 1)
	assert.Equal(t, committedPost{photos: []string{"p.jpg"}, caption: ""}, store.committed()[0])
	assert.Empty(t, sched.funcs)
	assert.Zero(t, agg.Pending())
	assert.Equal(t, int64(1), result.PostID)
	assert.NoError(t, result.Err)
}

func TestSinglePhotoGroupIsNotCommitted(t *testing.T) {
	store := &memoryStore{}
	agg, sched := newTestAggregator(store)

	agg.Observe(context.Background(), Photo{GroupID: "G", Ref: "p1.jpg", Caption: "cap"})
	sched.fireAll()

	assert.Empty(t, store.committed())
	assert.Equal(t, 1, agg.Pending())
}

func TestGroupCommitsAllPhotosInArrivalOrder(t *testing.T) {
	store := &memoryStore{}
	agg, sched := newTestAggregator(store)
	ctx := context.Background()

	var results []Result
	done := func(r Result) { results = append(results, r) }

	agg.Observe(ctx, Photo{GroupID: "G1", Ref: "p1.jpg", Caption: "cap", Done: done})
	agg.Observe(ctx, Photo{GroupID: "G1", Ref: "p2.jpg", Done: done})
	agg.Observe(ctx, Photo{GroupID: "G1", Ref: "p3.jpg", Caption: "later", Done: done})

	require.Len(t, sched.funcs, 1)
	assert.Equal(t, DefaultWindow, sched.delays[0])
	assert.Empty(t, store.committed())

	sched.fireAll()

	require.Len(t, store.committed(), 1)
	assert.Equal(t, committedPost{photos: []string{"p1.jpg", "p2.jpg", "p3.jpg"}, caption: "cap"}, store.committed()[0])
	assert.Zero(t, agg.Pending())

	require.Len(t, results, 1)
	assert.Equal(t, "G1", results[0].GroupID)
}

func TestCaptionTakenFromFirstEventThatHasOne(t *testing.T) {
	store := &memoryStore{}
	agg, sched := newTestAggregator(store)
	ctx := context.Background()

	agg.Observe(ctx, Photo{GroupID: "G", Ref: "p1.jpg"})
	agg.Observe(ctx, Photo{GroupID: "G", Ref: "p2.jpg", Caption: "second"})
	agg.Observe(ctx, Photo{GroupID: "G", Ref: "p3.jpg", Caption: "third"})
	sched.fireAll()

	require.Len(t, store.committed(), 1)
	assert.Equal(t, "second", store.committed()[0].caption)
}

func TestReusedGroupIDStartsFreshGroup(t *testing.T) {
	store := &memoryStore{}
	agg, sched := newTestAggregator(store)
	ctx := context.Background()

	agg.Observe(ctx, Photo{GroupID: "G", Ref: "a1.jpg", Caption: "first"})
	agg.Observe(ctx, Photo{GroupID: "G", Ref: "a2.jpg"})
	sched.fireAll()

	agg.Observe(ctx, Photo{GroupID: "G", Ref: "b1.jpg", Caption: "second"})
	agg.Observe(ctx, Photo{GroupID: "G", Ref: "b2.jpg"})
	require.Len(t, sched.funcs, 1)
	sched.fireAll()

	require.Len(t, store.committed(), 2)
	assert.Equal(t, committedPost{photos: []string{"a1.jpg", "a2.jpg"}, caption: "first"}, store.committed()[0])
	assert.Equal(t, committedPost{photos: []string{"b1.jpg", "b2.jpg"}, caption: "second"}, store.committed()[1])
}

func TestCheckAfterCommitIsNoop(t *testing.T) {
	store := &memoryStore{}
	agg, sched := newTestAggregator(store)
	ctx := context.Background()

	agg.Observe(ctx, Photo{GroupID: "G", Ref: "p1.jpg"})
	agg.Observe(ctx, Photo{GroupID: "G", Ref: "p2.jpg"})
	check := sched.funcs[0]

	check()
	check()

	assert.Len(t, store.committed(), 1)
}

func TestGroupsAreIndependent(t *testing.T) {
	store := &memoryStore{}
	agg, sched := newTestAggregator(store)
	ctx := context.Background()

	agg.Observe(ctx, Photo{GroupID: "A", Ref: "a1.jpg", Caption: "a"})
	agg.Observe(ctx, Photo{GroupID: "B", Ref: "b1.jpg", Caption: "b"})
	agg.Observe(ctx, Photo{GroupID: "A", Ref: "a2.jpg"})
	agg.Observe(ctx, Photo{GroupID: "B", Ref: "b2.jpg"})
	assert.Equal(t, 2, agg.Pending())

	sched.fireAll()

	require.Len(t, store.committed(), 2)
	assert.Equal(t, committedPost{photos: []string{"a1.jpg", "a2.jpg"}, caption: "a"}, store.committed()[0])
	assert.Equal(t, committedPost{photos: []string{"b1.jpg", "b2.jpg"}, caption: "b"}, store.committed()[1])
}

func TestStoreErrorReachesDone(t *testing.T) {
	store := &memoryStore{err: errors.New("database is locked")}
	agg, sched := newTestAggregator(store)
	ctx := context.Background()

	var result Result
	agg.Observe(ctx, Photo{GroupID: "G", Ref: "p1.jpg", Done: func(r Result) { result = r }})
	agg.Observe(ctx, Photo{GroupID: "G", Ref: "p2.jpg"})
	sched.fireAll()

	require.Error(t, result.Err)
	assert.Zero(t, agg.Pending())
}

func TestCommitUsesContextThatOutlivesCaller(t *testing.T) {
	store := &memoryStore{}
	agg, sched := newTestAggregator(store)

	ctx, cancel := context.WithCancel(context.Background())
	agg.Observe(ctx, Photo{GroupID: "G", Ref: "p1.jpg"})
	agg.Observe(ctx, Photo{GroupID: "G", Ref: "p2.jpg"})
	cancel()

	sched.fireAll()
	assert.Len(t, store.committed(), 1)
}

func TestRealTimerWindow(t *testing.T) {
	store := &memoryStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := NewAggregator(store, logger, WithWindow(50*time.Millisecond))
	ctx := context.Background()

	agg.Observe(ctx, Photo{GroupID: "G1", Ref: "p1.jpg", Caption: "cap"})
	time.Sleep(10 * time.Millisecond)
	agg.Observe(ctx, Photo{GroupID: "G1", Ref: "p2.jpg"})

	assert.Empty(t, store.committed())
	require.Eventually(t, func() bool { return len(store.committed()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, committedPost{photos: []string{"p1.jpg", "p2.jpg"}, caption: "cap"}, store.committed()[0])
}
