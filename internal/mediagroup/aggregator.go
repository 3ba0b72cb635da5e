// Package mediagroup reassembles photos that the bot transport delivers as
// separate events into a single multi-photo post.
//
// The transport sends no end-of-group marker, so a group is considered
// complete once a fixed quiet window has passed since its first photo.
package mediagroup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultWindow is how long a group collects photos after its first event.
const DefaultWindow = 2 * time.Second

// Store commits a finished post.
type Store interface {
	CreatePost(ctx context.Context, photos []string, caption string) (int64, error)
}

// Result is the outcome of committing a post.
type Result struct {
	GroupID string
	PostID  int64
	Photos  []string
	Caption string
	Err     error
}

// Photo is one ingested photo event.
type Photo struct {
	// GroupID is the transport's media group identifier. Empty for a
	// standalone photo.
	GroupID string

	// Ref is the local photo reference returned by the ingestor.
	Ref string

	// Caption is the event's caption, empty if it carried none.
	Caption string

	// Done, if set, is called with the commit outcome. For grouped photos only
	// the first event's Done is kept.
	Done func(Result)
}

// Scheduler runs f once after d. time.AfterFunc satisfies it.
type Scheduler func(d time.Duration, f func()) *time.Timer

type pendingGroup struct {
	photos  []string
	caption string
	count   int
	ctx     context.Context
	done    func(Result)
}

// Aggregator collects grouped photos and commits each group once its window
// has elapsed.
type Aggregator struct {
	store    Store
	window   time.Duration
	schedule Scheduler
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingGroup
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithWindow sets the quiet window. Non-positive values are ignored.
func WithWindow(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.window = d
		}
	}
}

// WithScheduler replaces time.AfterFunc for the completion check.
func WithScheduler(s Scheduler) Option {
	return func(a *Aggregator) {
		a.schedule = s
	}
}

// NewAggregator creates an Aggregator committing to store.
func NewAggregator(store Store, logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:    store,
		window:   DefaultWindow,
		schedule: time.AfterFunc,
		logger:   logger,
		pending:  make(map[string]*pendingGroup),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Observe records one photo. A standalone photo is committed immediately as
// a one-photo post. A grouped photo is appended to its pending group; the
// first photo of a group schedules the group's only completion check.
func (a *Aggregator) Observe(ctx context.Context, p Photo) {
	if p.GroupID == "" {
		a.commit(ctx, p.GroupID, []string{p.Ref}, p.Caption, p.Done)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.pending[p.GroupID]
	if ok {
		g.photos = append(g.photos, p.Ref)
		g.count++
		// first caption wins
		if g.caption == "" {
			g.caption = p.Caption
		}
		a.logger.Debug("photo added to media group", "group", p.GroupID, "count", g.count)
		return
	}

	a.pending[p.GroupID] = &pendingGroup{
		photos:  []string{p.Ref},
		caption: p.Caption,
		count:   1,
		ctx:     context.WithoutCancel(ctx),
		done:    p.Done,
	}
	a.logger.Info("media group started", "group", p.GroupID, "window", a.window)

	groupID := p.GroupID
	a.schedule(a.window, func() { a.complete(groupID) })
}

// Pending returns the number of groups waiting in memory.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// complete is the timer callback for a group. A group that still holds a
// single photo is left pending and is never committed by this check.
func (a *Aggregator) complete(groupID string) {
	a.mu.Lock()
	g, ok := a.pending[groupID]
	if !ok {
		a.mu.Unlock()
		return
	}
	if g.count <= 1 {
		a.mu.Unlock()
		a.logger.Warn("media group has a single photo at deadline, leaving it pending", "group", groupID)
		return
	}
	delete(a.pending, groupID)
	a.mu.Unlock()

	a.logger.Info("saving media group after delay", "group", groupID, "count", g.count)
	a.commit(g.ctx, groupID, g.photos, g.caption, g.done)
}

func (a *Aggregator) commit(ctx context.Context, groupID string, photos []string, caption string, done func(Result)) {
	id, err := a.store.CreatePost(ctx, photos, caption)
	if err != nil {
		a.logger.Error("failed to commit post", "group", groupID, "error", err)
	}
	if done != nil {
		done(Result{
			GroupID: groupID,
			PostID:  id,
			Photos:  photos,
			Caption: caption,
			Err:     err,
		})
	}
}
