// Package deeplink finds the thread that holds a linked comment by walking the
// file's pages until the comment (and, for a reply, its parent) is loaded.
package deeplink

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"imagereview/internal/client/mergecache"
	"imagereview/internal/model"
)

// Paginator fetches one page of a file's comments. *api.Client satisfies it.
type Paginator interface {
	Paginate(ctx context.Context, fileID string, page, limit int) (*model.Page, error)
}

// State is where a resolution stands.
type State int

const (
	Idle State = iota
	Searching
	Found
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Found:
		return "found"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result is the outcome of a finished resolution.
type Result struct {
	State        State
	TargetID     string
	TopLevelID   string // set when State is Found
	PagesFetched int
}

// Defaults for NewResolver.
const (
	DefaultLimit    = model.DefaultPageLimit
	DefaultMaxPages = 1000
	DefaultRate     = 10 // fetches per second
)

// Resolver runs one resolution at a time; starting a new one cancels the
// previous. It never blocks live updates to a shared cache.
type Resolver struct {
	pager       Paginator
	limit       int
	maxPages    int
	limiter     *rate.Limiter
	cache       *mergecache.Cache
	highlighter *Highlighter
	onPage      func(page, pages int)

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLimit sets the page size used for every fetch.
func WithLimit(limit int) Option {
	return func(r *Resolver) {
		if limit > 0 && limit <= model.MaxPageLimit {
			r.limit = limit
		}
	}
}

// WithMaxPages caps how many pages a single resolution may fetch.
func WithMaxPages(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxPages = n
		}
	}
}

// WithRateLimit paces fetches. A nil limiter disables pacing.
func WithRateLimit(limiter *rate.Limiter) Option {
	return func(r *Resolver) {
		r.limiter = limiter
	}
}

// WithCache shares the viewer's merge cache: an already-loaded comment
// resolves without fetching, and fetched pages are applied to it. The cache
// must be for the file being resolved.
func WithCache(cache *mergecache.Cache) Option {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// WithHighlighter highlights the found thread.
func WithHighlighter(h *Highlighter) Option {
	return func(r *Resolver) {
		r.highlighter = h
	}
}

// WithProgress is called after every fetched page with the page number and
// the server's current page count.
func WithProgress(fn func(page, pages int)) Option {
	return func(r *Resolver) {
		r.onPage = fn
	}
}

func NewResolver(pager Paginator, opts ...Option) *Resolver {
	r := &Resolver{
		pager:    pager,
		limit:    DefaultLimit,
		maxPages: DefaultMaxPages,
		limiter:  rate.NewLimiter(rate.Limit(DefaultRate), 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State reports the current resolution state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Cancel stops the in-flight resolution, if any.
func (r *Resolver) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	// a resolve already past its last ctx check must not settle afterwards
	r.gen++
	r.state = Idle
}

// Resolve fetches pages 1, 2, ... until targetID's thread is loaded or the
// file has no more pages. The page bound is refreshed from every response so
// it terminates under concurrent writes. A cancelled resolution, including one
// superseded by a newer Resolve, returns the context error and no result.
func (r *Resolver) Resolve(ctx context.Context, fileID, targetID string) (Result, error) {
	ctx, gen := r.begin(ctx)
	defer r.finish(gen)

	cache := r.cache
	if cache == nil || cache.FileID() != fileID {
		cache = mergecache.New(fileID, r.limit)
	}

	if topID, ok := cache.Locate(targetID); ok {
		return r.found(gen, Result{TargetID: targetID, TopLevelID: topID})
	}

	fetched := 0
	bound := 1
	for page := 1; page <= bound; page++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return Result{}, err
			}
		}

		p, err := r.pager.Paginate(ctx, fileID, page, r.limit)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			return Result{State: Searching, TargetID: targetID, PagesFetched: fetched}, fmt.Errorf("fetch page %d: %w", page, err)
		}
		// A result that lands after cancellation is discarded.
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		fetched++
		cache.ApplyPage(*p)

		if r.onPage != nil {
			r.onPage(page, p.Pagination.Pages)
		}

		if topID, ok := cache.Locate(targetID); ok {
			return r.found(gen, Result{TargetID: targetID, TopLevelID: topID, PagesFetched: fetched})
		}
		if !p.Pagination.HasMore {
			break
		}

		bound = p.Pagination.Pages
		if bound > r.maxPages {
			bound = r.maxPages
		}
	}

	if !r.settle(gen, Exhausted) {
		return Result{}, context.Canceled
	}
	return Result{State: Exhausted, TargetID: targetID, PagesFetched: fetched}, nil
}

// begin supersedes any in-flight resolution and clears its highlight.
func (r *Resolver) begin(ctx context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.gen++
	gen := r.gen
	r.cancel = cancel
	r.state = Searching
	r.mu.Unlock()

	if r.highlighter != nil {
		r.highlighter.Clear()
	}
	return ctx, gen
}

func (r *Resolver) finish(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.state == Searching {
		r.state = Idle
	}
}

func (r *Resolver) settle(gen uint64, s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return false
	}
	r.state = s
	return true
}

// found settles a match. A resolution cancelled or superseded in the
// meantime reports context.Canceled and leaves the highlight alone.
func (r *Resolver) found(gen uint64, res Result) (Result, error) {
	if !r.settle(gen, Found) {
		return Result{}, context.Canceled
	}
	res.State = Found
	if r.highlighter != nil {
		r.highlighter.Highlight(res.TopLevelID)
	}
	return res, nil
}
