// Package mergecache holds the pages of one file's comments that a client has
// fetched, merged with comments that arrived over the live stream.
//
// Every comment id appears at most once. Live comments are accepted
// idempotently: once an id is in the cache, only a later ApplyPage can remove
// it. Replies whose parent is not loaded yet are held as pending and spliced
// in when a page containing the parent arrives.
package mergecache

import (
	"sort"
	"sync"

	"imagereview/internal/model"
	"imagereview/internal/thread"
)

// Cache is safe for concurrent use; live events and page fetches may interleave.
type Cache struct {
	mu sync.RWMutex

	fileID string
	limit  int

	pages   map[int]*model.Page
	index   map[string]int             // comment id -> page number holding it
	pending map[string][]model.Comment // parent id -> replies waiting for it
	pendIDs map[string]struct{}
}

// New creates an empty cache for fileID. limit is used for a page 1 created
// by a live comment before any page was fetched.
func New(fileID string, limit int) *Cache {
	if limit <= 0 {
		limit = model.DefaultPageLimit
	}
	return &Cache{
		fileID:  fileID,
		limit:   limit,
		pages:   make(map[int]*model.Page),
		index:   make(map[string]int),
		pending: make(map[string][]model.Comment),
		pendIDs: make(map[string]struct{}),
	}
}

// FileID is the file this cache holds.
func (c *Cache) FileID() string {
	return c.fileID
}

// ApplyPage stores page at its page-number slot, replacing what was there.
// Comments already held by another slot are dropped from the incoming page,
// and pending replies whose parent it contains are spliced in.
func (c *Cache) ApplyPage(page model.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := page.Pagination.Page
	if slot < 1 {
		slot = 1
	}

	stored := &model.Page{Pagination: page.Pagination}
	stored.Pagination.Page = slot
	stored.Comments = make([]model.Comment, 0, len(page.Comments))

	seen := make(map[string]struct{}, len(page.Comments))
	for _, comment := range page.Comments {
		if at, ok := c.index[comment.ID]; ok && at != slot {
			continue
		}
		if _, dup := seen[comment.ID]; dup {
			continue
		}
		seen[comment.ID] = struct{}{}
		stored.Comments = append(stored.Comments, comment)
	}

	c.pages[slot] = stored
	c.reindex()
	c.splicePending()
}

// ApplyLive merges one live comment and reports whether it was accepted.
// Events sent by this connection (originConnID == localConnID) are ignored,
// since the create call already returned the comment. An event with no
// origin is never treated as an echo.
func (c *Cache) ApplyLive(comment model.Comment, originConnID, localConnID string) bool {
	if originConnID != "" && originConnID == localConnID {
		return false
	}
	return c.Insert(comment)
}

// Insert merges a comment this client created itself. It is a no-op if the
// id is already cached.
func (c *Cache) Insert(comment model.Comment) bool {
	if comment.FileID != "" && comment.FileID != c.fileID {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.containsLocked(comment.ID) {
		return false
	}

	if comment.IsTopLevel() {
		first := c.firstPageLocked()
		first.Comments = append([]model.Comment{comment}, first.Comments...)
		c.index[comment.ID] = first.Pagination.Page
		c.bumpTotalsLocked()
		c.splicePending()
		return true
	}

	if comment.ParentID == nil {
		return false
	}

	if at, ok := c.index[*comment.ParentID]; ok {
		p := c.pages[at]
		p.Comments = append(p.Comments, comment)
		c.index[comment.ID] = at
		c.bumpTotalsLocked()
		return true
	}

	c.pending[*comment.ParentID] = append(c.pending[*comment.ParentID], comment)
	c.pendIDs[comment.ID] = struct{}{}
	c.bumpTotalsLocked()
	return true
}

// Contains reports whether id is cached, including pending replies.
func (c *Cache) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.containsLocked(id)
}

// IDs returns every cached comment id, pending replies included.
func (c *Cache) IDs() map[string]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make(map[string]struct{}, len(c.index)+len(c.pendIDs))
	for id := range c.index {
		ids[id] = struct{}{}
	}
	for id := range c.pendIDs {
		ids[id] = struct{}{}
	}
	return ids
}

// Comments returns the cached comments in page order, newest first within
// each page. Pending replies are not included.
func (c *Cache) Comments() []model.Comment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.Comment
	for _, n := range c.slotsLocked() {
		out = append(out, c.pages[n].Comments...)
	}
	return out
}

// Pending returns replies still waiting for their parent's page.
func (c *Cache) Pending() []model.Comment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.Comment
	for _, replies := range c.pending {
		out = append(out, replies...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Page returns a copy of the page at slot n.
func (c *Cache) Page(n int) (model.Page, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.pages[n]
	if !ok {
		return model.Page{}, false
	}
	cp := *p
	cp.Comments = append([]model.Comment(nil), p.Comments...)
	return cp, true
}

// Pages returns the loaded page numbers in ascending order.
func (c *Cache) Pages() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slotsLocked()
}

// Total is the file's comment count as last reported, plus live arrivals.
func (c *Cache) Total() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	slots := c.slotsLocked()
	if len(slots) == 0 {
		return len(c.pendIDs)
	}
	return c.pages[slots[len(slots)-1]].Pagination.Total
}

// NextPage returns the page number after the highest loaded page, and whether
// the server reported more pages beyond it.
func (c *Cache) NextPage() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	slots := c.slotsLocked()
	if len(slots) == 0 {
		return 1, true
	}
	last := c.pages[slots[len(slots)-1]]
	return last.Pagination.Page + 1, last.Pagination.HasMore
}

// Threads assembles the cached comments into top-level threads.
func (c *Cache) Threads() thread.Threads {
	return thread.Assemble(c.Comments())
}

// Locate returns the top-level thread that contains id, if it is loaded.
func (c *Cache) Locate(id string) (string, bool) {
	return c.Threads().Locate(id)
}

func (c *Cache) containsLocked(id string) bool {
	if _, ok := c.index[id]; ok {
		return true
	}
	_, ok := c.pendIDs[id]
	return ok
}

func (c *Cache) slotsLocked() []int {
	slots := make([]int, 0, len(c.pages))
	for n := range c.pages {
		slots = append(slots, n)
	}
	sort.Ints(slots)
	return slots
}

func (c *Cache) firstPageLocked() *model.Page {
	if p, ok := c.pages[1]; ok {
		return p
	}
	total, limit := len(c.pendIDs), c.limit
	if slots := c.slotsLocked(); len(slots) > 0 {
		last := c.pages[slots[len(slots)-1]].Pagination
		total, limit = last.Total, last.Limit
	}
	p := &model.Page{Pagination: model.NewPagination(total, 1, limit)}
	c.pages[1] = p
	return p
}

// bumpTotalsLocked counts one live arrival on every cached page.
func (c *Cache) bumpTotalsLocked() {
	for _, p := range c.pages {
		pg := p.Pagination
		p.Pagination = model.NewPagination(pg.Total+1, pg.Page, pg.Limit)
	}
}

// reindex rebuilds the id index, keeping the lowest slot for any duplicate.
func (c *Cache) reindex() {
	c.index = make(map[string]int, len(c.index))
	for _, n := range c.slotsLocked() {
		p := c.pages[n]
		kept := p.Comments[:0]
		for _, comment := range p.Comments {
			if _, dup := c.index[comment.ID]; dup {
				continue
			}
			c.index[comment.ID] = n
			kept = append(kept, comment)
		}
		p.Comments = kept
	}

	// A fetched page may now hold a reply that was pending.
	for parentID, replies := range c.pending {
		kept := replies[:0]
		for _, r := range replies {
			if _, ok := c.index[r.ID]; ok {
				delete(c.pendIDs, r.ID)
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(c.pending, parentID)
		} else {
			c.pending[parentID] = kept
		}
	}
}

func (c *Cache) splicePending() {
	for parentID, replies := range c.pending {
		at, ok := c.index[parentID]
		if !ok {
			continue
		}
		p := c.pages[at]
		for _, r := range replies {
			p.Comments = append(p.Comments, r)
			c.index[r.ID] = at
			delete(c.pendIDs, r.ID)
		}
		delete(c.pending, parentID)
	}
}
