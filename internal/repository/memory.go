package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"imagereview/internal/model"
)

// Ensure MemoryCommentRepository implements the interface.
var _ CommentRepository = (*MemoryCommentRepository)(nil)

// MemoryCommentRepository keeps comments in process. It backs STORE_DRIVER=memory
// and the service/handler tests.
type MemoryCommentRepository struct {
	mu     sync.RWMutex
	byID   map[string]model.Comment
	byFile map[string][]string // comment ids in insertion order
	last   time.Time
	now    func() time.Time
}

// NewMemoryCommentRepository creates an empty in-memory store.
func NewMemoryCommentRepository() *MemoryCommentRepository {
	return &MemoryCommentRepository{
		byID:   make(map[string]model.Comment),
		byFile: make(map[string][]string),
		now:    time.Now,
	}
}

// Create assigns a uuid and a strictly increasing timestamp.
func (r *MemoryCommentRepository) Create(_ context.Context, comment *model.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now().UTC()
	if !ts.After(r.last) {
		ts = r.last.Add(time.Microsecond)
	}
	r.last = ts

	c := *comment
	c.ID = uuid.NewString()
	c.CreatedAt = ts

	r.byID[c.ID] = c
	r.byFile[c.FileID] = append(r.byFile[c.FileID], c.ID)

	*comment = c
	return nil
}

// GetByID retrieves a single comment.
func (r *MemoryCommentRepository) GetByID(_ context.Context, commentID string) (*model.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[commentID]
	if !ok {
		return nil, model.ErrCommentNotFound
	}
	return &c, nil
}

// ListByFile walks the insertion log backwards. Timestamps are strictly
// increasing per store, so insertion order is also created_at order.
func (r *MemoryCommentRepository) ListByFile(_ context.Context, fileID string, offset, limit int) ([]model.Comment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.byFile[fileID]
	total := len(log)

	comments := make([]model.Comment, 0, limit)
	if offset < 0 || offset >= total {
		return comments, total, nil
	}
	for i := total - 1 - offset; i >= 0 && len(comments) < limit; i-- {
		comments = append(comments, r.byID[log[i]])
	}
	return comments, total, nil
}
