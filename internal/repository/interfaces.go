package repository

import (
	"context"

	"imagereview/internal/model"
)

// CommentRepository persists comments and serves the newest-first pagination contract.
type CommentRepository interface {
	// Create assigns ID and CreatedAt and persists the comment.
	Create(ctx context.Context, comment *model.Comment) error
	// GetByID returns model.ErrCommentNotFound when the id does not resolve.
	GetByID(ctx context.Context, commentID string) (*model.Comment, error)
	// ListByFile returns one page ordered by created_at DESC with ties broken by
	// insertion order (newest insert first), plus the file's total count, read
	// from a single snapshot.
	ListByFile(ctx context.Context, fileID string, offset, limit int) ([]model.Comment, int, error)
}
