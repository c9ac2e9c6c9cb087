package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"imagereview/internal/model"
)

type commentRepository struct {
	db *sqlx.DB
}

func NewCommentRepository(db *sqlx.DB) CommentRepository {
	return &commentRepository{db: db}
}

// Create inserts a comment. created_at comes from the database clock, never
// earlier than the file's newest comment; seq records insertion order for ties.
func (r *commentRepository) Create(ctx context.Context, comment *model.Comment) error {
	query := `
		INSERT INTO comments (id, file_id, author_id, body, x, y, parent_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, GREATEST(
			clock_timestamp(),
			COALESCE((SELECT MAX(created_at) FROM comments WHERE file_id = $2), '-infinity'::timestamptz)
		))
		RETURNING id, file_id, author_id, body, x, y, parent_id, created_at
	`
	id := uuid.NewString()

	var created model.Comment
	err := r.db.GetContext(ctx, &created, query,
		id, comment.FileID, comment.AuthorID, comment.Body, comment.X, comment.Y, comment.ParentID)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}

	*comment = created
	return nil
}

// GetByID retrieves a single comment.
func (r *commentRepository) GetByID(ctx context.Context, commentID string) (*model.Comment, error) {
	// ids are uuids in this store; anything else cannot exist
	if _, err := uuid.Parse(commentID); err != nil {
		return nil, model.ErrCommentNotFound
	}

	query := `
		SELECT id, file_id, author_id, body, x, y, parent_id, created_at
		FROM comments
		WHERE id = $1
	`
	var comment model.Comment
	err := r.db.GetContext(ctx, &comment, query, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &comment, nil
}

// ListByFile returns one page of a file's comments and the file total.
// Both reads share a repeatable-read snapshot so total matches the page.
func (r *commentRepository) ListByFile(ctx context.Context, fileID string, offset, limit int) ([]model.Comment, int, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM comments WHERE file_id = $1`, fileID); err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}

	comments := make([]model.Comment, 0, limit)
	if offset >= 0 && offset < total {
		query := `
			SELECT id, file_id, author_id, body, x, y, parent_id, created_at
			FROM comments
			WHERE file_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2 OFFSET $3
		`
		if err := tx.SelectContext(ctx, &comments, query, fileID, limit, offset); err != nil {
			return nil, 0, fmt.Errorf("list comments: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit transaction: %w", err)
	}
	return comments, total, nil
}
