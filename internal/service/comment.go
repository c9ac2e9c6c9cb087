package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"imagereview/internal/fanout"
	"imagereview/internal/model"
	"imagereview/internal/repository"
)

// DefaultPublishTimeout bounds a single live broadcast.
const DefaultPublishTimeout = 2 * time.Second

type CommentService struct {
	commentRepo    repository.CommentRepository
	access         AccessChecker
	files          FileDirectory // optional
	publisher      fanout.Publisher
	publishTimeout time.Duration

	inflight sync.WaitGroup
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	access AccessChecker,
	publisher fanout.Publisher,
) *CommentService {
	if access == nil {
		access = AllowAll{}
	}
	return &CommentService{
		commentRepo:    commentRepo,
		access:         access,
		publisher:      publisher,
		publishTimeout: DefaultPublishTimeout,
	}
}

// SetFileDirectory enables file existence checks on create (optional).
func (s *CommentService) SetFileDirectory(files FileDirectory) {
	s.files = files
}

// SetPublishTimeout overrides how long a broadcast may take before it is abandoned.
func (s *CommentService) SetPublishTimeout(d time.Duration) {
	if d > 0 {
		s.publishTimeout = d
	}
}

// Create validates and persists a comment, then broadcasts it to the file's
// other viewers. The returned comment is authoritative for the author's own
// view; the broadcast runs in the background and can never fail the write.
func (s *CommentService) Create(ctx context.Context, conn model.ConnectionContext, req model.CreateCommentRequest) (*model.Comment, error) {
	if conn.UserID == "" {
		return nil, model.ErrUnauthorized
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := s.access.CanWrite(ctx, conn.UserID, req.FileID); err != nil {
		return nil, err
	}

	if s.files != nil {
		exists, err := s.files.Exists(ctx, req.FileID)
		if err != nil {
			return nil, fmt.Errorf("check file exists: %w", err)
		}
		if !exists {
			return nil, model.ErrFileNotFound
		}
	}

	// The parent is checked once, here. Later changes to it do not revisit the reply.
	if req.ParentID != nil {
		parent, err := s.commentRepo.GetByID(ctx, *req.ParentID)
		if errors.Is(err, model.ErrCommentNotFound) {
			return nil, model.ErrParentNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get parent comment: %w", err)
		}
		if parent.FileID != req.FileID {
			return nil, model.ErrParentNotFound
		}
		if !parent.IsTopLevel() {
			return nil, model.NewValidationError("parentId", "replies can only be added to top-level comments")
		}
	}

	comment := &model.Comment{
		FileID:   req.FileID,
		AuthorID: conn.UserID,
		Body:     req.Body,
		X:        req.X,
		Y:        req.Y,
		ParentID: req.ParentID,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	log.Printf("[CommentService] User %s commented on file %s (comment=%s reply=%v)",
		conn.UserID, comment.FileID, comment.ID, comment.IsReply())

	s.broadcast(ctx, *comment, conn.ConnectionID)

	return comment, nil
}

// Paginate returns one newest-first page of a file's comments.
func (s *CommentService) Paginate(ctx context.Context, conn model.ConnectionContext, fileID string, page, limit int) (*model.Page, error) {
	if conn.UserID == "" {
		return nil, model.ErrUnauthorized
	}
	if fileID == "" {
		return nil, model.NewValidationError("fileId", "fileId is required")
	}
	if err := model.ValidatePageParams(page, limit); err != nil {
		return nil, err
	}

	if err := s.access.CanRead(ctx, conn.UserID, fileID); err != nil {
		return nil, err
	}

	comments, total, err := s.commentRepo.ListByFile(ctx, fileID, pageOffset(page, limit), limit)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	return &model.Page{
		Comments:   comments,
		Pagination: model.NewPagination(total, page, limit),
	}, nil
}

// pageOffset is (page-1)*limit, saturating at math.MaxInt. A page that far
// out is past the end of any file and reads as empty.
func pageOffset(page, limit int) int {
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}

// Wait blocks until in-flight broadcasts have finished.
func (s *CommentService) Wait() {
	s.inflight.Wait()
}

// broadcast publishes off the request path. The request context may end as
// soon as the response is written, so the publish gets its own deadline.
func (s *CommentService) broadcast(ctx context.Context, comment model.Comment, senderConnectionID string) {
	if s.publisher == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
		defer cancel()

		event := fanout.NewEvent(comment, senderConnectionID)
		if err := s.publisher.Publish(pubCtx, event); err != nil {
			log.Printf("[CommentService] Failed to broadcast comment %s on %s: %v",
				comment.ID, fanout.Topic(comment.FileID), err)
		}
	}()
}
