package model

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Comment is a single annotation on a file. It is either top-level
// (anchored at X/Y, no parent) or a reply (ParentID set, no coordinates).
type Comment struct {
	ID        string    `db:"id" json:"id"`
	FileID    string    `db:"file_id" json:"fileId"`
	AuthorID  string    `db:"author_id" json:"authorId"`
	Body      string    `db:"body" json:"body"`
	X         *float64  `db:"x" json:"x,omitempty"`
	Y         *float64  `db:"y" json:"y,omitempty"`
	ParentID  *string   `db:"parent_id" json:"parentId,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// IsTopLevel reports whether the comment is anchored to image coordinates.
func (c Comment) IsTopLevel() bool {
	return c.X != nil && c.Y != nil
}

// IsReply reports whether the comment hangs off a parent comment.
func (c Comment) IsReply() bool {
	return c.ParentID != nil
}

// CreateCommentRequest is the request body for creating a comment.
type CreateCommentRequest struct {
	FileID   string   `json:"fileId"`
	Body     string   `json:"body"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	ParentID *string  `json:"parentId,omitempty"`
}

// Comment constraints
const (
	MaxBodyLength = 5000
	MinCoordinate = 0.0
	MaxCoordinate = 100.0
)

// Validate checks the shape rules: exactly one of {x and y} or {parentId}.
// The returned error is always a *ValidationError naming the offending field.
func (r *CreateCommentRequest) Validate() error {
	if strings.TrimSpace(r.FileID) == "" {
		return NewValidationError("fileId", "fileId is required")
	}
	if strings.TrimSpace(r.Body) == "" {
		return NewValidationError("body", "body must not be empty")
	}
	if utf8.RuneCountInString(r.Body) > MaxBodyLength {
		return NewValidationError("body", "body is too long")
	}

	hasX, hasY := r.X != nil, r.Y != nil
	if hasX != hasY {
		if hasX {
			return NewValidationError("y", "x and y must be provided together")
		}
		return NewValidationError("x", "x and y must be provided together")
	}

	hasParent := r.ParentID != nil
	switch {
	case hasX && hasParent:
		return NewValidationError("parentId", "a reply must not carry coordinates")
	case !hasX && !hasParent:
		return NewValidationError("x", "coordinates (x, y) are required for top-level comments")
	}

	if hasParent && strings.TrimSpace(*r.ParentID) == "" {
		return NewValidationError("parentId", "parentId must not be empty")
	}

	if hasX {
		if !inRange(*r.X) {
			return NewValidationError("x", "x must be between 0 and 100")
		}
		if !inRange(*r.Y) {
			return NewValidationError("y", "y must be between 0 and 100")
		}
	}
	return nil
}

func inRange(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= MinCoordinate && v <= MaxCoordinate
}
