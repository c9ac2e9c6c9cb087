package service

import (
	"context"
)

// AccessChecker confirms a user's permission on a file before any store call.
// Implementations return model.ErrForbidden (or a wrapped error) to deny.
type AccessChecker interface {
	CanRead(ctx context.Context, userID, fileID string) error
	CanWrite(ctx context.Context, userID, fileID string) error
}

// AllowAll grants every authenticated user access. It is the default when
// project membership is enforced upstream.
type AllowAll struct{}

func (AllowAll) CanRead(context.Context, string, string) error  { return nil }
func (AllowAll) CanWrite(context.Context, string, string) error { return nil }

// FileDirectory answers whether a file exists.
type FileDirectory interface {
	Exists(ctx context.Context, fileID string) (bool, error)
}
