package service

import (
	"context"
	"log"

	"imagereview/internal/fanout"
	"imagereview/internal/model"
)

// LiveService opens live subscriptions on a file's comment topic.
type LiveService struct {
	hub    *fanout.Hub
	access AccessChecker
}

func NewLiveService(hub *fanout.Hub, access AccessChecker) *LiveService {
	if access == nil {
		access = AllowAll{}
	}
	return &LiveService{hub: hub, access: access}
}

// Subscribe joins conn to the file's topic. Comments created before this
// call are never replayed; callers paginate to catch up.
func (s *LiveService) Subscribe(ctx context.Context, conn model.ConnectionContext, fileID string) (*fanout.Subscription, error) {
	if conn.UserID == "" {
		return nil, model.ErrUnauthorized
	}
	if fileID == "" {
		return nil, model.NewValidationError("fileId", "fileId is required")
	}
	if err := s.access.CanRead(ctx, conn.UserID, fileID); err != nil {
		return nil, err
	}

	sub := s.hub.Subscribe(fileID, conn)
	log.Printf("[LiveService] User %s joined %s (connection=%s viewers=%d)",
		conn.UserID, fanout.Topic(fileID), conn.ConnectionID, s.hub.SubscriberCount(fileID))
	return sub, nil
}
