package fanout

import (
	"encoding/json"
	"fmt"
	"strings"

	"imagereview/internal/model"
)

// Topic naming
const (
	TopicPrefix  = "comments:"
	TopicPattern = TopicPrefix + "*"
)

// Event is one live comment broadcast on a file's topic.
type Event struct {
	FileID string
	model.LiveEvent
}

// NewEvent builds the broadcast for a freshly created comment.
func NewEvent(comment model.Comment, senderConnectionID string) Event {
	return Event{
		FileID: comment.FileID,
		LiveEvent: model.LiveEvent{
			Comment:            comment,
			SenderConnectionID: senderConnectionID,
		},
	}
}

// Topic returns the logical topic name for a file.
func Topic(fileID string) string {
	return TopicPrefix + fileID
}

// FileIDFromTopic is the inverse of Topic.
func FileIDFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, TopicPrefix) {
		return "", false
	}
	fileID := strings.TrimPrefix(topic, TopicPrefix)
	return fileID, fileID != ""
}

// Encode serializes the wire payload {comment, senderConnectionId}.
func (e Event) Encode() (string, error) {
	data, err := json.Marshal(e.LiveEvent)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	return string(data), nil
}

// ParseEvent decodes a payload received on topic.
func ParseEvent(topic, payload string) (Event, error) {
	fileID, ok := FileIDFromTopic(topic)
	if !ok {
		return Event{}, fmt.Errorf("invalid topic %q", topic)
	}

	var live model.LiveEvent
	if err := json.Unmarshal([]byte(payload), &live); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if live.Comment.ID == "" {
		return Event{}, fmt.Errorf("event has no comment id")
	}
	if live.Comment.FileID != fileID {
		return Event{}, fmt.Errorf("event comment file %q does not match topic %q", live.Comment.FileID, topic)
	}
	return Event{FileID: fileID, LiveEvent: live}, nil
}
