package model

// LiveEvent is the payload broadcast on the comments:<fileId> topic.
type LiveEvent struct {
	Comment            Comment `json:"comment"`
	SenderConnectionID string  `json:"senderConnectionId,omitempty"`
}

// LiveHello is the first message on a live stream; it tells the client
// which connection id to echo back on writes.
type LiveHello struct {
	ConnectionID string `json:"connectionId"`
}

// ConnectionContext identifies who is acting and over which live connection.
// It is built per request and passed explicitly into create/subscribe calls.
type ConnectionContext struct {
	UserID       string
	ConnectionID string // empty when the caller has no live connection
}
