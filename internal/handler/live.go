package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"imagereview/internal/httputil"
	"imagereview/internal/model"
	"imagereview/internal/service"
	"imagereview/internal/transport/http/middleware"
)

// SSE event names
const (
	EventConnected = "connected"
	EventComment   = "comment"
)

// DefaultHeartbeat is how often an idle stream is pinged.
const DefaultHeartbeat = 25 * time.Second

type LiveHandler struct {
	liveService *service.LiveService
	heartbeat   time.Duration
}

func NewLiveHandler(liveService *service.LiveService, heartbeat time.Duration) *LiveHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &LiveHandler{
		liveService: liveService,
		heartbeat:   heartbeat,
	}
}

// Stream handles GET /comments/live?fileId=
// Opens a Server-Sent Events stream of comments created on the file after the
// stream starts. The first event carries the server-assigned connection id
// that the client echoes in X-Connection-ID when it posts.
func (h *LiveHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	conn := model.ConnectionContext{UserID: userID, ConnectionID: uuid.NewString()}
	fileID := r.URL.Query().Get("fileId")

	sub, err := h.liveService.Subscribe(r.Context(), conn, fileID)
	if err != nil {
		if !writeServiceError(w, err, "Failed to open live stream") {
			log.Printf("[ERROR] Live stream handler: user=%s file=%s err=%v", userID, fileID, err)
		}
		return
	}
	defer sub.Close()

	stream, err := httputil.NewEventStream(w)
	if err != nil {
		httputil.WriteInternalError(w, "Streaming not supported")
		return
	}

	if err := stream.Send(EventConnected, model.LiveHello{ConnectionID: conn.ConnectionID}); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				if sub.Evicted() {
					log.Printf("[LiveHandler] Dropped slow connection %s on file %s", sub.ConnectionID(), sub.FileID())
				}
				return
			}
			if err := stream.Send(EventComment, ev.LiveEvent); err != nil {
				return
			}
		case <-ticker.C:
			if err := stream.Ping(); err != nil {
				return
			}
		}
	}
}
