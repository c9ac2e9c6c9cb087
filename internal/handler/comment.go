package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"imagereview/internal/httputil"
	"imagereview/internal/model"
	"imagereview/internal/service"
	"imagereview/internal/transport/http/middleware"
)

// maxCreateBodyBytes fits a 5000-rune body even when every rune is JSON-escaped.
const maxCreateBodyBytes = 64 << 10

type CommentHandler struct {
	commentService *service.CommentService
}

func NewCommentHandler(commentService *service.CommentService) *CommentHandler {
	return &CommentHandler{
		commentService: commentService,
	}
}

// Create handles POST /comments
// Creates a top-level pin or a reply for the authenticated user. The caller's
// live connection id (X-Connection-ID) keeps the broadcast from echoing back.
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	conn, ok := middleware.GetConnectionFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCreateBodyBytes)
	var req model.CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteValidationError(w, "body", "Request body too large")
			return
		}
		httputil.WriteValidationError(w, "", "Invalid request body")
		return
	}

	comment, err := h.commentService.Create(r.Context(), conn, req)
	if err != nil {
		if !writeServiceError(w, err, "Failed to create comment") {
			log.Printf("[ERROR] Create comment handler: user=%s file=%s err=%v", conn.UserID, req.FileID, err)
		}
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, comment)
}

// List handles GET /comments?fileId=&page=&limit=
// Returns one newest-first page of the file's comments.
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	conn, ok := middleware.GetConnectionFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	query := r.URL.Query()
	fileID := query.Get("fileId")

	page, ok := intParam(w, query.Get("page"), "page", 1)
	if !ok {
		return
	}
	limit, ok := intParam(w, query.Get("limit"), "limit", model.DefaultPageLimit)
	if !ok {
		return
	}

	result, err := h.commentService.Paginate(r.Context(), conn, fileID, page, limit)
	if err != nil {
		if !writeServiceError(w, err, "Failed to get comments") {
			log.Printf("[ERROR] List comments handler: user=%s file=%s err=%v", conn.UserID, fileID, err)
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// intParam parses an optional integer query parameter, writing a validation
// error and returning false when it is malformed.
func intParam(w http.ResponseWriter, raw, field string, fallback int) (int, bool) {
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		httputil.WriteValidationError(w, field, "Invalid "+field+" parameter")
		return 0, false
	}
	return v, true
}

// writeServiceError maps service errors onto the error envelope. It returns
// false when err was unexpected and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, err error, internalMessage string) bool {
	var validationErr *model.ValidationError
	switch {
	case errors.As(err, &validationErr):
		httputil.WriteValidationError(w, validationErr.Field, validationErr.Message)
	case errors.Is(err, model.ErrParentNotFound):
		httputil.WriteNotFound(w, "Parent comment not found")
	case errors.Is(err, model.ErrFileNotFound):
		httputil.WriteNotFound(w, "File not found")
	case errors.Is(err, model.ErrUnauthorized):
		httputil.WriteUnauthorized(w, "Authentication required")
	case errors.Is(err, model.ErrForbidden):
		httputil.WriteForbidden(w, "You do not have access to this file")
	default:
		httputil.WriteInternalError(w, internalMessage)
		return false
	}
	return true
}
