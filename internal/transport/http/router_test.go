package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"imagereview/internal/client/api"
	"imagereview/internal/fanout"
	"imagereview/internal/handler"
	"imagereview/internal/httputil"
	"imagereview/internal/model"
	"imagereview/internal/repository"
	"imagereview/internal/service"
	"imagereview/internal/thread"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

type testEnv struct {
	server  *httptest.Server
	hub     *fanout.Hub
	service *service.CommentService
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	hub := fanout.NewHub(8)
	svc := service.NewCommentService(repository.NewMemoryCommentRepository(), nil, hub)
	router := NewRouter(RouterConfig{
		CommentHandler: handler.NewCommentHandler(svc),
		LiveHandler:    handler.NewLiveHandler(service.NewLiveService(hub, nil), 50*time.Millisecond),
		JWTSecret:      testSecret,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		svc.Wait()
	})
	return &testEnv{server: srv, hub: hub, service: svc}
}

func (e *testEnv) client(t *testing.T, userID string) *api.Client {
	return api.New(e.server.URL, signToken(t, userID))
}

func ptr(v float64) *float64 { return &v }

func decodeEnvelope(t *testing.T, resp *http.Response) httputil.ErrorDetail {
	t.Helper()
	var body httputil.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return body.Error
}

func TestRouter_Health(t *testing.T) {
	env := setupServer(t)

	resp, err := http.Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	env := setupServer(t)

	for _, path := range []string{"/comments?fileId=F", "/comments/live?fileId=F"} {
		resp, err := http.Get(env.server.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, resp.StatusCode)
		}
		if detail := decodeEnvelope(t, resp); detail.Code != httputil.ErrCodeUnauthorized {
			t.Errorf("%s code = %s", path, detail.Code)
		}
		resp.Body.Close()
	}

	_, err := api.New(env.server.URL, "garbage").Paginate(context.Background(), "F", 1, 10)
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("bad token error = %v", err)
	}
}

func TestRouter_ListValidation(t *testing.T) {
	env := setupServer(t)
	token := signToken(t, "alice")

	tests := []struct {
		query string
		field string
	}{
		{query: "fileId=F&page=abc", field: "page"},
		{query: "fileId=F&page=0", field: "page"},
		{query: "fileId=F&limit=51", field: "limit"},
		{query: "fileId=F&limit=-1", field: "limit"},
		{query: "page=1", field: "fileId"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/comments?"+tt.query, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			detail := decodeEnvelope(t, resp)
			if detail.Code != httputil.ErrCodeValidation || detail.Field != tt.field {
				t.Errorf("error = %+v, want field %s", detail, tt.field)
			}
		})
	}
}

func TestRouter_ListPageBeyondIntRange(t *testing.T) {
	env := setupServer(t)
	c := env.client(t, "alice")
	if _, err := c.Create(context.Background(), "", model.CreateCommentRequest{FileID: "F", Body: "only", X: ptr(1), Y: ptr(1)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/comments?fileId=F&page=4611686018427387904&limit=4", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "alice"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var page model.Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Comments) != 0 || page.Pagination.Total != 1 || page.Pagination.HasMore {
		t.Errorf("page = %+v, want empty page of a one-comment file", page)
	}
}

func TestRouter_CreateErrors(t *testing.T) {
	env := setupServer(t)
	alice := env.client(t, "alice")
	ctx := context.Background()

	_, err := alice.Create(ctx, "", model.CreateCommentRequest{FileID: "F", Body: "x only", X: ptr(50)})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Field != "y" {
		t.Errorf("x without y: %v", err)
	}

	_, err = alice.Create(ctx, "", model.CreateCommentRequest{FileID: "F", Body: "orphan", ParentID: strPtr("00000000-0000-0000-0000-000000000000")})
	if !errors.Is(err, model.ErrParentNotFound) {
		t.Errorf("missing parent: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/comments", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "alice"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", resp.StatusCode)
	}
}

func TestRouter_CreateBodySizeLimit(t *testing.T) {
	env := setupServer(t)
	alice := env.client(t, "alice")
	ctx := context.Background()

	// json.Marshal sends each "<" as \u003c; a maximal body still fits
	escaped := strings.Repeat("<", model.MaxBodyLength)
	if _, err := alice.Create(ctx, "", model.CreateCommentRequest{FileID: "F", Body: escaped, X: ptr(1), Y: ptr(1)}); err != nil {
		t.Fatalf("max-length body rejected: %v", err)
	}

	_, err := alice.Create(ctx, "", model.CreateCommentRequest{FileID: "F", Body: strings.Repeat("a", 70<<10), X: ptr(1), Y: ptr(1)})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Field != "body" {
		t.Errorf("oversized body: %v", err)
	}
}

func strPtr(s string) *string { return &s }

func TestRouter_CreatePaginateAssemble(t *testing.T) {
	env := setupServer(t)
	alice := env.client(t, "alice")
	bob := env.client(t, "bob")
	ctx := context.Background()

	a, err := alice.Create(ctx, "", model.CreateCommentRequest{FileID: "F", Body: "A", X: ptr(50), Y: ptr(50)})
	if err != nil {
		t.Fatalf("create A: %v", err)
	}
	if a.AuthorID != "alice" {
		t.Errorf("author = %s", a.AuthorID)
	}

	page, err := bob.Paginate(ctx, "F", 1, 10)
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if len(page.Comments) != 1 || page.Pagination.Total != 1 || page.Pagination.HasMore {
		t.Fatalf("page = %+v", page)
	}

	b, err := bob.Create(ctx, "", model.CreateCommentRequest{FileID: "F", Body: "B", ParentID: &a.ID})
	if err != nil {
		t.Fatalf("create B: %v", err)
	}

	page, err = alice.Paginate(ctx, "F", 1, 10)
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	threads := thread.Assemble(page.Comments)
	if len(threads.TopLevel) != 1 || threads.TopLevel[0].ID != a.ID {
		t.Errorf("top level = %+v", threads.TopLevel)
	}
	if replies := threads.Replies(a.ID); len(replies) != 1 || replies[0].ID != b.ID {
		t.Errorf("replies = %+v", replies)
	}
}

func TestRouter_LiveStreamSkipsSender(t *testing.T) {
	env := setupServer(t)
	alice := env.client(t, "alice")
	bob := env.client(t, "bob")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aliceStream, err := alice.Subscribe(ctx, "F")
	if err != nil {
		t.Fatalf("alice subscribe: %v", err)
	}
	defer aliceStream.Close()

	bobStream, err := bob.Subscribe(ctx, "F")
	if err != nil {
		t.Fatalf("bob subscribe: %v", err)
	}
	defer bobStream.Close()

	if aliceStream.ConnectionID() == "" || aliceStream.ConnectionID() == bobStream.ConnectionID() {
		t.Fatalf("connection ids %q %q", aliceStream.ConnectionID(), bobStream.ConnectionID())
	}

	mine, err := alice.Create(ctx, aliceStream.ConnectionID(), model.CreateCommentRequest{FileID: "F", Body: "mine", X: ptr(1), Y: ptr(1)})
	if err != nil {
		t.Fatalf("alice create: %v", err)
	}

	select {
	case ev := <-bobStream.Events():
		if ev.Comment.ID != mine.ID || ev.SenderConnectionID != aliceStream.ConnectionID() {
			t.Errorf("bob got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bob did not receive alice's comment")
	}

	theirs, err := bob.Create(ctx, bobStream.ConnectionID(), model.CreateCommentRequest{FileID: "F", Body: "theirs", ParentID: &mine.ID})
	if err != nil {
		t.Fatalf("bob create: %v", err)
	}

	// alice's first live event must be bob's reply, never her own comment
	select {
	case ev := <-aliceStream.Events():
		if ev.Comment.ID != theirs.ID {
			t.Errorf("alice got %s, want %s", ev.Comment.ID, theirs.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alice did not receive bob's reply")
	}
}

func TestRouter_LiveStreamRequiresFileID(t *testing.T) {
	env := setupServer(t)

	_, err := env.client(t, "alice").Subscribe(context.Background(), "")
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("error = %v, want validation error", err)
	}
}
