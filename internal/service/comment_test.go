package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"imagereview/internal/fanout"
	"imagereview/internal/model"
	"imagereview/internal/repository"
)

// =============================================================================
// MOCKS
// =============================================================================

type mockCommentRepository struct {
	createFn     func(ctx context.Context, c *model.Comment) error
	getByIDFn    func(ctx context.Context, id string) (*model.Comment, error)
	listByFileFn func(ctx context.Context, fileID string, offset, limit int) ([]model.Comment, int, error)

	createCalls int
	listOffsets []int
}

func (m *mockCommentRepository) Create(ctx context.Context, c *model.Comment) error {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	c.ID = "new"
	c.CreatedAt = time.Now()
	return nil
}

func (m *mockCommentRepository) GetByID(ctx context.Context, id string) (*model.Comment, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.ErrCommentNotFound
}

func (m *mockCommentRepository) ListByFile(ctx context.Context, fileID string, offset, limit int) ([]model.Comment, int, error) {
	m.listOffsets = append(m.listOffsets, offset)
	if m.listByFileFn != nil {
		return m.listByFileFn(ctx, fileID, offset, limit)
	}
	return nil, 0, nil
}

// capturePublisher records events on a channel so tests can wait for the
// background broadcast.
type capturePublisher struct {
	events chan fanout.Event
	err    error
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{events: make(chan fanout.Event, 16)}
}

func (p *capturePublisher) Publish(_ context.Context, ev fanout.Event) error {
	p.events <- ev
	return p.err
}

// blockingPublisher never returns until its context ends.
type blockingPublisher struct{}

func (blockingPublisher) Publish(ctx context.Context, _ fanout.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

type denyAccess struct{}

func (denyAccess) CanRead(context.Context, string, string) error  { return model.ErrForbidden }
func (denyAccess) CanWrite(context.Context, string, string) error { return model.ErrForbidden }

type stubFiles map[string]bool

func (s stubFiles) Exists(_ context.Context, fileID string) (bool, error) {
	return s[fileID], nil
}

func coord(v float64) *float64 { return &v }
func strp(v string) *string { return &v }

var alice = model.ConnectionContext{UserID: "alice", ConnectionID: "conn-alice"}

// =============================================================================
// CREATE TESTS
// =============================================================================

func TestCommentService_Create_TopLevel(t *testing.T) {
	repo := &mockCommentRepository{}
	pub := newCapturePublisher()
	svc := NewCommentService(repo, nil, pub)

	comment, err := svc.Create(context.Background(), alice, model.CreateCommentRequest{
		FileID: "f1", Body: "looks off", X: coord(50), Y: coord(50),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comment.AuthorID != "alice" || comment.FileID != "f1" {
		t.Errorf("comment = %+v", comment)
	}
	if repo.createCalls != 1 {
		t.Errorf("Create called %d times, want 1", repo.createCalls)
	}

	select {
	case ev := <-pub.events:
		if ev.Comment.ID != comment.ID || ev.SenderConnectionID != "conn-alice" || ev.FileID != "f1" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("comment was not broadcast")
	}
}

func TestCommentService_Create_Errors(t *testing.T) {
	topLevelParent := &model.Comment{ID: "p1", FileID: "f1", X: coord(1), Y: coord(1)}
	replyParent := &model.Comment{ID: "r1", FileID: "f1", ParentID: strp("p1")}
	otherFileParent := &model.Comment{ID: "p2", FileID: "f2", X: coord(1), Y: coord(1)}
	dbErr := errors.New("connection reset")

	parents := func(ctx context.Context, id string) (*model.Comment, error) {
		switch id {
		case "p1":
			return topLevelParent, nil
		case "r1":
			return replyParent, nil
		case "p2":
			return otherFileParent, nil
		case "boom":
			return nil, dbErr
		}
		return nil, model.ErrCommentNotFound
	}

	tests := []struct {
		name    string
		conn    model.ConnectionContext
		access  AccessChecker
		req     model.CreateCommentRequest
		wantErr error
	}{
		{
			name:    "unauthenticated",
			conn:    model.ConnectionContext{},
			req:     model.CreateCommentRequest{FileID: "f1", Body: "b", X: coord(1), Y: coord(1)},
			wantErr: model.ErrUnauthorized,
		},
		{
			name:    "x without y",
			conn:    alice,
			req:     model.CreateCommentRequest{FileID: "f1", Body: "b", X: coord(50)},
			wantErr: model.ErrValidation,
		},
		{
			name:    "forbidden",
			conn:    alice,
			access:  denyAccess{},
			req:     model.CreateCommentRequest{FileID: "f1", Body: "b", X: coord(1), Y: coord(1)},
			wantErr: model.ErrForbidden,
		},
		{
			name:    "missing parent",
			conn:    alice,
			req:     model.CreateCommentRequest{FileID: "f1", Body: "b", ParentID: strp("nope")},
			wantErr: model.ErrParentNotFound,
		},
		{
			name:    "parent in another file",
			conn:    alice,
			req:     model.CreateCommentRequest{FileID: "f1", Body: "b", ParentID: strp("p2")},
			wantErr: model.ErrParentNotFound,
		},
		{
			name:    "reply to a reply",
			conn:    alice,
			req:     model.CreateCommentRequest{FileID: "f1", Body: "b", ParentID: strp("r1")},
			wantErr: model.ErrValidation,
		},
		{
			name:    "parent lookup fails",
			conn:    alice,
			req:     model.CreateCommentRequest{FileID: "f1", Body: "b", ParentID: strp("boom")},
			wantErr: dbErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockCommentRepository{getByIDFn: parents}
			pub := newCapturePublisher()
			svc := NewCommentService(repo, tt.access, pub)

			comment, err := svc.Create(context.Background(), tt.conn, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if comment != nil {
				t.Error("comment should be nil on failure")
			}
			if repo.createCalls != 0 {
				t.Error("Create should not be called on failure")
			}

			svc.Wait()
			if len(pub.events) != 0 {
				t.Error("nothing should be broadcast on failure")
			}
		})
	}
}

func TestCommentService_Create_ReplyToTopLevel(t *testing.T) {
	repo := &mockCommentRepository{
		getByIDFn: func(ctx context.Context, id string) (*model.Comment, error) {
			return &model.Comment{ID: id, FileID: "f1", X: coord(1), Y: coord(1)}, nil
		},
	}
	svc := NewCommentService(repo, nil, nil)

	comment, err := svc.Create(context.Background(), alice, model.CreateCommentRequest{
		FileID: "f1", Body: "agreed", ParentID: strp("p1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comment.ParentID == nil || *comment.ParentID != "p1" || comment.X != nil {
		t.Errorf("comment = %+v", comment)
	}
}

func TestCommentService_Create_FileDirectory(t *testing.T) {
	repo := &mockCommentRepository{}
	svc := NewCommentService(repo, nil, nil)
	svc.SetFileDirectory(stubFiles{"known": true})

	req := model.CreateCommentRequest{FileID: "unknown", Body: "b", X: coord(1), Y: coord(1)}
	if _, err := svc.Create(context.Background(), alice, req); !errors.Is(err, model.ErrFileNotFound) {
		t.Errorf("error = %v, want ErrFileNotFound", err)
	}

	req.FileID = "known"
	if _, err := svc.Create(context.Background(), alice, req); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCommentService_Create_StoreErrorIsWrapped(t *testing.T) {
	dbErr := errors.New("insert failed")
	repo := &mockCommentRepository{
		createFn: func(ctx context.Context, c *model.Comment) error { return dbErr },
	}
	svc := NewCommentService(repo, nil, newCapturePublisher())

	_, err := svc.Create(context.Background(), alice, model.CreateCommentRequest{FileID: "f1", Body: "b", X: coord(1), Y: coord(1)})
	if !errors.Is(err, dbErr) {
		t.Errorf("error should wrap store error, got %v", err)
	}
}

func TestCommentService_Create_DoesNotWaitForBroadcast(t *testing.T) {
	svc := NewCommentService(&mockCommentRepository{}, nil, blockingPublisher{})
	svc.SetPublishTimeout(200 * time.Millisecond)

	start := time.Now()
	_, err := svc.Create(context.Background(), alice, model.CreateCommentRequest{FileID: "f1", Body: "b", X: coord(1), Y: coord(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Create took %v, should not block on publish", elapsed)
	}

	svc.Wait()
}

func TestCommentService_Create_PublishFailureIsSwallowed(t *testing.T) {
	pub := newCapturePublisher()
	pub.err = errors.New("redis down")
	svc := NewCommentService(&mockCommentRepository{}, nil, pub)

	if _, err := svc.Create(context.Background(), alice, model.CreateCommentRequest{FileID: "f1", Body: "b", X: coord(1), Y: coord(1)}); err != nil {
		t.Errorf("publish failure leaked into create: %v", err)
	}
	svc.Wait()
}

// =============================================================================
// PAGINATE TESTS
// =============================================================================

func TestCommentService_Paginate_Validation(t *testing.T) {
	tests := []struct {
		name        string
		conn        model.ConnectionContext
		fileID      string
		page, limit int
		wantErr     error
	}{
		{name: "unauthenticated", conn: model.ConnectionContext{}, fileID: "f1", page: 1, limit: 10, wantErr: model.ErrUnauthorized},
		{name: "missing file", conn: alice, fileID: "", page: 1, limit: 10, wantErr: model.ErrValidation},
		{name: "page zero", conn: alice, fileID: "f1", page: 0, limit: 10, wantErr: model.ErrValidation},
		{name: "limit too large", conn: alice, fileID: "f1", page: 1, limit: 51, wantErr: model.ErrValidation},
		{name: "limit zero", conn: alice, fileID: "f1", page: 1, limit: 0, wantErr: model.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockCommentRepository{}
			svc := NewCommentService(repo, nil, nil)

			_, err := svc.Paginate(context.Background(), tt.conn, tt.fileID, tt.page, tt.limit)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if len(repo.listOffsets) != 0 {
				t.Error("store should not be queried for invalid input")
			}
		})
	}
}

func TestCommentService_Paginate_Metadata(t *testing.T) {
	repo := &mockCommentRepository{
		listByFileFn: func(ctx context.Context, fileID string, offset, limit int) ([]model.Comment, int, error) {
			return []model.Comment{{ID: "c"}}, 21, nil
		},
	}
	svc := NewCommentService(repo, nil, nil)

	page, err := svc.Paginate(context.Background(), alice, "f1", 3, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := model.Pagination{Total: 21, Page: 3, Limit: 10, Pages: 3, HasMore: false}
	if page.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", page.Pagination, want)
	}
	if repo.listOffsets[0] != 20 {
		t.Errorf("offset = %d, want 20", repo.listOffsets[0])
	}
}

func TestCommentService_Paginate_PageBeyondIntRange(t *testing.T) {
	repo := repository.NewMemoryCommentRepository()
	svc := NewCommentService(repo, nil, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, alice, model.CreateCommentRequest{FileID: "f1", Body: "only", X: coord(1), Y: coord(1)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name        string
		page, limit int
	}{
		{name: "offset wraps negative", page: 1 << 62, limit: 4},
		{name: "max page", page: math.MaxInt, limit: 50},
		{name: "max page limit one", page: math.MaxInt, limit: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.Paginate(ctx, alice, "f1", tt.page, tt.limit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(page.Comments) != 0 {
				t.Errorf("comments = %d, want 0", len(page.Comments))
			}
			if page.Pagination.Total != 1 || page.Pagination.HasMore {
				t.Errorf("pagination = %+v, want total 1 and no more", page.Pagination)
			}
		})
	}
}

func TestPageOffset(t *testing.T) {
	tests := []struct {
		page, limit, want int
	}{
		{page: 1, limit: 10, want: 0},
		{page: 3, limit: 10, want: 20},
		{page: 1 << 62, limit: 4, want: math.MaxInt},
		{page: math.MaxInt, limit: 1, want: math.MaxInt - 1},
		{page: math.MaxInt, limit: 2, want: math.MaxInt},
	}

	for _, tt := range tests {
		if got := pageOffset(tt.page, tt.limit); got != tt.want {
			t.Errorf("pageOffset(%d, %d) = %d, want %d", tt.page, tt.limit, got, tt.want)
		}
	}
}

func TestCommentService_Paginate_Forbidden(t *testing.T) {
	svc := NewCommentService(&mockCommentRepository{}, denyAccess{}, nil)
	if _, err := svc.Paginate(context.Background(), alice, "f1", 1, 10); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden", err)
	}
}

// =============================================================================
// END-TO-END WITH THE IN-MEMORY STORE AND HUB
// =============================================================================

func TestCommentService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	hub := fanout.NewHub(8)
	svc := NewCommentService(repository.NewMemoryCommentRepository(), nil, hub)

	bob := model.ConnectionContext{UserID: "bob", ConnectionID: "conn-bob"}
	aliceSub := hub.Subscribe("F", alice)
	bobSub := hub.Subscribe("F", bob)
	defer aliceSub.Close()
	defer bobSub.Close()

	a, err := svc.Create(ctx, alice, model.CreateCommentRequest{FileID: "F", Body: "A", X: coord(50), Y: coord(50)})
	if err != nil {
		t.Fatalf("create A: %v", err)
	}

	page, err := svc.Paginate(ctx, alice, "F", 1, 10)
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if len(page.Comments) != 1 || page.Comments[0].ID != a.ID || page.Pagination.Total != 1 || page.Pagination.HasMore {
		t.Fatalf("page = %+v", page)
	}

	svc.Wait()
	select {
	case ev := <-bobSub.Events():
		if ev.Comment.ID != a.ID {
			t.Errorf("bob got %s, want %s", ev.Comment.ID, a.ID)
		}
	default:
		t.Error("bob did not receive the live comment")
	}
	select {
	case ev := <-aliceSub.Events():
		t.Errorf("alice received her own comment %s", ev.Comment.ID)
	default:
	}

	b, err := svc.Create(ctx, bob, model.CreateCommentRequest{FileID: "F", Body: "B", ParentID: &a.ID})
	if err != nil {
		t.Fatalf("create B: %v", err)
	}
	if b.ParentID == nil || *b.ParentID != a.ID {
		t.Errorf("B parent = %v", b.ParentID)
	}

	if _, err := svc.Create(ctx, alice, model.CreateCommentRequest{FileID: "F", Body: "x", X: coord(50)}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("x without y: error = %v, want ErrValidation", err)
	}
	if _, err := svc.Create(ctx, alice, model.CreateCommentRequest{FileID: "F", Body: "x", ParentID: strp("ghost")}); !errors.Is(err, model.ErrParentNotFound) {
		t.Errorf("missing parent: error = %v, want ErrParentNotFound", err)
	}

	// A new top-level comment lands at the front without reordering the rest.
	before, _ := svc.Paginate(ctx, alice, "F", 1, 10)
	c, _ := svc.Create(ctx, bob, model.CreateCommentRequest{FileID: "F", Body: "C", X: coord(10), Y: coord(10)})
	after, _ := svc.Paginate(ctx, alice, "F", 1, 10)
	if after.Comments[0].ID != c.ID {
		t.Fatalf("first = %s, want new comment", after.Comments[0].ID)
	}
	for i, prev := range before.Comments {
		if after.Comments[i+1].ID != prev.ID {
			t.Errorf("after[%d] = %s, want %s", i+1, after.Comments[i+1].ID, prev.ID)
		}
	}
	svc.Wait()
}
