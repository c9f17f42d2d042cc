package comment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"anoa.com/threadline/internal/entity"
	commentDto "anoa.com/threadline/internal/modules/comment/dto"
	commentRepo "anoa.com/threadline/internal/modules/comment/repository"
	postRepo "anoa.com/threadline/internal/modules/post/repository"
	realtime "anoa.com/threadline/internal/modules/realtime/service"
	userRepo "anoa.com/threadline/internal/modules/user/repository"
	userService "anoa.com/threadline/internal/modules/user/service"
	"anoa.com/threadline/internal/testutil"
	"anoa.com/threadline/pkg/apperror"
	"anoa.com/threadline/pkg/dto"
	"anoa.com/threadline/pkg/ratelimiter"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeIndexer struct {
	mu      sync.Mutex
	indexed map[uint]string
	deleted []uint
	hits    []uint
	failErr error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{indexed: make(map[uint]string)}
}

func (f *fakeIndexer) IndexComment(c *entity.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.indexed[c.ID] = c.Content
	return nil
}

func (f *fakeIndexer) DeleteComment(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeIndexer) SearchComments(postID uint, query string, offset, limit int) ([]uint, int64, error) {
	return f.hits, int64(len(f.hits)), nil
}

type env struct {
	db      *gorm.DB
	svc     CommentService
	broker  *realtime.Broker
	indexer *fakeIndexer
	author  *entity.User
	post    *entity.Post
}

func newEnv(t *testing.T, limiter *ratelimiter.Limiter) env {
	t.Helper()
	db := testutil.NewDB(t)
	author := testutil.SeedUser(t, db, "alice")
	post := testutil.SeedPost(t, db, author.ID)

	broker := realtime.NewBroker(realtime.BrokerOptions{QueueSize: 32})
	hub := realtime.NewHub(broker)
	indexer := newFakeIndexer()
	display := userService.NewDisplayService(userRepo.NewUserRepository(db), 32, time.Minute)

	svc := NewCommentService(
		commentRepo.NewCommentRepository(db),
		postRepo.NewPostRepository(db),
		display,
		broker,
		realtime.NewActivityTracker(broker, hub, 32),
		indexer,
		limiter,
		Config{MaxLength: 50, RateLimit: time.Minute},
	)
	return env{db: db, svc: svc, broker: broker, indexer: indexer, author: author, post: post}
}

func nextEvent(t *testing.T, sub *realtime.Subscription) map[string]any {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		var out map[string]any
		require.NoError(t, json.Unmarshal(msg.Payload, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return nil
}

func TestCreateCommentPublishesCanonicalEvent(t *testing.T) {
	e := newEnv(t, nil)
	sub, err := e.broker.Subscribe(realtime.TopicForPost(e.post.ID))
	require.NoError(t, err)

	created, err := e.svc.CreateComment(context.Background(), e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: "first!"})
	require.NoError(t, err)

	ev := nextEvent(t, sub)
	assert.Equal(t, "new_comment", ev["type"])
	assert.EqualValues(t, created.ID, ev["id"])
	assert.Equal(t, "0", ev["path"])
	assert.Equal(t, "alice", ev["author"].(map[string]any)["username"])
	assert.NotEmpty(t, ev["timestamp"])

	select {
	case <-sub.Messages():
		t.Fatal("root comment should publish exactly one event")
	default:
	}
	assert.Equal(t, "first!", e.indexer.indexed[created.ID])
}

func TestReplyPublishesActivityForRoot(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	root, err := e.svc.CreateComment(ctx, e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: "root"})
	require.NoError(t, err)

	sub, _ := e.broker.Subscribe(realtime.TopicForPost(e.post.ID))
	reply, err := e.svc.CreateComment(ctx, e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: "reply", ParentID: &root.ID})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("0.%d", root.ID), reply.Path)

	assert.Equal(t, "new_comment", nextEvent(t, sub)["type"])
	activity := nextEvent(t, sub)
	assert.Equal(t, "comment_activity", activity["type"])
	assert.EqualValues(t, root.ID, activity["comment_id"])

	got, err := e.svc.GetComment(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ReplyCount)
	assert.NotNil(t, got.LastActivity)
}

func TestCreateCommentValidation(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		postID  uint
		req     commentDto.CreateCommentRequest
		wantErr error
	}{
		{"empty after sanitize", e.post.ID, commentDto.CreateCommentRequest{Content: "  <i></i> "}, apperror.ErrInvalidInput},
		{"too long", e.post.ID, commentDto.CreateCommentRequest{Content: strings.Repeat("x", 51)}, apperror.ErrInvalidInput},
		{"missing post", 999, commentDto.CreateCommentRequest{Content: "hi"}, apperror.ErrPostNotFound},
		{"missing parent", e.post.ID, commentDto.CreateCommentRequest{Content: "hi", ParentID: uptr(999)}, apperror.ErrParentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.CreateComment(ctx, e.author.ID, tt.postID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	var count int64
	e.db.Model(&entity.Comment{}).Count(&count)
	assert.Zero(t, count)
}

func uptr(v uint) *uint { return &v }

func TestCreateCommentRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := newEnv(t, ratelimiter.New(rdb))
	ctx := context.Background()

	_, err := e.svc.CreateComment(ctx, e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: "one"})
	require.NoError(t, err)

	_, err = e.svc.CreateComment(ctx, e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: "two"})
	var rlErr *ratelimiter.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.ErrorIs(t, err, apperror.ErrRateLimitExceeded)
	assert.Greater(t, rlErr.RetryAfter, time.Duration(0))

	// A failed write releases the cooldown.
	mr.FastForward(2 * time.Minute)
	_, err = e.svc.CreateComment(ctx, e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: "bad", ParentID: uptr(999)})
	require.Error(t, err)
	_, err = e.svc.CreateComment(ctx, e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: "three"})
	require.NoError(t, err)
}

func TestUpdateAndDeleteComment(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	created, err := e.svc.CreateComment(ctx, e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: "draft"})
	require.NoError(t, err)

	sub, _ := e.broker.Subscribe(realtime.TopicForPost(e.post.ID))

	updated, err := e.svc.UpdateComment(ctx, e.author.ID, created.ID, commentDto.UpdateCommentRequest{Content: "final"})
	require.NoError(t, err)
	assert.True(t, updated.IsEdited)
	require.Len(t, updated.EditHistory, 1)
	assert.Equal(t, "draft", updated.EditHistory[0].Content)
	assert.Equal(t, "update_comment", nextEvent(t, sub)["type"])

	_, err = e.svc.UpdateComment(ctx, e.author.ID+1, created.ID, commentDto.UpdateCommentRequest{Content: "hijack"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Equal(t, "only the author can modify this comment", err.Error())

	del, err := e.svc.DeleteComment(ctx, e.author.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "deleted", del.Status)
	ev := nextEvent(t, sub)
	assert.Equal(t, "delete_comment", ev["type"])
	assert.Equal(t, entity.Tombstone, ev["content"])
	assert.Equal(t, []uint{created.ID}, e.indexer.deleted)

	again, err := e.svc.DeleteComment(ctx, e.author.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "already_deleted", again.Status)

	got, err := e.svc.GetComment(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Empty(t, got.EditHistory)
	assert.Empty(t, got.ContentHTML)
}

func TestThreadAndListings(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	create := func(parent *uint, content string) *commentDto.CommentResponse {
		c, err := e.svc.CreateComment(ctx, e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: content, ParentID: parent})
		require.NoError(t, err)
		return c
	}
	r1 := create(nil, "r1")
	r2 := create(nil, "r2")
	a := create(&r1.ID, "a")
	b := create(&a.ID, "b")

	thread, err := e.svc.GetThread(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, thread.Root.ID)
	require.Len(t, thread.Descendants, 2)
	assert.Equal(t, a.ID, thread.Descendants[0].ID)
	assert.Equal(t, b.ID, thread.Descendants[1].ID)

	top, err := e.svc.ListTopLevel(ctx, e.post.ID, dto.PageQuery{Page: 1, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, top.Data, 1)
	assert.Equal(t, r2.ID, top.Data[0].ID)
	assert.Equal(t, 2, top.Meta.TotalPages)

	replies, err := e.svc.ListReplies(ctx, r1.ID, dto.PageQuery{})
	require.NoError(t, err)
	require.Len(t, replies.Data, 1)
	assert.Equal(t, a.ID, replies.Data[0].ID)

	_, err = e.svc.ListReplies(ctx, 999, dto.PageQuery{})
	assert.ErrorIs(t, err, apperror.ErrCommentNotFound)
	_, err = e.svc.ListTopLevel(ctx, 999, dto.PageQuery{})
	assert.ErrorIs(t, err, apperror.ErrPostNotFound)
}

func TestSearchUsesIndexHits(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	a, _ := e.svc.CreateComment(ctx, e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: "apples"})
	b, _ := e.svc.CreateComment(ctx, e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: "bananas"})
	e.indexer.hits = []uint{b.ID, a.ID}

	res, err := e.svc.Search(ctx, e.post.ID, commentDto.SearchQuery{Q: "fruit"})
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	assert.Equal(t, b.ID, res.Data[0].ID)
	assert.Equal(t, int64(2), res.Meta.TotalItems)
}

func TestIndexFailureDoesNotFailCreate(t *testing.T) {
	e := newEnv(t, nil)
	e.indexer.failErr = errors.New("meili down")

	_, err := e.svc.CreateComment(context.Background(), e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: "still works"})
	assert.NoError(t, err)
}

func TestEncodedMarkupIsNotDecodedIntoContent(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	sub, err := e.broker.Subscribe(realtime.TopicForPost(e.post.ID))
	require.NoError(t, err)

	created, err := e.svc.CreateComment(ctx, e.author.ID, e.post.ID, commentDto.CreateCommentRequest{Content: "&lt;img src=x onerror=alert(1)&gt;"})
	require.NoError(t, err)
	assert.NotContains(t, created.Content, "<img")
	assert.NotContains(t, nextEvent(t, sub)["content"], "<img")

	got, err := e.svc.GetComment(ctx, created.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Content, "<img")
	assert.NotContains(t, got.ContentHTML, "<img")

	updated, err := e.svc.UpdateComment(ctx, e.author.ID, created.ID, commentDto.UpdateCommentRequest{Content: "&lt;script&gt;x&lt;/script&gt;"})
	require.NoError(t, err)
	assert.NotContains(t, updated.Content, "<script")
	assert.NotContains(t, nextEvent(t, sub)["content"], "<script")
}
