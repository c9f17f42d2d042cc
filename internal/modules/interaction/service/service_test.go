package interaction

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"anoa.com/threadline/internal/entity"
	interactionDto "anoa.com/threadline/internal/modules/interaction/dto"
	interactionRepo "anoa.com/threadline/internal/modules/interaction/repository"
	realtime "anoa.com/threadline/internal/modules/realtime/service"
	"anoa.com/threadline/internal/testutil"
	"anoa.com/threadline/pkg/apperror"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type env struct {
	svc     *interactionService
	broker  *realtime.Broker
	mr      *miniredis.Miniredis
	user    *entity.User
	post    *entity.Post
	comment *entity.Comment
}

func newEnv(t *testing.T) env {
	t.Helper()
	db := testutil.NewDB(t)
	user := testutil.SeedUser(t, db, "bob")
	post := testutil.SeedPost(t, db, user.ID)
	comment := &entity.Comment{PostID: post.ID, AuthorID: user.ID, Path: entity.RootPath, Content: "hello"}
	require.NoError(t, db.Create(comment).Error)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	broker := realtime.NewBroker(realtime.BrokerOptions{QueueSize: 16})
	svc := NewInteractionService(interactionRepo.NewInteractionRepository(db), broker, rdb).(*interactionService)
	svc.now = func() time.Time { return fixedNow }

	return env{svc: svc, broker: broker, mr: mr, user: user, post: post, comment: comment}
}

func nextEvent(t *testing.T, sub *realtime.Subscription) realtime.Event {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		var ev realtime.Event
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return realtime.Event{}
}

func TestTogglePublishesCounterUpdate(t *testing.T) {
	e := newEnv(t)
	sub, err := e.broker.Subscribe(realtime.TopicForPost(e.post.ID))
	require.NoError(t, err)

	resp, err := e.svc.Toggle(context.Background(), e.user.ID, interactionDto.ToggleRequest{
		TargetType:      "comment",
		TargetID:        e.comment.ID,
		InteractionType: "Like",
	})
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.Equal(t, int64(1), resp.Count)
	assert.Equal(t, "like", resp.InteractionType)

	ev := nextEvent(t, sub)
	assert.Equal(t, realtime.EventCounterUpdate, ev.Type)
	data := ev.Data.(map[string]any)
	assert.Equal(t, "comment", data["target_type"])
	assert.Equal(t, float64(e.comment.ID), data["target_id"])
	assert.Equal(t, float64(1), data["counts"].(map[string]any)["like"])
}

func TestToggleRecordsAnalytics(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := interactionDto.ToggleRequest{TargetType: "post", TargetID: e.post.ID, InteractionTypeID: entity.InteractionShare}

	_, err := e.svc.Toggle(ctx, e.user.ID, req)
	require.NoError(t, err)
	_, err = e.svc.Toggle(ctx, e.user.ID, req)
	require.NoError(t, err)
	_, err = e.svc.Toggle(ctx, e.user.ID, req)
	require.NoError(t, err)

	key := "stats:interactions:2026-03-14"
	assert.Equal(t, "2", e.mr.HGet(key, "post:share:on"))
	assert.Equal(t, "1", e.mr.HGet(key, "post:share:off"))
	assert.True(t, e.mr.TTL(key) > 0)
}

func TestAnalyticsFailureDoesNotBreakToggle(t *testing.T) {
	e := newEnv(t)
	e.mr.Close()

	resp, err := e.svc.Toggle(context.Background(), e.user.ID, interactionDto.ToggleRequest{
		TargetType:        "comment",
		TargetID:          e.comment.ID,
		InteractionTypeID: entity.InteractionReport,
	})
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.Equal(t, int64(1), resp.Counts["report"])
}

func TestToggleValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  interactionDto.ToggleRequest
		want error
	}{
		{"unknown target", interactionDto.ToggleRequest{TargetType: "user", TargetID: 1, InteractionTypeID: 1}, apperror.ErrInvalidInput},
		{"missing type", interactionDto.ToggleRequest{TargetType: "post", TargetID: e.post.ID}, apperror.ErrInvalidInteractionType},
		{"unknown type id", interactionDto.ToggleRequest{TargetType: "post", TargetID: e.post.ID, InteractionTypeID: 42}, apperror.ErrInvalidInteractionType},
		{"unknown type name", interactionDto.ToggleRequest{TargetType: "post", TargetID: e.post.ID, InteractionType: "love"}, apperror.ErrInvalidInteractionType},
		{"save on comment", interactionDto.ToggleRequest{TargetType: "comment", TargetID: e.comment.ID, InteractionType: "save"}, apperror.ErrInvalidInteractionType},
		{"missing target", interactionDto.ToggleRequest{TargetType: "comment", TargetID: 777, InteractionType: "like"}, apperror.ErrTargetNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Toggle(ctx, e.user.ID, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSetReactionSwitchesAndRecords(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.SetReaction(ctx, e.user.ID, interactionDto.ReactionRequest{TargetType: "post", TargetID: e.post.ID, Reaction: "like"})
	require.NoError(t, err)

	resp, err := e.svc.SetReaction(ctx, e.user.ID, interactionDto.ReactionRequest{TargetType: "post", TargetID: e.post.ID, Reaction: "dislike"})
	require.NoError(t, err)
	assert.True(t, resp.Applied)
	assert.Equal(t, "dislike", resp.Reaction)
	assert.Equal(t, int64(0), resp.Counts["like"])
	assert.Equal(t, int64(1), resp.Counts["dislike"])
	assert.True(t, resp.State["dislike"])
	assert.False(t, resp.State["like"])

	key := "stats:interactions:2026-03-14"
	assert.Equal(t, "1", e.mr.HGet(key, "post:like:on"))
	assert.Equal(t, "1", e.mr.HGet(key, "post:like:off"))
	assert.Equal(t, "1", e.mr.HGet(key, "post:dislike:on"))

	_, err = e.svc.SetReaction(ctx, e.user.ID, interactionDto.ReactionRequest{TargetType: "post", TargetID: e.post.ID, Reaction: "report"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInteractionType)
}

func TestSnapshotAndState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Toggle(ctx, e.user.ID, interactionDto.ToggleRequest{TargetType: "comment", TargetID: e.comment.ID, InteractionType: "like"})
	require.NoError(t, err)

	anon, err := e.svc.GetSnapshot(ctx, nil, "comment", e.comment.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), anon.Counts["like"])
	assert.Nil(t, anon.State)

	state, err := e.svc.GetState(ctx, e.user.ID, "COMMENT", e.comment.ID)
	require.NoError(t, err)
	assert.True(t, state["like"])
	assert.False(t, state["report"])

	_, err = e.svc.GetSnapshot(ctx, nil, "thread", e.comment.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}
