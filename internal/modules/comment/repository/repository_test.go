package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"anoa.com/threadline/internal/entity"
	"anoa.com/threadline/internal/testutil"
	"anoa.com/threadline/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db   *gorm.DB
	repo CommentRepository
	post *entity.Post
	user *entity.User
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	user := testutil.SeedUser(t, db, "author")
	return fixture{
		db:   db,
		repo: NewCommentRepository(db),
		post: testutil.SeedPost(t, db, user.ID),
		user: user,
	}
}

func (f fixture) create(t *testing.T, parentID *uint, content string) *entity.Comment {
	t.Helper()
	c := &entity.Comment{PostID: f.post.ID, AuthorID: f.user.ID, ParentID: parentID, Content: content}
	require.NoError(t, f.repo.Create(context.Background(), c))
	return c
}

func (f fixture) reload(t *testing.T, id uint) *entity.Comment {
	t.Helper()
	c, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func TestCreateBuildsMaterializedPath(t *testing.T) {
	f := setup(t)

	c1 := f.create(t, nil, "root")
	assert.Equal(t, "0", c1.Path)
	assert.Equal(t, 0, c1.Depth)
	assert.Nil(t, c1.RootID)

	c2 := f.create(t, &c1.ID, "reply")
	assert.Equal(t, fmt.Sprintf("0.%d", c1.ID), c2.Path)
	assert.Equal(t, 1, c2.Depth)
	require.NotNil(t, c2.RootID)
	assert.Equal(t, c1.ID, *c2.RootID)
	assert.Equal(t, int64(1), f.reload(t, c1.ID).ReplyCount)

	c3 := f.create(t, &c2.ID, "nested")
	assert.Equal(t, fmt.Sprintf("0.%d.%d", c1.ID, c2.ID), c3.Path)
	assert.Equal(t, 2, c3.Depth)
	require.NotNil(t, c3.RootID)
	assert.Equal(t, c1.ID, *c3.RootID)

	// Only the direct parent's reply_count moves.
	assert.Equal(t, int64(1), f.reload(t, c1.ID).ReplyCount)
	assert.Equal(t, int64(1), f.reload(t, c2.ID).ReplyCount)

	var post entity.Post
	require.NoError(t, f.db.First(&post, f.post.ID).Error)
	assert.Equal(t, int64(3), post.CommentCount)
}

func TestPathInvariantsHoldAcrossTree(t *testing.T) {
	f := setup(t)

	roots := []*entity.Comment{f.create(t, nil, "a"), f.create(t, nil, "b")}
	all := append([]*entity.Comment{}, roots...)
	frontier := roots
	for level := 0; level < 3; level++ {
		var next []*entity.Comment
		for _, p := range frontier {
			for i := 0; i < 2; i++ {
				next = append(next, f.create(t, &p.ID, "child"))
			}
		}
		all = append(all, next...)
		frontier = next
	}

	byID := make(map[uint]*entity.Comment)
	for _, c := range all {
		byID[c.ID] = f.reload(t, c.ID)
	}
	for _, c := range byID {
		assert.Equal(t, entity.PathDepth(c.Path), c.Depth)
		if c.ParentID == nil {
			assert.Equal(t, entity.RootPath, c.Path)
			continue
		}
		parent := byID[*c.ParentID]
		assert.Equal(t, parent.Depth+1, c.Depth)
		assert.True(t, strings.HasPrefix(c.Path, parent.Path+"."))
		assert.Equal(t, int64(2), parent.ReplyCount)
	}
}

func TestCreateRejectsMissingParentAndPost(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	missing := uint(9999)
	err := f.repo.Create(ctx, &entity.Comment{PostID: f.post.ID, AuthorID: f.user.ID, ParentID: &missing, Content: "x"})
	assert.ErrorIs(t, err, apperror.ErrParentNotFound)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	err = f.repo.Create(ctx, &entity.Comment{PostID: 9999, AuthorID: f.user.ID, Content: "x"})
	assert.ErrorIs(t, err, apperror.ErrPostNotFound)

	other := testutil.SeedPost(t, f.db, f.user.ID)
	parent := f.create(t, nil, "root")
	err = f.repo.Create(ctx, &entity.Comment{PostID: other.ID, AuthorID: f.user.ID, ParentID: &parent.ID, Content: "x"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	// Nothing was counted for the rejected inserts.
	assert.Equal(t, int64(0), f.reload(t, parent.ID).ReplyCount)
}

func TestComputePath(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	path, err := f.repo.ComputePath(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "0", path)

	root := f.create(t, nil, "root")
	path, err = f.repo.ComputePath(ctx, &root.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("0.%d", root.ID), path)

	missing := uint(777)
	_, err = f.repo.ComputePath(ctx, &missing)
	assert.ErrorIs(t, err, apperror.ErrParentNotFound)
}

func TestSubtreeExcludesSiblingsSharingPrefix(t *testing.T) {
	f := setup(t)

	var roots []*entity.Comment
	for i := 0; i < 12; i++ {
		roots = append(roots, f.create(t, nil, fmt.Sprintf("root %d", i+1)))
	}
	first, twelfth := roots[0], roots[11]
	require.Equal(t, uint(1), first.ID)
	require.Equal(t, uint(12), twelfth.ID)

	a := f.create(t, &first.ID, "a")
	b := f.create(t, &a.ID, "b")
	c := f.create(t, &first.ID, "c")
	f.create(t, &twelfth.ID, "under twelve")

	subtree, err := f.repo.Subtree(context.Background(), first)
	require.NoError(t, err)

	var ids []uint
	for _, s := range subtree {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []uint{a.ID, b.ID, c.ID}, ids)
}

func TestListOrdering(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	r1 := f.create(t, nil, "first root")
	r2 := f.create(t, nil, "second root")
	r3 := f.create(t, nil, "third root")
	x := f.create(t, &r1.ID, "x")
	y := f.create(t, &r1.ID, "y")
	z := f.create(t, &r1.ID, "z")

	top, total, err := f.repo.ListTopLevel(ctx, f.post.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, top, 3)
	assert.Equal(t, []uint{r3.ID, r2.ID, r1.ID}, []uint{top[0].ID, top[1].ID, top[2].ID})

	replies, total, err := f.repo.ListReplies(ctx, r1.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, replies, 3)
	assert.Equal(t, []uint{x.ID, y.ID, z.ID}, []uint{replies[0].ID, replies[1].ID, replies[2].ID})

	page, _, err := f.repo.ListReplies(ctx, r1.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, y.ID, page[0].ID)
}

func TestSoftDeleteKeepsDescendants(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	root := f.create(t, nil, "root")
	child := f.create(t, &root.ID, "child")
	grandchild := f.create(t, &child.ID, "grandchild")

	deleted, changed, err := f.repo.SoftDelete(ctx, child.ID, f.user.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, entity.Tombstone, deleted.Content)

	_, changed, err = f.repo.SoftDelete(ctx, child.ID, f.user.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	subtree, err := f.repo.Subtree(ctx, root)
	require.NoError(t, err)
	require.Len(t, subtree, 2)
	assert.Equal(t, grandchild.Path, subtree[1].Path)
	assert.Equal(t, "grandchild", subtree[1].Content)

	// A deleted comment keeps its reply slot.
	assert.Equal(t, int64(1), f.reload(t, root.ID).ReplyCount)
}

func TestSoftDeleteAndEditRequireAuthor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, nil, "mine")

	_, _, err := f.repo.SoftDelete(ctx, c.ID, f.user.ID+1)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.repo.Edit(ctx, c.ID, f.user.ID+1, "theirs", time.Now())
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, _, err = f.repo.SoftDelete(ctx, 4242, f.user.ID)
	assert.ErrorIs(t, err, apperror.ErrCommentNotFound)

	assert.Equal(t, "mine", f.reload(t, c.ID).Content)
}

func TestEditAppendsHistory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, nil, "v1")

	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	_, err := f.repo.Edit(ctx, c.ID, f.user.ID, "v2", t1)
	require.NoError(t, err)
	edited, err := f.repo.Edit(ctx, c.ID, f.user.ID, "v3", t2)
	require.NoError(t, err)
	assert.Equal(t, "v3", edited.Content)

	stored := f.reload(t, c.ID)
	assert.True(t, stored.IsEdited)
	assert.Equal(t, "v3", stored.Content)
	require.Len(t, stored.EditHistory, 2)
	assert.Equal(t, "v1", stored.EditHistory[0].Content)
	assert.True(t, t1.Equal(stored.EditHistory[0].EditedAt))
	assert.Equal(t, "v2", stored.EditHistory[1].Content)
	assert.Equal(t, c.Path, stored.Path)
}

func TestEditDeletedCommentFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.create(t, nil, "gone soon")

	_, _, err := f.repo.SoftDelete(ctx, c.ID, f.user.ID)
	require.NoError(t, err)

	_, err = f.repo.Edit(ctx, c.ID, f.user.ID, "back", time.Now())
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestFindByIDsKeepsOrder(t *testing.T) {
	f := setup(t)
	a := f.create(t, nil, "a")
	b := f.create(t, nil, "b")

	got, err := f.repo.FindByIDs(context.Background(), []uint{b.ID, 999, a.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
}

func TestCreateRejectsPathPastLimit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	deep := &entity.Comment{
		PostID:   f.post.ID,
		AuthorID: f.user.ID,
		Path:     entity.RootPath + strings.Repeat(".11", 341),
		Content:  "deep",
	}
	require.NoError(t, f.db.Create(deep).Error)
	require.Len(t, deep.Path, entity.MaxPathLength)

	reply := &entity.Comment{PostID: f.post.ID, AuthorID: f.user.ID, ParentID: &deep.ID, Content: "too deep"}
	err := f.repo.Create(ctx, reply)
	assert.ErrorIs(t, err, ErrTooDeep)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	assert.Equal(t, 400, apperror.MapErrorToStatus(err))

	var replies int64
	require.NoError(t, f.db.Model(&entity.Comment{}).Where("parent_id = ?", deep.ID).Count(&replies).Error)
	assert.Zero(t, replies)
	assert.Zero(t, f.reload(t, deep.ID).ReplyCount)
}
