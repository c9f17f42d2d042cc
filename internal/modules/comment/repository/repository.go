package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"anoa.com/threadline/internal/entity"
	"anoa.com/threadline/pkg/apperror"
	"anoa.com/threadline/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotAuthor   = apperror.New(http.StatusForbidden, "only the author can modify this comment", apperror.ErrForbidden)
	ErrDeleted     = apperror.Invalid("comment has been deleted")
	ErrParentOther = apperror.Invalid("parent comment belongs to another post")
	ErrTooDeep     = apperror.New(http.StatusBadRequest, fmt.Sprintf("reply chain is too deep, paths are limited to %d characters", entity.MaxPathLength), apperror.ErrInvalidInput)
)

type CommentRepository interface {
	ComputePath(ctx context.Context, parentID *uint) (string, error)
	Create(ctx context.Context, comment *entity.Comment) error
	FindByID(ctx context.Context, id uint) (*entity.Comment, error)
	FindByIDs(ctx context.Context, ids []uint) ([]entity.Comment, error)
	ListTopLevel(ctx context.Context, postID uint, offset, limit int) ([]entity.Comment, int64, error)
	ListReplies(ctx context.Context, parentID uint, offset, limit int) ([]entity.Comment, int64, error)
	Subtree(ctx context.Context, root *entity.Comment) ([]entity.Comment, error)
	SoftDelete(ctx context.Context, id, userID uint) (*entity.Comment, bool, error)
	Edit(ctx context.Context, id, userID uint, content string, at time.Time) (*entity.Comment, error)
}

type commentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

// ComputePath returns the path a new comment under parentID would carry.
func (r *commentRepository) ComputePath(ctx context.Context, parentID *uint) (string, error) {
	_, path, err := computePath(r.db.WithContext(ctx), parentID)
	return path, err
}

func computePath(tx *gorm.DB, parentID *uint) (*entity.Comment, string, error) {
	if parentID == nil {
		return nil, entity.RootPath, nil
	}
	var parent entity.Comment
	if err := tx.Select("id", "post_id", "path").First(&parent, *parentID).Error; err != nil {
		return nil, "", notFound(err, apperror.ErrParentNotFound)
	}
	return &parent, parent.ChildPath(), nil
}

// Create derives path, depth and root for comment, inserts it and bumps the
// direct parent's reply_count and the post's comment_count in one transaction.
func (r *commentRepository) Create(ctx context.Context, comment *entity.Comment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var posts int64
		if err := tx.Model(&entity.Post{}).Where("id = ?", comment.PostID).Count(&posts).Error; err != nil {
			return err
		}
		if posts == 0 {
			return apperror.ErrPostNotFound
		}

		parent, path, err := computePath(tx, comment.ParentID)
		if err != nil {
			return err
		}
		if parent != nil && parent.PostID != comment.PostID {
			return ErrParentOther
		}

		if len(path) > entity.MaxPathLength {
			return ErrTooDeep
		}

		root, err := entity.PathRoot(path)
		if err != nil {
			return fmt.Errorf("corrupt parent path %q: %w", path, err)
		}
		comment.Path = path
		comment.Depth = entity.PathDepth(path)
		comment.RootID = root

		if err := tx.Create(comment).Error; err != nil {
			return err
		}

		if parent != nil {
			if err := tx.Model(&entity.Comment{}).Where("id = ?", parent.ID).
				UpdateColumn("reply_count", gorm.Expr("reply_count + ?", 1)).Error; err != nil {
				return err
			}
		}

		return tx.Model(&entity.Post{}).Where("id = ?", comment.PostID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + ?", 1)).Error
	})
}

func (r *commentRepository) FindByID(ctx context.Context, id uint) (*entity.Comment, error) {
	var comment entity.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		return nil, notFound(err, apperror.ErrCommentNotFound)
	}
	return &comment, nil
}

// FindByIDs returns the comments in the order of ids, skipping unknown ones.
func (r *commentRepository) FindByIDs(ctx context.Context, ids []uint) ([]entity.Comment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []entity.Comment
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]entity.Comment, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	out := make([]entity.Comment, 0, len(found))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListTopLevel pages a post's root comments, newest first.
func (r *commentRepository) ListTopLevel(ctx context.Context, postID uint, offset, limit int) ([]entity.Comment, int64, error) {
	var comments []entity.Comment
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Comment{}).
		Where("post_id = ? AND parent_id IS NULL", postID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).Find(&comments).Error; err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

// ListReplies pages the direct children of parentID in reading order.
func (r *commentRepository) ListReplies(ctx context.Context, parentID uint, offset, limit int) ([]entity.Comment, int64, error) {
	var comments []entity.Comment
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Comment{}).Where("parent_id = ?", parentID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at ASC").Order("id ASC").
		Offset(offset).Limit(limit).Find(&comments).Error; err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

// Subtree returns every descendant of root in creation order. The exact
// match plus ".%" suffix keeps sibling ids that share a digit prefix out.
func (r *commentRepository) Subtree(ctx context.Context, root *entity.Comment) ([]entity.Comment, error) {
	prefix := root.ChildPath()

	var comments []entity.Comment
	err := r.db.WithContext(ctx).
		Where("post_id = ?", root.PostID).
		Where("(path = ? OR path LIKE ?)", prefix, prefix+".%").
		Order("created_at ASC").Order("id ASC").
		Find(&comments).Error
	return comments, err
}

// lockForUpdate loads a comment, taking a row lock where the dialect has one.
func lockForUpdate(tx *gorm.DB, id uint) (*entity.Comment, error) {
	q := tx
	if database.IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var comment entity.Comment
	if err := q.First(&comment, id).Error; err != nil {
		return nil, notFound(err, apperror.ErrCommentNotFound)
	}
	return &comment, nil
}

// SoftDelete tombstones the comment and keeps its slot in the tree. The bool
// reports whether this call changed anything.
func (r *commentRepository) SoftDelete(ctx context.Context, id, userID uint) (*entity.Comment, bool, error) {
	var result *entity.Comment
	changed := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		comment, err := lockForUpdate(tx, id)
		if err != nil {
			return err
		}
		if comment.AuthorID != userID {
			return ErrNotAuthor
		}
		result = comment
		if comment.IsDeleted {
			return nil
		}

		comment.IsDeleted = true
		comment.Content = entity.Tombstone
		if err := tx.Model(comment).Select("is_deleted", "content", "updated_at").Updates(comment).Error; err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

// Edit replaces the content and appends the previous version to the history.
func (r *commentRepository) Edit(ctx context.Context, id, userID uint, content string, at time.Time) (*entity.Comment, error) {
	var result *entity.Comment

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		comment, err := lockForUpdate(tx, id)
		if err != nil {
			return err
		}
		if comment.AuthorID != userID {
			return ErrNotAuthor
		}
		if comment.IsDeleted {
			return ErrDeleted
		}

		comment.EditHistory = append(comment.EditHistory, entity.EditRecord{
			Content:  comment.Content,
			EditedAt: at.UTC(),
		})
		comment.Content = content
		comment.IsEdited = true

		if err := tx.Model(comment).Select("content", "is_edited", "edit_history", "updated_at").Updates(comment).Error; err != nil {
			return err
		}
		result = comment
		return nil
	})
	return result, err
}
