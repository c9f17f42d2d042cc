package repository

import (
	"context"
	"errors"
	"sort"

	"anoa.com/threadline/internal/entity"
	"anoa.com/threadline/pkg/apperror"
	"anoa.com/threadline/pkg/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Comparison holds a target's stored counters next to the values recomputed
// from the ledger, both keyed by column name.
type Comparison struct {
	PostID   uint
	Stored   map[string]int64
	Expected map[string]int64
}

// Mismatched returns the columns whose stored value differs.
func (c *Comparison) Mismatched() []string {
	var cols []string
	for col, want := range c.Expected {
		if c.Stored[col] != want {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}

type ReconcileRepository interface {
	ExpectedCounts(ctx context.Context, target entity.TargetType, id uint) (map[string]int64, error)
	Compare(ctx context.Context, target entity.TargetType, id uint) (*Comparison, error)
	// Repair overwrites mismatched counters and returns the comparison taken
	// before the write.
	Repair(ctx context.Context, target entity.TargetType, id uint) (*Comparison, error)
	// NextIDs pages target ids by keyset, ascending, strictly after afterID.
	NextIDs(ctx context.Context, target entity.TargetType, afterID uint, limit int) ([]uint, error)
}

type reconcileRepository struct {
	db *gorm.DB
}

func NewReconcileRepository(db *gorm.DB) ReconcileRepository {
	return &reconcileRepository{db: db}
}

var ledgers = map[entity.TargetType]struct{ table, foreignKey string }{
	entity.TargetPost:    {"post_interactions", "post_id"},
	entity.TargetComment: {"comment_interactions", "comment_id"},
}

type typeTotal struct {
	InteractionTypeID uint
	Total             int64
}

func expected(tx *gorm.DB, target entity.TargetType, id uint) (map[string]int64, error) {
	ledger, ok := ledgers[target]
	if !ok {
		return nil, apperror.Invalid("unknown target type %q", target)
	}

	counts := make(map[string]int64)
	for _, col := range entity.CounterColumns(target) {
		counts[col] = 0
	}

	var totals []typeTotal
	if err := tx.Table(ledger.table).
		Select("interaction_type_id, COUNT(*) AS total").
		Where(ledger.foreignKey+" = ?", id).
		Group("interaction_type_id").
		Scan(&totals).Error; err != nil {
		return nil, err
	}
	for _, t := range totals {
		if col, ok := entity.CounterColumn(target, t.InteractionTypeID); ok {
			counts[col] = t.Total
		}
	}

	var n int64
	switch target {
	case entity.TargetComment:
		if err := tx.Model(&entity.Comment{}).Where("parent_id = ?", id).Count(&n).Error; err != nil {
			return nil, err
		}
		counts["reply_count"] = n
	case entity.TargetPost:
		if err := tx.Model(&entity.Comment{}).Where("post_id = ?", id).Count(&n).Error; err != nil {
			return nil, err
		}
		counts["comment_count"] = n
	}
	return counts, nil
}

func stored(tx *gorm.DB, target entity.TargetType, id uint, lock bool) (uint, map[string]int64, error) {
	q := tx
	if lock && database.IsPostgres(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	switch target {
	case entity.TargetPost:
		var post entity.Post
		if err := q.Take(&post, id).Error; err != nil {
			return 0, nil, notFound(err)
		}
		return post.ID, post.Counters(), nil
	case entity.TargetComment:
		var comment entity.Comment
		if err := q.Take(&comment, id).Error; err != nil {
			return 0, nil, notFound(err)
		}
		return comment.PostID, comment.Counters(), nil
	}
	return 0, nil, apperror.Invalid("unknown target type %q", target)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.ErrTargetNotFound
	}
	return err
}

func compare(tx *gorm.DB, target entity.TargetType, id uint, lock bool) (*Comparison, error) {
	postID, current, err := stored(tx, target, id, lock)
	if err != nil {
		return nil, err
	}
	want, err := expected(tx, target, id)
	if err != nil {
		return nil, err
	}
	return &Comparison{PostID: postID, Stored: current, Expected: want}, nil
}

func (r *reconcileRepository) ExpectedCounts(ctx context.Context, target entity.TargetType, id uint) (map[string]int64, error) {
	db := r.db.WithContext(ctx)
	if _, _, err := stored(db, target, id, false); err != nil {
		return nil, err
	}
	return expected(db, target, id)
}

func (r *reconcileRepository) Compare(ctx context.Context, target entity.TargetType, id uint) (*Comparison, error) {
	var cmp *Comparison
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		cmp, err = compare(tx, target, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cmp, nil
}

func (r *reconcileRepository) Repair(ctx context.Context, target entity.TargetType, id uint) (*Comparison, error) {
	var cmp *Comparison
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		cmp, err = compare(tx, target, id, true)
		if err != nil {
			return err
		}

		cols := cmp.Mismatched()
		if len(cols) == 0 {
			return nil
		}
		updates := make(map[string]any, len(cols))
		for _, col := range cols {
			updates[col] = cmp.Expected[col]
		}

		table := "posts"
		if target == entity.TargetComment {
			table = "comments"
		}
		return tx.Table(table).Where("id = ?", id).UpdateColumns(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return cmp, nil
}

func (r *reconcileRepository) NextIDs(ctx context.Context, target entity.TargetType, afterID uint, limit int) ([]uint, error) {
	var model any
	switch target {
	case entity.TargetPost:
		model = &entity.Post{}
	case entity.TargetComment:
		model = &entity.Comment{}
	default:
		return nil, apperror.Invalid("unknown target type %q", target)
	}

	var ids []uint
	err := r.db.WithContext(ctx).Model(model).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
