package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"anoa.com/threadline/internal/entity"
	"anoa.com/threadline/pkg/apperror"
	"anoa.com/threadline/pkg/database"
	"gorm.io/gorm"
)

// Key identifies one interaction row.
type Key struct {
	UserID     uint
	TargetType entity.TargetType
	TargetID   uint
	TypeID     uint
}

type ToggleResult struct {
	Applied bool
	Count   int64
	Counts  map[string]int64
	PostID  uint
	// Raced is set when a concurrent insert of the same key won and this
	// call was resolved from the unique constraint.
	Raced bool
}

type ReactionResult struct {
	Applied bool
	// Cleared is set when the opposite reaction was toggled off first.
	Cleared bool
	Counts  map[string]int64
	State   map[string]bool
	PostID  uint
}

type Snapshot struct {
	PostID uint
	Counts map[string]int64
	State  map[string]bool
}

type InteractionRepository interface {
	Toggle(ctx context.Context, key Key, metadata entity.Metadata) (*ToggleResult, error)
	SetReaction(ctx context.Context, key Key) (*ReactionResult, error)
	Snapshot(ctx context.Context, userID *uint, target entity.TargetType, targetID uint) (*Snapshot, error)
}

type interactionRepository struct {
	db *gorm.DB
}

func NewInteractionRepository(db *gorm.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

type tableSpec struct {
	ledger      string
	foreignKey  string
	target      string
	postIDField string
}

var specs = map[entity.TargetType]tableSpec{
	entity.TargetPost:    {ledger: "post_interactions", foreignKey: "post_id", target: "posts", postIDField: "id"},
	entity.TargetComment: {ledger: "comment_interactions", foreignKey: "comment_id", target: "comments", postIDField: "post_id"},
}

func specFor(target entity.TargetType) (tableSpec, error) {
	spec, ok := specs[target]
	if !ok {
		return tableSpec{}, apperror.Invalid("unknown target type %q", target)
	}
	return spec, nil
}

func newRow(key Key, metadata entity.Metadata) any {
	if key.TargetType == entity.TargetPost {
		return &entity.PostInteraction{UserID: key.UserID, PostID: key.TargetID, InteractionTypeID: key.TypeID, Metadata: metadata}
	}
	return &entity.CommentInteraction{UserID: key.UserID, CommentID: key.TargetID, InteractionTypeID: key.TypeID, Metadata: metadata}
}

func rowModel(target entity.TargetType) any {
	if target == entity.TargetPost {
		return &entity.PostInteraction{}
	}
	return &entity.CommentInteraction{}
}

// loadCounters reads the target's post id and interaction counters keyed by
// type name. A missing target is ErrTargetNotFound.
func loadCounters(tx *gorm.DB, target entity.TargetType, targetID uint) (uint, map[string]int64, error) {
	var postID uint
	var columns map[string]int64

	switch target {
	case entity.TargetPost:
		var post entity.Post
		if err := tx.Take(&post, targetID).Error; err != nil {
			return 0, nil, translateTarget(err)
		}
		postID, columns = post.ID, post.Counters()
	case entity.TargetComment:
		var comment entity.Comment
		if err := tx.Take(&comment, targetID).Error; err != nil {
			return 0, nil, translateTarget(err)
		}
		postID, columns = comment.PostID, comment.Counters()
	default:
		return 0, nil, apperror.Invalid("unknown target type %q", target)
	}

	return postID, entity.CountsByName(target, columns), nil
}

func translateTarget(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.ErrTargetNotFound
	}
	return err
}

func activeTypes(tx *gorm.DB, spec tableSpec, userID, targetID uint) ([]uint, error) {
	var ids []uint
	err := tx.Table(spec.ledger).
		Where("user_id = ? AND "+spec.foreignKey+" = ?", userID, targetID).
		Pluck("interaction_type_id", &ids).Error
	return ids, err
}

func stateFor(target entity.TargetType, active []uint) map[string]bool {
	state := make(map[string]bool)
	for typeID := range entity.CounterColumns(target) {
		state[entity.InteractionTypeName(typeID)] = false
	}
	for _, typeID := range active {
		if name := entity.InteractionTypeName(typeID); name != "" {
			if _, ok := state[name]; ok {
				state[name] = true
			}
		}
	}
	return state
}

func (r *interactionRepository) Toggle(ctx context.Context, key Key, metadata entity.Metadata) (*ToggleResult, error) {
	var result *ToggleResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = toggle(tx, key, metadata)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// toggle flips the presence of key's row and moves the matching counter with
// it. It must run inside a transaction.
func toggle(tx *gorm.DB, key Key, metadata entity.Metadata) (*ToggleResult, error) {
	spec, err := specFor(key.TargetType)
	if err != nil {
		return nil, err
	}
	column, ok := entity.CounterColumn(key.TargetType, key.TypeID)
	if !ok {
		return nil, apperror.ErrInvalidInteractionType
	}

	postID, _, err := loadCounters(tx, key.TargetType, key.TargetID)
	if err != nil {
		return nil, err
	}

	// Find with a slice keeps gorm from logging record-not-found.
	var existing []uint
	if err := tx.Table(spec.ledger).
		Where("user_id = ? AND "+spec.foreignKey+" = ? AND interaction_type_id = ?", key.UserID, key.TargetID, key.TypeID).
		Limit(1).
		Pluck("id", &existing).Error; err != nil {
		return nil, err
	}

	result := &ToggleResult{PostID: postID}

	if len(existing) > 0 {
		res := tx.Where("id = ?", existing[0]).Delete(rowModel(key.TargetType))
		if res.Error != nil {
			return nil, res.Error
		}
		// Zero rows means a concurrent toggle already removed it and
		// decremented; the interaction is off either way.
		if res.RowsAffected > 0 {
			if err := decrement(tx, spec, column, key); err != nil {
				return nil, err
			}
		}
		result.Applied = false
	} else {
		// The savepoint keeps the outer transaction usable if the insert
		// loses a race on the unique index.
		err := tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(newRow(key, metadata)).Error
		})
		switch {
		case err == nil:
			if err := tx.Table(spec.target).Where("id = ?", key.TargetID).
				UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error; err != nil {
				return nil, err
			}
		case errors.Is(err, gorm.ErrDuplicatedKey):
			log.Printf("🔁 toggle race on %s %d type %d by user %d resolved as applied", key.TargetType, key.TargetID, key.TypeID, key.UserID)
			result.Raced = true
		default:
			return nil, err
		}
		result.Applied = true
	}

	_, counts, err := loadCounters(tx, key.TargetType, key.TargetID)
	if err != nil {
		return nil, err
	}
	result.Counts = counts
	result.Count = counts[entity.InteractionTypeName(key.TypeID)]
	return result, nil
}

// decrement never takes a counter below zero. A counter already at zero
// while a ledger row existed is drift; it is logged and left for reconciliation.
func decrement(tx *gorm.DB, spec tableSpec, column string, key Key) error {
	res := tx.Table(spec.target).
		Where("id = ? AND "+column+" > 0", key.TargetID).
		UpdateColumn(column, gorm.Expr(column+" - ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		log.Printf("⚠️ counter %s on %s %d already zero, clamped", column, key.TargetType, key.TargetID)
	}
	return nil
}

func opposite(typeID uint) (uint, bool) {
	switch typeID {
	case entity.InteractionLike:
		return entity.InteractionDislike, true
	case entity.InteractionDislike:
		return entity.InteractionLike, true
	}
	return 0, false
}

// SetReaction clears the opposite of key's like/dislike if active, then
// toggles key, all in one transaction.
func (r *interactionRepository) SetReaction(ctx context.Context, key Key) (*ReactionResult, error) {
	other, ok := opposite(key.TypeID)
	if !ok {
		return nil, apperror.ErrInvalidInteractionType
	}
	spec, err := specFor(key.TargetType)
	if err != nil {
		return nil, err
	}

	var result *ReactionResult
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := loadCounters(tx, key.TargetType, key.TargetID); err != nil {
			return err
		}

		active, err := activeTypes(tx, spec, key.UserID, key.TargetID)
		if err != nil {
			return err
		}

		cleared := false
		for _, typeID := range active {
			if typeID == other {
				offKey := key
				offKey.TypeID = other
				if _, err := toggle(tx, offKey, nil); err != nil {
					return err
				}
				cleared = true
			}
		}

		toggled, err := toggle(tx, key, nil)
		if err != nil {
			return err
		}

		active, err = activeTypes(tx, spec, key.UserID, key.TargetID)
		if err != nil {
			return err
		}

		result = &ReactionResult{
			Applied: toggled.Applied,
			Cleared: cleared,
			Counts:  toggled.Counts,
			State:   stateFor(key.TargetType, active),
			PostID:  toggled.PostID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Snapshot reads counters and the user's state from one transaction so
// both views agree. userID nil skips the state.
func (r *interactionRepository) Snapshot(ctx context.Context, userID *uint, target entity.TargetType, targetID uint) (*Snapshot, error) {
	spec, err := specFor(target)
	if err != nil {
		return nil, err
	}

	var opts []*sql.TxOptions
	if database.IsPostgres(r.db) {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}

	var snap *Snapshot
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		postID, counts, err := loadCounters(tx, target, targetID)
		if err != nil {
			return err
		}
		snap = &Snapshot{PostID: postID, Counts: counts}

		if userID != nil {
			active, err := activeTypes(tx, spec, *userID, targetID)
			if err != nil {
				return err
			}
			snap.State = stateFor(target, active)
		}
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return snap, nil
}
