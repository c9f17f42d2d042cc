package entity

import (
	"strings"
	"time"
)

type TargetType string

const (
	TargetPost    TargetType = "post"
	TargetComment TargetType = "comment"
)

// ParseTargetType accepts "post"/"comment" in any case.
func ParseTargetType(s string) (TargetType, bool) {
	switch TargetType(strings.ToLower(s)) {
	case TargetPost:
		return TargetPost, true
	case TargetComment:
		return TargetComment, true
	}
	return "", false
}

const (
	InteractionLike    uint = 1
	InteractionDislike uint = 2
	InteractionReport  uint = 3
	InteractionSave    uint = 4
	InteractionShare   uint = 5
)

type InteractionType struct {
	ID   uint   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name string `gorm:"size:32;uniqueIndex;not null" json:"name"`
}

func (t *InteractionType) TableName() string {
	return "interaction_types"
}

// DefaultInteractionTypes is the seed set for interaction_types.
var DefaultInteractionTypes = []InteractionType{
	{ID: InteractionLike, Name: "like"},
	{ID: InteractionDislike, Name: "dislike"},
	{ID: InteractionReport, Name: "report"},
	{ID: InteractionSave, Name: "save"},
	{ID: InteractionShare, Name: "share"},
}

// InteractionTypeName returns the seeded name of typeID, or "" when unknown.
func InteractionTypeName(typeID uint) string {
	for _, t := range DefaultInteractionTypes {
		if t.ID == typeID {
			return t.Name
		}
	}
	return ""
}

// ParseInteractionType resolves a type name (any case) to its id.
func ParseInteractionType(name string) (uint, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range DefaultInteractionTypes {
		if t.Name == name {
			return t.ID, true
		}
	}
	return 0, false
}

var (
	postCounterColumns = map[uint]string{
		InteractionLike:    "like_count",
		InteractionDislike: "dislike_count",
		InteractionReport:  "report_count",
		InteractionSave:    "save_count",
		InteractionShare:   "share_count",
	}
	commentCounterColumns = map[uint]string{
		InteractionLike:    "like_count",
		InteractionDislike: "dislike_count",
		InteractionReport:  "report_count",
	}
)

// CounterColumn returns the denormalized column backing interaction type
// typeID on the given target kind.
func CounterColumn(target TargetType, typeID uint) (string, bool) {
	var col string
	var ok bool
	switch target {
	case TargetPost:
		col, ok = postCounterColumns[typeID]
	case TargetComment:
		col, ok = commentCounterColumns[typeID]
	}
	return col, ok
}

// CounterColumns returns every interaction-backed column for a target kind.
func CounterColumns(target TargetType) map[uint]string {
	src := commentCounterColumns
	if target == TargetPost {
		src = postCounterColumns
	}
	out := make(map[uint]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// CountsByName projects a target's counter columns onto interaction type
// names, e.g. like_count becomes "like".
func CountsByName(target TargetType, columns map[string]int64) map[string]int64 {
	counts := make(map[string]int64)
	for typeID, col := range CounterColumns(target) {
		counts[InteractionTypeName(typeID)] = columns[col]
	}
	return counts
}

type Metadata map[string]any

type PostInteraction struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;uniqueIndex:idx_post_interactions_unique,priority:1" json:"user_id"`
	PostID            uint      `gorm:"not null;uniqueIndex:idx_post_interactions_unique,priority:2;index:idx_post_interactions_lookup,priority:1" json:"post_id"`
	Post              Post      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	InteractionTypeID uint      `gorm:"not null;uniqueIndex:idx_post_interactions_unique,priority:3;index:idx_post_interactions_lookup,priority:2" json:"interaction_type_id"`
	Metadata          Metadata  `gorm:"type:text;serializer:json" json:"metadata,omitempty"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (i *PostInteraction) TableName() string {
	return "post_interactions"
}

type CommentInteraction struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;uniqueIndex:idx_comment_interactions_unique,priority:1" json:"user_id"`
	CommentID         uint      `gorm:"not null;uniqueIndex:idx_comment_interactions_unique,priority:2;index:idx_comment_interactions_lookup,priority:1" json:"comment_id"`
	Comment           Comment   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	InteractionTypeID uint      `gorm:"not null;uniqueIndex:idx_comment_interactions_unique,priority:3;index:idx_comment_interactions_lookup,priority:2" json:"interaction_type_id"`
	Metadata          Metadata  `gorm:"type:text;serializer:json" json:"metadata,omitempty"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (i *CommentInteraction) TableName() string {
	return "comment_interactions"
}
