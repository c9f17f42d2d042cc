package entity

import (
	"strconv"
	"strings"
	"time"
)

const (
	// RootPath is the path of every top-level comment.
	RootPath = "0"
	// Tombstone replaces the content of a soft-deleted comment.
	Tombstone = "[deleted]"
	// MaxPathLength bounds the materialized path column.
	MaxPathLength = 1024
)

type EditRecord struct {
	Content  string    `json:"content"`
	EditedAt time.Time `json:"edited_at"`
}

type Comment struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	PostID       uint         `gorm:"not null;index:idx_comments_post_parent,priority:1" json:"post_id"`
	Post         Post         `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AuthorID     uint         `gorm:"not null;index" json:"author_id"`
	ParentID     *uint        `gorm:"index:idx_comments_post_parent,priority:2" json:"parent_id"`
	Path         string       `gorm:"size:1024;not null;index" json:"path"`
	Depth        int          `gorm:"not null;default:0" json:"depth"`
	RootID       *uint        `gorm:"index" json:"root_id"`
	Content      string       `gorm:"type:text;not null" json:"content"`
	LikeCount    int64        `gorm:"not null;default:0" json:"like_count"`
	DislikeCount int64        `gorm:"not null;default:0" json:"dislike_count"`
	ReplyCount   int64        `gorm:"not null;default:0" json:"reply_count"`
	ReportCount  int64        `gorm:"not null;default:0" json:"report_count"`
	IsEdited     bool         `gorm:"not null;default:false" json:"is_edited"`
	IsDeleted    bool         `gorm:"not null;default:false" json:"is_deleted"`
	EditHistory  []EditRecord `gorm:"type:text;serializer:json" json:"edit_history"`
	CreatedAt    time.Time    `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Comment) TableName() string {
	return "comments"
}

// Counters returns the denormalized counters keyed by column name.
func (c *Comment) Counters() map[string]int64 {
	return map[string]int64{
		"like_count":    c.LikeCount,
		"dislike_count": c.DislikeCount,
		"reply_count":   c.ReplyCount,
		"report_count":  c.ReportCount,
	}
}

// ChildPath is the path every direct reply of c carries.
func (c *Comment) ChildPath() string {
	return c.Path + "." + strconv.FormatUint(uint64(c.ID), 10)
}

// PathDepth derives the depth encoded by a materialized path.
func PathDepth(path string) int {
	return len(strings.Split(path, ".")) - 1
}

// PathRoot returns the first ancestor id encoded in path, or nil for a
// top-level path.
func PathRoot(path string) (*uint, error) {
	segments := strings.Split(path, ".")
	if len(segments) < 2 {
		return nil, nil
	}
	id, err := strconv.ParseUint(segments[1], 10, 64)
	if err != nil {
		return nil, err
	}
	root := uint(id)
	return &root, nil
}
