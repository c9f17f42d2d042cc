package entity

import "time"

type Post struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AuthorID     uint      `gorm:"not null;index" json:"author_id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	LikeCount    int64     `gorm:"not null;default:0" json:"like_count"`
	DislikeCount int64     `gorm:"not null;default:0" json:"dislike_count"`
	ReportCount  int64     `gorm:"not null;default:0" json:"report_count"`
	SaveCount    int64     `gorm:"not null;default:0" json:"save_count"`
	ShareCount   int64     `gorm:"not null;default:0" json:"share_count"`
	CommentCount int64     `gorm:"not null;default:0" json:"comment_count"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Post) TableName() string {
	return "posts"
}

// Counters returns the denormalized counters keyed by column name.
func (p *Post) Counters() map[string]int64 {
	return map[string]int64{
		"like_count":    p.LikeCount,
		"dislike_count": p.DislikeCount,
		"report_count":  p.ReportCount,
		"save_count":    p.SaveCount,
		"share_count":   p.ShareCount,
		"comment_count": p.CommentCount,
	}
}
