package dto

import (
	"time"

	"anoa.com/threadline/internal/entity"
)

type CreatePostRequest struct {
	Title   string `json:"title" binding:"required,max=255"`
	Content string `json:"content" binding:"required,max=20000"`
}

type PostResponse struct {
	ID           uint      `json:"id"`
	AuthorID     uint      `json:"author_id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	ContentHTML  string    `json:"content_html"`
	LikeCount    int64     `json:"like_count"`
	DislikeCount int64     `json:"dislike_count"`
	SaveCount    int64     `json:"save_count"`
	ShareCount   int64     `json:"share_count"`
	CommentCount int64     `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewPostResponse(p *entity.Post, html string) PostResponse {
	return PostResponse{
		ID:           p.ID,
		AuthorID:     p.AuthorID,
		Title:        p.Title,
		Content:      p.Content,
		ContentHTML:  html,
		LikeCount:    p.LikeCount,
		DislikeCount: p.DislikeCount,
		SaveCount:    p.SaveCount,
		ShareCount:   p.ShareCount,
		CommentCount: p.CommentCount,
		CreatedAt:    p.CreatedAt,
	}
}
