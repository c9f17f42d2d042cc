package dto

import (
	"time"

	"anoa.com/threadline/internal/entity"
	commonDto "anoa.com/threadline/pkg/dto"
)

type CreateCommentRequest struct {
	Content  string `json:"content" binding:"required"`
	ParentID *uint  `json:"parent_id" binding:"omitempty,min=1"`
}

type UpdateCommentRequest struct {
	Content string `json:"content" binding:"required"`
}

type SearchQuery struct {
	Q string `form:"q" binding:"required,max=200"`
	commonDto.PageQuery
}

type CommentResponse struct {
	ID           uint                     `json:"id"`
	PostID       uint                     `json:"post_id"`
	ParentID     *uint                    `json:"parent_id"`
	RootID       *uint                    `json:"root_id"`
	Path         string                   `json:"path"`
	Depth        int                      `json:"depth"`
	Content      string                   `json:"content"`
	ContentHTML  string                   `json:"content_html"`
	Author       commonDto.AuthorResponse `json:"author"`
	LikeCount    int64                    `json:"like_count"`
	DislikeCount int64                    `json:"dislike_count"`
	ReplyCount   int64                    `json:"reply_count"`
	ReportCount  int64                    `json:"report_count"`
	IsEdited     bool                     `json:"is_edited"`
	IsDeleted    bool                     `json:"is_deleted"`
	EditHistory  []entity.EditRecord      `json:"edit_history,omitempty"`
	LastActivity *time.Time               `json:"last_activity,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

type PaginatedCommentResponse struct {
	Data []CommentResponse       `json:"data"`
	Meta commonDto.PaginationMeta `json:"meta"`
}

type ThreadResponse struct {
	Root        CommentResponse   `json:"root"`
	Descendants []CommentResponse `json:"descendants"`
}

type DeleteCommentResponse struct {
	ID     uint   `json:"id"`
	PostID uint   `json:"post_id"`
	Status string `json:"status"`
}
