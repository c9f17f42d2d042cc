package comment

import (
	"context"

	"anoa.com/threadline/internal/entity"
	commentDto "anoa.com/threadline/internal/modules/comment/dto"
	"anoa.com/threadline/pkg/dto"
	"anoa.com/threadline/pkg/markdown"
)

func (s *commentService) mapToResponse(ctx context.Context, c *entity.Comment) commentDto.CommentResponse {
	author := dto.AuthorResponse{ID: c.AuthorID}
	if s.display != nil {
		author = s.display.GetDisplayInfo(ctx, c.AuthorID)
	}
	return s.toResponse(c, author)
}

func (s *commentService) mapAll(ctx context.Context, comments []entity.Comment) []commentDto.CommentResponse {
	out := make([]commentDto.CommentResponse, 0, len(comments))
	if len(comments) == 0 {
		return out
	}

	var authors map[uint]dto.AuthorResponse
	if s.display != nil {
		ids := make([]uint, 0, len(comments))
		for i := range comments {
			ids = append(ids, comments[i].AuthorID)
		}
		authors = s.display.GetDisplayInfos(ctx, ids)
	}

	for i := range comments {
		author, ok := authors[comments[i].AuthorID]
		if !ok {
			author = dto.AuthorResponse{ID: comments[i].AuthorID}
		}
		out = append(out, s.toResponse(&comments[i], author))
	}
	return out
}

func (s *commentService) toResponse(c *entity.Comment, author dto.AuthorResponse) commentDto.CommentResponse {
	resp := commentDto.CommentResponse{
		ID:           c.ID,
		PostID:       c.PostID,
		ParentID:     c.ParentID,
		RootID:       c.RootID,
		Path:         c.Path,
		Depth:        c.Depth,
		Content:      c.Content,
		Author:       author,
		LikeCount:    c.LikeCount,
		DislikeCount: c.DislikeCount,
		ReplyCount:   c.ReplyCount,
		ReportCount:  c.ReportCount,
		IsEdited:     c.IsEdited,
		IsDeleted:    c.IsDeleted,
		EditHistory:  c.EditHistory,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.IsDeleted {
		resp.EditHistory = nil
	} else {
		resp.ContentHTML = markdown.Render(c.Content)
	}
	if c.ParentID == nil && s.activity != nil {
		if last, ok := s.activity.LastActivity(c.ID); ok {
			resp.LastActivity = &last
		}
	}
	return resp
}
