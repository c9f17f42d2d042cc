package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	commentDto "anoa.com/threadline/internal/modules/comment/dto"
	comment "anoa.com/threadline/internal/modules/comment/service"
	"anoa.com/threadline/pkg/dto"
	"anoa.com/threadline/pkg/ratelimiter"
	"anoa.com/threadline/pkg/response"
	"anoa.com/threadline/pkg/validator"
	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	service comment.CommentService
}

func NewCommentHandler(service comment.CommentService) *CommentHandler {
	return &CommentHandler{service: service}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return uint(id), true
}

func writeError(c *gin.Context, err error) {
	var rateLimitErr *ratelimiter.RateLimitError
	if errors.As(err, &rateLimitErr) {
		c.Header("Retry-After", fmt.Sprintf("%.0f", rateLimitErr.RetryAfter.Seconds()))
	}
	response.ResponseError(c, err)
}

func (h *CommentHandler) CreateComment(c *gin.Context) {
	postID, ok := parseID(c, "post_id")
	if !ok {
		return
	}

	var req commentDto.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	resp, err := h.service.CreateComment(c.Request.Context(), userID, postID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *CommentHandler) UpdateComment(c *gin.Context) {
	commentID, ok := parseID(c, "comment_id")
	if !ok {
		return
	}

	var req commentDto.UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	resp, err := h.service.UpdateComment(c.Request.Context(), userID, commentID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *CommentHandler) DeleteComment(c *gin.Context) {
	commentID, ok := parseID(c, "comment_id")
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	resp, err := h.service.DeleteComment(c.Request.Context(), userID, commentID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *CommentHandler) GetComment(c *gin.Context) {
	commentID, ok := parseID(c, "comment_id")
	if !ok {
		return
	}

	resp, err := h.service.GetComment(c.Request.Context(), commentID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *CommentHandler) ListTopLevel(c *gin.Context) {
	postID, ok := parseID(c, "post_id")
	if !ok {
		return
	}

	var page dto.PageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	resp, err := h.service.ListTopLevel(c.Request.Context(), postID, page)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *CommentHandler) ListReplies(c *gin.Context) {
	commentID, ok := parseID(c, "comment_id")
	if !ok {
		return
	}

	var page dto.PageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	resp, err := h.service.ListReplies(c.Request.Context(), commentID, page)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *CommentHandler) GetThread(c *gin.Context) {
	commentID, ok := parseID(c, "comment_id")
	if !ok {
		return
	}

	resp, err := h.service.GetThread(c.Request.Context(), commentID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *CommentHandler) Search(c *gin.Context) {
	postID, ok := parseID(c, "post_id")
	if !ok {
		return
	}

	var query commentDto.SearchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	resp, err := h.service.Search(c.Request.Context(), postID, query)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
