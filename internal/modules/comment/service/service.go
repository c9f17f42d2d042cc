package comment

import (
	"context"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"anoa.com/threadline/internal/entity"
	commentDto "anoa.com/threadline/internal/modules/comment/dto"
	commentRepo "anoa.com/threadline/internal/modules/comment/repository"
	postRepo "anoa.com/threadline/internal/modules/post/repository"
	realtime "anoa.com/threadline/internal/modules/realtime/service"
	search "anoa.com/threadline/internal/modules/search/service"
	userService "anoa.com/threadline/internal/modules/user/service"
	"anoa.com/threadline/pkg/apperror"
	"anoa.com/threadline/pkg/dto"
	"anoa.com/threadline/pkg/markdown"
	"anoa.com/threadline/pkg/ratelimiter"
)

const rateLimitAction = "comment"

type CommentService interface {
	CreateComment(ctx context.Context, userID, postID uint, req commentDto.CreateCommentRequest) (*commentDto.CommentResponse, error)
	UpdateComment(ctx context.Context, userID, commentID uint, req commentDto.UpdateCommentRequest) (*commentDto.CommentResponse, error)
	DeleteComment(ctx context.Context, userID, commentID uint) (*commentDto.DeleteCommentResponse, error)
	GetComment(ctx context.Context, commentID uint) (*commentDto.CommentResponse, error)
	ListTopLevel(ctx context.Context, postID uint, page dto.PageQuery) (*commentDto.PaginatedCommentResponse, error)
	ListReplies(ctx context.Context, commentID uint, page dto.PageQuery) (*commentDto.PaginatedCommentResponse, error)
	GetThread(ctx context.Context, commentID uint) (*commentDto.ThreadResponse, error)
	Search(ctx context.Context, postID uint, query commentDto.SearchQuery) (*commentDto.PaginatedCommentResponse, error)
}

// ActivityRecorder receives a touch whenever a thread gets a new reply.
type ActivityRecorder interface {
	Touch(postID, rootCommentID uint) realtime.CommentActivityPayload
	LastActivity(rootCommentID uint) (time.Time, bool)
}

type Config struct {
	MaxLength int
	RateLimit time.Duration
}

type commentService struct {
	repo      commentRepo.CommentRepository
	postRepo  postRepo.PostRepository
	display   userService.DisplayService
	publisher realtime.Publisher
	activity  ActivityRecorder
	indexer   search.CommentIndexer
	limiter   *ratelimiter.Limiter
	cfg       Config
	now       func() time.Time
}

// NewCommentService wires the hierarchy engine. activity, indexer and limiter
// may be nil.
func NewCommentService(
	repo commentRepo.CommentRepository,
	postRepo postRepo.PostRepository,
	display userService.DisplayService,
	publisher realtime.Publisher,
	activity ActivityRecorder,
	indexer search.CommentIndexer,
	limiter *ratelimiter.Limiter,
	cfg Config,
) CommentService {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 5000
	}
	return &commentService{
		repo:      repo,
		postRepo:  postRepo,
		display:   display,
		publisher: publisher,
		activity:  activity,
		indexer:   indexer,
		limiter:   limiter,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *commentService) cleanContent(raw string) (string, error) {
	content := markdown.Sanitize(raw)
	if content == "" {
		return "", apperror.Invalid("content must not be empty")
	}
	if n := utf8.RuneCountInString(content); n > s.cfg.MaxLength {
		return "", apperror.Invalid("content must be at most %d characters, got %d", s.cfg.MaxLength, n)
	}
	return content, nil
}

func (s *commentService) checkRateLimit(ctx context.Context, userID uint) error {
	allowed, err := s.limiter.Allow(ctx, userID, rateLimitAction, s.cfg.RateLimit)
	if err != nil {
		// A redis outage must not block commenting.
		log.Printf("⚠️ rate limit check failed for user %d: %v", userID, err)
		return nil
	}
	if !allowed {
		ttl, _ := s.limiter.TTL(ctx, userID, rateLimitAction)
		return &ratelimiter.RateLimitError{
			Message:    fmt.Sprintf("you are commenting too fast, please wait %.0f seconds", ttl.Seconds()),
			RetryAfter: ttl,
		}
	}
	return nil
}

func (s *commentService) CreateComment(ctx context.Context, userID, postID uint, req commentDto.CreateCommentRequest) (*commentDto.CommentResponse, error) {
	content, err := s.cleanContent(req.Content)
	if err != nil {
		return nil, err
	}

	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	if !exists {
		return nil, apperror.ErrPostNotFound
	}

	if err := s.checkRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	comment := &entity.Comment{
		PostID:   postID,
		AuthorID: userID,
		ParentID: req.ParentID,
		Content:  content,
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		// The cooldown only applies to comments that were actually written.
		_ = s.limiter.Clear(ctx, userID, rateLimitAction)
		return nil, err
	}

	resp := s.mapToResponse(ctx, comment)
	s.publish(postID, realtime.EventNewComment, resp)

	if comment.RootID != nil && s.activity != nil {
		s.activity.Touch(postID, *comment.RootID)
	}
	s.index(comment)

	log.Printf("💬 Comment %d created on post %d (path %s)", comment.ID, postID, comment.Path)
	return &resp, nil
}

func (s *commentService) UpdateComment(ctx context.Context, userID, commentID uint, req commentDto.UpdateCommentRequest) (*commentDto.CommentResponse, error) {
	content, err := s.cleanContent(req.Content)
	if err != nil {
		return nil, err
	}

	comment, err := s.repo.Edit(ctx, commentID, userID, content, s.now())
	if err != nil {
		return nil, err
	}

	resp := s.mapToResponse(ctx, comment)
	s.publish(comment.PostID, realtime.EventUpdateComment, resp)
	s.index(comment)
	return &resp, nil
}

func (s *commentService) DeleteComment(ctx context.Context, userID, commentID uint) (*commentDto.DeleteCommentResponse, error) {
	comment, changed, err := s.repo.SoftDelete(ctx, commentID, userID)
	if err != nil {
		return nil, err
	}

	resp := &commentDto.DeleteCommentResponse{ID: comment.ID, PostID: comment.PostID, Status: "already_deleted"}
	if !changed {
		return resp, nil
	}
	resp.Status = "deleted"

	s.publish(comment.PostID, realtime.EventDeleteComment, map[string]any{
		"id":      comment.ID,
		"post_id": comment.PostID,
		"path":    comment.Path,
		"content": comment.Content,
	})
	if s.indexer != nil {
		if err := s.indexer.DeleteComment(comment.ID); err != nil {
			log.Printf("⚠️ failed to remove comment %d from search index: %v", comment.ID, err)
		}
	}
	return resp, nil
}

func (s *commentService) GetComment(ctx context.Context, commentID uint) (*commentDto.CommentResponse, error) {
	comment, err := s.repo.FindByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	resp := s.mapToResponse(ctx, comment)
	return &resp, nil
}

func (s *commentService) ListTopLevel(ctx context.Context, postID uint, page dto.PageQuery) (*commentDto.PaginatedCommentResponse, error) {
	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	if !exists {
		return nil, apperror.ErrPostNotFound
	}

	offset, limit := page.Normalize()
	comments, total, err := s.repo.ListTopLevel(ctx, postID, offset, limit)
	if err != nil {
		return nil, err
	}
	return &commentDto.PaginatedCommentResponse{
		Data: s.mapAll(ctx, comments),
		Meta: dto.NewPaginationMeta(page, total),
	}, nil
}

func (s *commentService) ListReplies(ctx context.Context, commentID uint, page dto.PageQuery) (*commentDto.PaginatedCommentResponse, error) {
	if _, err := s.repo.FindByID(ctx, commentID); err != nil {
		return nil, err
	}

	offset, limit := page.Normalize()
	comments, total, err := s.repo.ListReplies(ctx, commentID, offset, limit)
	if err != nil {
		return nil, err
	}
	return &commentDto.PaginatedCommentResponse{
		Data: s.mapAll(ctx, comments),
		Meta: dto.NewPaginationMeta(page, total),
	}, nil
}

func (s *commentService) GetThread(ctx context.Context, commentID uint) (*commentDto.ThreadResponse, error) {
	root, err := s.repo.FindByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	descendants, err := s.repo.Subtree(ctx, root)
	if err != nil {
		return nil, err
	}

	all := s.mapAll(ctx, append([]entity.Comment{*root}, descendants...))
	return &commentDto.ThreadResponse{
		Root:        all[0],
		Descendants: all[1:],
	}, nil
}

func (s *commentService) Search(ctx context.Context, postID uint, query commentDto.SearchQuery) (*commentDto.PaginatedCommentResponse, error) {
	offset, limit := query.PageQuery.Normalize()
	empty := &commentDto.PaginatedCommentResponse{
		Data: []commentDto.CommentResponse{},
		Meta: dto.NewPaginationMeta(query.PageQuery, 0),
	}
	if s.indexer == nil {
		return empty, nil
	}

	ids, total, err := s.indexer.SearchComments(postID, query.Q, offset, limit)
	if err != nil {
		log.Printf("⚠️ comment search failed: %v", err)
		return empty, nil
	}
	comments, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &commentDto.PaginatedCommentResponse{
		Data: s.mapAll(ctx, comments),
		Meta: dto.NewPaginationMeta(query.PageQuery, total),
	}, nil
}

func (s *commentService) publish(postID uint, t realtime.EventType, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(realtime.TopicForPost(postID), realtime.NewEvent(t, payload)); err != nil {
		log.Printf("⚠️ failed to publish %s for post %d: %v", t, postID, err)
	}
}

func (s *commentService) index(comment *entity.Comment) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexComment(comment); err != nil {
		log.Printf("⚠️ failed to index comment %d: %v", comment.ID, err)
	}
}
