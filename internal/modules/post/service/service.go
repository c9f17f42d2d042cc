package post

import (
	"context"
	"log"

	"anoa.com/threadline/internal/entity"
	postDto "anoa.com/threadline/internal/modules/post/dto"
	postRepo "anoa.com/threadline/internal/modules/post/repository"
	"anoa.com/threadline/pkg/apperror"
	"anoa.com/threadline/pkg/markdown"
)

type PostService interface {
	CreatePost(ctx context.Context, userID uint, req postDto.CreatePostRequest) (*postDto.PostResponse, error)
	GetPostByID(ctx context.Context, postID uint) (*postDto.PostResponse, error)
}

type postService struct {
	postRepo postRepo.PostRepository
}

func NewPostService(postRepo postRepo.PostRepository) PostService {
	return &postService{postRepo: postRepo}
}

func (s *postService) CreatePost(ctx context.Context, userID uint, req postDto.CreatePostRequest) (*postDto.PostResponse, error) {
	title := markdown.Sanitize(req.Title)
	content := markdown.Sanitize(req.Content)
	if title == "" || content == "" {
		return nil, apperror.Invalid("title and content must not be empty")
	}

	post := &entity.Post{
		AuthorID: userID,
		Title:    title,
		Content:  content,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	log.Printf("📝 Post %d created by user %d", post.ID, userID)

	resp := postDto.NewPostResponse(post, markdown.Render(post.Content))
	return &resp, nil
}

func (s *postService) GetPostByID(ctx context.Context, postID uint) (*postDto.PostResponse, error) {
	post, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	resp := postDto.NewPostResponse(post, markdown.Render(post.Content))
	return &resp, nil
}
