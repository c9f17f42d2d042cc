package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"anoa.com/threadline/internal/entity"
	"anoa.com/threadline/pkg/markdown"
	"github.com/meilisearch/meilisearch-go"
)

const CommentsIndex = "comments"

// CommentIndexer keeps the comment search index in step with the database.
type CommentIndexer interface {
	IndexComment(comment *entity.Comment) error
	DeleteComment(id uint) error
	SearchComments(postID uint, query string, offset, limit int) ([]uint, int64, error)
}

type meiliSearchService struct {
	client meilisearch.ServiceManager
}

func NewMeiliSearchService(client meilisearch.ServiceManager) CommentIndexer {
	s := &meiliSearchService{client: client}
	s.initIndexes()
	return s
}

func (s *meiliSearchService) initIndexes() {
	filterable := []string{"post_id", "root_id", "author_id"}
	filterableInterface := make([]any, len(filterable))
	for i, v := range filterable {
		filterableInterface[i] = v
	}
	if _, err := s.client.Index(CommentsIndex).UpdateFilterableAttributes(&filterableInterface); err != nil {
		log.Printf("Failed to update comments filterable attributes: %v", err)
	}

	sortable := []string{"created_at"}
	if _, err := s.client.Index(CommentsIndex).UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("Failed to update comments sortable attributes: %v", err)
	}

	log.Println("Meilisearch indexes initialized")
}

type meiliCommentDoc struct {
	ID        uint   `json:"id"`
	PostID    uint   `json:"post_id"`
	RootID    uint   `json:"root_id"`
	AuthorID  uint   `json:"author_id"`
	Path      string `json:"path"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

func (s *meiliSearchService) IndexComment(comment *entity.Comment) error {
	if comment.IsDeleted {
		return s.DeleteComment(comment.ID)
	}

	doc := meiliCommentDoc{
		ID:        comment.ID,
		PostID:    comment.PostID,
		AuthorID:  comment.AuthorID,
		Path:      comment.Path,
		Content:   markdown.PlainText(comment.Content),
		CreatedAt: comment.CreatedAt.Unix(),
	}
	if comment.RootID != nil {
		doc.RootID = *comment.RootID
	}

	task, err := s.client.Index(CommentsIndex).AddDocuments([]meiliCommentDoc{doc}, strPtr("id"))
	if err != nil {
		return err
	}
	log.Printf("Indexed comment %d, task id: %d", comment.ID, task.TaskUID)
	return nil
}

func (s *meiliSearchService) DeleteComment(id uint) error {
	_, err := s.client.Index(CommentsIndex).DeleteDocument(strconv.FormatUint(uint64(id), 10))
	return err
}

type searchHits struct {
	Hits []struct {
		ID uint `json:"id"`
	} `json:"hits"`
	EstimatedTotalHits int64 `json:"estimatedTotalHits"`
}

// SearchComments returns matching comment ids within a post, best match first.
func (s *meiliSearchService) SearchComments(postID uint, query string, offset, limit int) ([]uint, int64, error) {
	raw, err := s.client.Index(CommentsIndex).SearchRaw(query, &meilisearch.SearchRequest{
		Filter:               fmt.Sprintf("post_id = %d", postID),
		Offset:               int64(offset),
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		return nil, 0, err
	}

	var result searchHits
	if err := json.Unmarshal(*raw, &result); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]uint, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, result.EstimatedTotalHits, nil
}

func strPtr(s string) *string {
	return &s
}
