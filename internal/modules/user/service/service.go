package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"anoa.com/threadline/internal/entity"
	"anoa.com/threadline/internal/modules/user/repository"
	"anoa.com/threadline/pkg/apperror"
	"anoa.com/threadline/pkg/dto"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DisplayService resolves the profile fields attached to outbound payloads.
// Lookups never fail: unknown users and storage errors yield a placeholder.
type DisplayService interface {
	GetDisplayInfo(ctx context.Context, userID uint) dto.AuthorResponse
	GetDisplayInfos(ctx context.Context, userIDs []uint) map[uint]dto.AuthorResponse
	Invalidate(userID uint)
}

type displayService struct {
	repo  repository.UserRepository
	cache *expirable.LRU[uint, dto.AuthorResponse]
}

func NewDisplayService(repo repository.UserRepository, size int, ttl time.Duration) DisplayService {
	return &displayService{
		repo:  repo,
		cache: expirable.NewLRU[uint, dto.AuthorResponse](size, nil, ttl),
	}
}

func placeholder(userID uint) dto.AuthorResponse {
	return dto.AuthorResponse{ID: userID, Username: fmt.Sprintf("user-%d", userID)}
}

func toAuthor(u *entity.User) dto.AuthorResponse {
	return dto.AuthorResponse{
		ID:         u.ID,
		Username:   u.Username,
		AvatarURL:  u.AvatarURL,
		Reputation: u.Reputation,
	}
}

func (s *displayService) GetDisplayInfo(ctx context.Context, userID uint) dto.AuthorResponse {
	if info, ok := s.cache.Get(userID); ok {
		return info
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			log.Printf("⚠️ display info lookup for user %d failed: %v", userID, err)
			return placeholder(userID)
		}
		// Cache misses for unknown users too, they are looked up on every event otherwise.
		info := placeholder(userID)
		s.cache.Add(userID, info)
		return info
	}

	info := toAuthor(user)
	s.cache.Add(userID, info)
	return info
}

func (s *displayService) GetDisplayInfos(ctx context.Context, userIDs []uint) map[uint]dto.AuthorResponse {
	out := make(map[uint]dto.AuthorResponse, len(userIDs))
	var missing []uint
	for _, id := range userIDs {
		if _, seen := out[id]; seen {
			continue
		}
		if info, ok := s.cache.Get(id); ok {
			out[id] = info
			continue
		}
		out[id] = placeholder(id)
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out
	}

	users, err := s.repo.FindByIDs(ctx, missing)
	if err != nil {
		log.Printf("⚠️ display info batch lookup failed: %v", err)
		return out
	}
	for i := range users {
		info := toAuthor(&users[i])
		out[info.ID] = info
		s.cache.Add(info.ID, info)
	}
	return out
}

func (s *displayService) Invalidate(userID uint) {
	s.cache.Remove(userID)
}
