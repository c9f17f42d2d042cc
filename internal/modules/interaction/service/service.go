package interaction

import (
	"context"
	"fmt"
	"log"
	"time"

	"anoa.com/threadline/internal/entity"
	interactionDto "anoa.com/threadline/internal/modules/interaction/dto"
	interactionRepo "anoa.com/threadline/internal/modules/interaction/repository"
	realtime "anoa.com/threadline/internal/modules/realtime/service"
	"anoa.com/threadline/pkg/apperror"
	"github.com/redis/go-redis/v9"
)

const (
	analyticsKeyPrefix = "stats:interactions:"
	analyticsTTL       = 30 * 24 * time.Hour
)

type InteractionService interface {
	Toggle(ctx context.Context, userID uint, req interactionDto.ToggleRequest) (*interactionDto.ToggleResponse, error)
	SetReaction(ctx context.Context, userID uint, req interactionDto.ReactionRequest) (*interactionDto.ReactionResponse, error)
	GetSnapshot(ctx context.Context, userID *uint, targetType string, targetID uint) (*interactionDto.SnapshotResponse, error)
	GetState(ctx context.Context, userID uint, targetType string, targetID uint) (map[string]bool, error)
}

type interactionService struct {
	repo      interactionRepo.InteractionRepository
	publisher realtime.Publisher
	rdb       *redis.Client
	now       func() time.Time
}

// NewInteractionService wires the toggle engine. rdb may be nil, which
// disables analytics.
func NewInteractionService(repo interactionRepo.InteractionRepository, publisher realtime.Publisher, rdb *redis.Client) InteractionService {
	return &interactionService{
		repo:      repo,
		publisher: publisher,
		rdb:       rdb,
		now:       time.Now,
	}
}

func parseTarget(raw string) (entity.TargetType, error) {
	target, ok := entity.ParseTargetType(raw)
	if !ok {
		return "", apperror.Invalid("target_type must be post or comment")
	}
	return target, nil
}

func resolveType(req interactionDto.ToggleRequest) (uint, error) {
	if req.InteractionTypeID != 0 {
		if entity.InteractionTypeName(req.InteractionTypeID) == "" {
			return 0, apperror.ErrInvalidInteractionType
		}
		return req.InteractionTypeID, nil
	}
	if req.InteractionType != "" {
		if id, ok := entity.ParseInteractionType(req.InteractionType); ok {
			return id, nil
		}
	}
	return 0, apperror.ErrInvalidInteractionType
}

func (s *interactionService) Toggle(ctx context.Context, userID uint, req interactionDto.ToggleRequest) (*interactionDto.ToggleResponse, error) {
	target, err := parseTarget(req.TargetType)
	if err != nil {
		return nil, err
	}
	typeID, err := resolveType(req)
	if err != nil {
		return nil, err
	}

	key := interactionRepo.Key{UserID: userID, TargetType: target, TargetID: req.TargetID, TypeID: typeID}
	result, err := s.repo.Toggle(ctx, key, req.Metadata)
	if err != nil {
		return nil, err
	}

	s.record(ctx, target, typeID, result.Applied)
	s.publishCounts(target, req.TargetID, result.PostID, result.Counts)

	return &interactionDto.ToggleResponse{
		TargetType:      string(target),
		TargetID:        req.TargetID,
		InteractionType: entity.InteractionTypeName(typeID),
		Applied:         result.Applied,
		Count:           result.Count,
		Counts:          result.Counts,
	}, nil
}

func (s *interactionService) SetReaction(ctx context.Context, userID uint, req interactionDto.ReactionRequest) (*interactionDto.ReactionResponse, error) {
	target, err := parseTarget(req.TargetType)
	if err != nil {
		return nil, err
	}
	typeID, ok := entity.ParseInteractionType(req.Reaction)
	if !ok || (typeID != entity.InteractionLike && typeID != entity.InteractionDislike) {
		return nil, apperror.ErrInvalidInteractionType
	}

	key := interactionRepo.Key{UserID: userID, TargetType: target, TargetID: req.TargetID, TypeID: typeID}
	result, err := s.repo.SetReaction(ctx, key)
	if err != nil {
		return nil, err
	}

	if result.Cleared {
		other := entity.InteractionDislike
		if typeID == entity.InteractionDislike {
			other = entity.InteractionLike
		}
		s.record(ctx, target, other, false)
	}
	s.record(ctx, target, typeID, result.Applied)
	s.publishCounts(target, req.TargetID, result.PostID, result.Counts)

	return &interactionDto.ReactionResponse{
		TargetType: string(target),
		TargetID:   req.TargetID,
		Reaction:   entity.InteractionTypeName(typeID),
		Applied:    result.Applied,
		Counts:     result.Counts,
		State:      result.State,
	}, nil
}

func (s *interactionService) GetSnapshot(ctx context.Context, userID *uint, targetType string, targetID uint) (*interactionDto.SnapshotResponse, error) {
	target, err := parseTarget(targetType)
	if err != nil {
		return nil, err
	}

	snap, err := s.repo.Snapshot(ctx, userID, target, targetID)
	if err != nil {
		return nil, err
	}

	return &interactionDto.SnapshotResponse{
		TargetType: string(target),
		TargetID:   targetID,
		Counts:     snap.Counts,
		State:      snap.State,
	}, nil
}

func (s *interactionService) GetState(ctx context.Context, userID uint, targetType string, targetID uint) (map[string]bool, error) {
	snap, err := s.GetSnapshot(ctx, &userID, targetType, targetID)
	if err != nil {
		return nil, err
	}
	return snap.State, nil
}

func (s *interactionService) publishCounts(target entity.TargetType, targetID, postID uint, counts map[string]int64) {
	if s.publisher == nil {
		return
	}
	ev := realtime.NewEvent(realtime.EventCounterUpdate, realtime.CounterUpdatePayload{
		TargetType: string(target),
		TargetID:   targetID,
		PostID:     postID,
		Counts:     counts,
	})
	if err := s.publisher.Publish(realtime.TopicForPost(postID), ev); err != nil {
		log.Printf("⚠️ failed to publish counter update for %s %d: %v", target, targetID, err)
	}
}

// record bumps the daily analytics hash. Failures are logged only.
func (s *interactionService) record(ctx context.Context, target entity.TargetType, typeID uint, applied bool) {
	if s.rdb == nil {
		return
	}
	state := "off"
	if applied {
		state = "on"
	}

	key := analyticsKeyPrefix + s.now().UTC().Format("2006-01-02")
	field := fmt.Sprintf("%s:%s:%s", target, entity.InteractionTypeName(typeID), state)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	pipe.Expire(ctx, key, analyticsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("⚠️ failed to record interaction analytics %s: %v", field, err)
	}
}
