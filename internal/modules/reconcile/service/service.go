package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"anoa.com/threadline/internal/entity"
	reconcileRepo "anoa.com/threadline/internal/modules/reconcile/repository"
	realtime "anoa.com/threadline/internal/modules/realtime/service"
	"anoa.com/threadline/pkg/apperror"
)

const DefaultBatchSize = 200

type FieldDiff struct {
	Stored   int64 `json:"stored"`
	Expected int64 `json:"expected"`
}

type RepairResult struct {
	TargetType      string               `json:"target_type"`
	TargetID        uint                 `json:"target_id"`
	WasInconsistent bool                 `json:"was_inconsistent"`
	Corrections     map[string]FieldDiff `json:"corrections"`
}

type SweepSummary struct {
	Scanned     int       `json:"scanned"`
	Repaired    int       `json:"repaired"`
	Failed      int       `json:"failed"`
	Corrections int       `json:"corrections"`
	Interrupted bool      `json:"interrupted"`
	StartedAt   time.Time `json:"started_at"`
	Duration    string    `json:"duration"`
}

type ReconcileService interface {
	ComputeExpectedCounts(ctx context.Context, targetType string, id uint) (map[string]int64, error)
	Diff(ctx context.Context, targetType string, id uint) (map[string]FieldDiff, error)
	Repair(ctx context.Context, targetType string, id uint) (*RepairResult, error)
	RepairAll(ctx context.Context, batchSize int) (*SweepSummary, error)
}

type reconcileService struct {
	repo      reconcileRepo.ReconcileRepository
	publisher realtime.Publisher
	now       func() time.Time
}

// NewReconcileService builds the counter repair service. publisher may be nil.
func NewReconcileService(repo reconcileRepo.ReconcileRepository, publisher realtime.Publisher) ReconcileService {
	return &reconcileService{repo: repo, publisher: publisher, now: time.Now}
}

func parseTarget(raw string) (entity.TargetType, error) {
	target, ok := entity.ParseTargetType(raw)
	if !ok {
		return "", apperror.Invalid("target_type must be post or comment")
	}
	return target, nil
}

func diffOf(cmp *reconcileRepo.Comparison) map[string]FieldDiff {
	out := make(map[string]FieldDiff)
	for _, col := range cmp.Mismatched() {
		out[col] = FieldDiff{Stored: cmp.Stored[col], Expected: cmp.Expected[col]}
	}
	return out
}

func (s *reconcileService) ComputeExpectedCounts(ctx context.Context, targetType string, id uint) (map[string]int64, error) {
	target, err := parseTarget(targetType)
	if err != nil {
		return nil, err
	}
	return s.repo.ExpectedCounts(ctx, target, id)
}

func (s *reconcileService) Diff(ctx context.Context, targetType string, id uint) (map[string]FieldDiff, error) {
	target, err := parseTarget(targetType)
	if err != nil {
		return nil, err
	}
	cmp, err := s.repo.Compare(ctx, target, id)
	if err != nil {
		return nil, err
	}
	return diffOf(cmp), nil
}

func (s *reconcileService) Repair(ctx context.Context, targetType string, id uint) (*RepairResult, error) {
	target, err := parseTarget(targetType)
	if err != nil {
		return nil, err
	}
	return s.repair(ctx, target, id)
}

func (s *reconcileService) repair(ctx context.Context, target entity.TargetType, id uint) (*RepairResult, error) {
	cmp, err := s.repo.Repair(ctx, target, id)
	if err != nil {
		return nil, err
	}

	corrections := diffOf(cmp)
	result := &RepairResult{
		TargetType:      string(target),
		TargetID:        id,
		WasInconsistent: len(corrections) > 0,
		Corrections:     corrections,
	}
	if result.WasInconsistent {
		log.Printf("🔧 repaired %s %d: %v", target, id, corrections)
		s.publish(target, id, cmp)
	}
	return result, nil
}

func (s *reconcileService) publish(target entity.TargetType, id uint, cmp *reconcileRepo.Comparison) {
	if s.publisher == nil {
		return
	}
	ev := realtime.NewEvent(realtime.EventCounterUpdate, realtime.CounterUpdatePayload{
		TargetType: string(target),
		TargetID:   id,
		PostID:     cmp.PostID,
		Counts:     entity.CountsByName(target, cmp.Expected),
	})
	if err := s.publisher.Publish(realtime.TopicForPost(cmp.PostID), ev); err != nil {
		log.Printf("⚠️ failed to publish repaired counters for %s %d: %v", target, id, err)
	}
}

// RepairAll sweeps posts then comments in id order. Cancellation is honoured
// between batches; a batch that has started runs to completion so every
// target it touched is left repaired. A failing target is logged and skipped.
func (s *reconcileService) RepairAll(ctx context.Context, batchSize int) (*SweepSummary, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	summary := &SweepSummary{StartedAt: s.now()}
	defer func() {
		summary.Duration = s.now().Sub(summary.StartedAt).String()
	}()

	for _, target := range []entity.TargetType{entity.TargetPost, entity.TargetComment} {
		var afterID uint
		for {
			if err := ctx.Err(); err != nil {
				summary.Interrupted = true
				log.Printf("🛑 reconciliation sweep interrupted at %s %d", target, afterID)
				return summary, err
			}

			ids, err := s.repo.NextIDs(ctx, target, afterID, batchSize)
			if err != nil {
				if ctx.Err() != nil {
					summary.Interrupted = true
					return summary, ctx.Err()
				}
				return summary, fmt.Errorf("failed to list %s ids: %w", target, err)
			}
			if len(ids) == 0 {
				break
			}

			batchCtx := context.WithoutCancel(ctx)
			for _, id := range ids {
				summary.Scanned++
				result, err := s.repair(batchCtx, target, id)
				if err != nil {
					summary.Failed++
					log.Printf("❌ failed to repair %s %d: %v", target, id, err)
					continue
				}
				if result.WasInconsistent {
					summary.Repaired++
					summary.Corrections += len(result.Corrections)
				}
			}
			afterID = ids[len(ids)-1]
		}
	}
	return summary, nil
}
