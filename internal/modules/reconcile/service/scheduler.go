package reconcile

import (
	"context"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs RepairAll on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	cron      *cron.Cron
	service   ReconcileService
	batchSize int

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	last *SweepSummary
}

// NewScheduler registers the sweep under schedule, e.g. "@every 1h" or
// "0 3 * * *".
func NewScheduler(service ReconcileService, schedule string, batchSize int) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		service:   service,
		batchSize: batchSize,
		ctx:       ctx,
		cancel:    cancel,
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		cancel()
		return nil, err
	}
	log.Printf("📅 [reconcile] Scheduled with cron: %s", schedule)
	return s, nil
}

func (s *Scheduler) run() {
	log.Printf("🤖 [reconcile] Starting scheduled sweep...")
	summary, err := s.service.RepairAll(s.ctx, s.batchSize)

	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()

	if err != nil {
		log.Printf("❌ [reconcile] Sweep failed: %v", err)
		return
	}
	log.Printf("✅ [reconcile] Sweep done: scanned=%d repaired=%d failed=%d in %s",
		summary.Scanned, summary.Repaired, summary.Failed, summary.Duration)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("🚀 Reconcile scheduler started")
}

// Stop cancels a sweep in progress between batches and waits for it.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	log.Println("🛑 Reconcile scheduler stopped")
}

// RunNow performs a sweep outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (*SweepSummary, error) {
	log.Printf("🎯 [reconcile] Running on-demand sweep...")
	summary, err := s.service.RepairAll(ctx, s.batchSize)
	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()
	return summary, err
}

// LastSummary returns the result of the most recent sweep, or nil.
func (s *Scheduler) LastSummary() *SweepSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
