package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/blastsocial/backend/internal/posts"
	"go.uber.org/zap"
)

// Sweeper periodically deletes expired posts through the posts service,
// so every sweep also purges the ranked sets and tag counters. Runs
// decoupled from the request path.
type Sweeper struct {
	posts    *posts.Service
	interval time.Duration
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a sweeper over the posts service.
func New(postsService *posts.Service, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		posts:    postsService,
		interval: interval,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
	s.log.Info("Expiry sweeper started", zap.Duration("interval", s.interval))
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log.Info("Expiry sweeper stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(s.ctx)
		}
	}
}

// SweepOnce runs a single sweep pass. Exposed for the admin CLI.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	swept, err := s.posts.DeleteExpired(ctx)
	if err != nil {
		s.log.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if swept > 0 {
		s.log.Info("Expired posts swept", zap.Int("count", swept))
	}
}
