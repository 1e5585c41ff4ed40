package scheduler

import "context"

// Synchronous loop hooks so tests can drive the scheduler without tickers.
func (s *Scheduler) PollOnce(ctx context.Context)    { s.pollOnce(ctx) }
func (s *Scheduler) ProcessOnce(ctx context.Context) { s.processOnce(ctx) }
func (s *Scheduler) CleanupOnce(ctx context.Context) { s.cleanupOnce(ctx) }
