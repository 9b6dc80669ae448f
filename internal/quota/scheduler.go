package quota

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/YallaPapi/ragmaker/internal/storage"
)

// OpType names a metered operation for logging and status reporting.
type OpType string

// Priority orders queued calls; lower values dispatch first.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityNormal Priority = 5
	PriorityLow    Priority = 10
)

// Store persists quota state across process restarts.
// Implemented by storage.Store.
type Store interface {
	SaveQuotaState(storage.QuotaState) error
	LoadQuotaState() (storage.QuotaState, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options configures a Scheduler.
type Options struct {
	DailyLimit       int
	WarningFraction  float64
	CriticalFraction float64
	MaxConcurrent    int
	MinDispatchGap   time.Duration
	Location         *time.Location // reset anchor timezone
	Clock            Clock          // nil means wall clock
}

// Scheduler gates metered external calls against a depletable daily budget.
// Calls queue by priority, dispatch under a concurrency ceiling with a global
// minimum spacing, retry transient failures with escalating delays, and debit
// the budget only on success. State is persisted after every mutation.
type Scheduler struct {
	store    Store
	clock    Clock
	limiter  *rate.Limiter
	maxConc  int
	warnFrac float64
	critFrac float64
	loc      *time.Location
	logger   *slog.Logger

	mu             sync.Mutex
	used           int
	limit          int
	resetAt        time.Time
	queue          requestHeap
	seq            uint64
	inFlight       int
	events         []Event
	warnFired      bool
	critFired      bool
	exhaustedFired bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

type request struct {
	ctx      context.Context
	op       OpType
	cost     int
	priority Priority
	seq      uint64
	fn       func(ctx context.Context) (any, error)
	result   chan outcome
}

type outcome struct {
	value any
	err   error
}

// New builds a Scheduler, reloading persisted budget state. If the persisted
// reset boundary has already passed, usage starts from zero.
func New(store Store, opts Options) (*Scheduler, error) {
	if opts.DailyLimit <= 0 {
		return nil, fmt.Errorf("daily limit must be positive, got %d", opts.DailyLimit)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}

	limit := rate.Inf
	if opts.MinDispatchGap > 0 {
		limit = rate.Every(opts.MinDispatchGap)
	}

	s := &Scheduler{
		store:    store,
		clock:    clock,
		limiter:  rate.NewLimiter(limit, 1),
		maxConc:  opts.MaxConcurrent,
		warnFrac: opts.WarningFraction,
		critFrac: opts.CriticalFraction,
		loc:      opts.Location,
		logger:   slog.Default(),
		limit:    opts.DailyLimit,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	now := clock.Now()
	persisted, err := store.LoadQuotaState()
	switch {
	case err == nil && now.Before(persisted.ResetAt):
		s.used = persisted.UnitsUsed
		s.resetAt = persisted.ResetAt
		if s.used > s.limit {
			s.used = s.limit
		}
	case err == nil || errors.Is(err, storage.ErrNotFound):
		s.resetAt = nextResetBoundary(now, s.loc)
	default:
		return nil, fmt.Errorf("loading quota state: %w", err)
	}
	// Reconstruct fired flags so restarts don't re-emit old crossings.
	frac := float64(s.used) / float64(s.limit)
	s.warnFired = frac >= s.warnFrac
	s.critFired = frac >= s.critFrac
	s.exhaustedFired = s.used >= s.limit

	if err := s.persistLocked(); err != nil {
		return nil, fmt.Errorf("persisting initial quota state: %w", err)
	}

	s.wg.Add(2)
	go s.dispatchLoop()
	go s.resetLoop()
	return s, nil
}

// Close stops the background goroutines. Queued requests fail with a closed error.
func (s *Scheduler) Close() {
	close(s.done)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.queue.Len() > 0 {
		req := heap.Pop(&s.queue).(*request)
		req.result <- outcome{err: errors.New("quota scheduler closed")}
	}
}

// Submit runs fn through the scheduler and returns its typed result.
// It rejects immediately with ErrQuotaExhausted when cost exceeds the
// remaining budget; fn is never invoked in that case.
func Submit[T any](ctx context.Context, s *Scheduler, op OpType, cost int, priority Priority, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := s.submit(ctx, op, cost, priority, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (s *Scheduler) submit(ctx context.Context, op OpType, cost int, priority Priority, fn func(ctx context.Context) (any, error)) (any, error) {
	if cost < 0 {
		return nil, fmt.Errorf("negative cost %d for op %s", cost, op)
	}

	s.mu.Lock()
	s.checkResetLocked()
	if cost > s.limit-s.used {
		s.mu.Unlock()
		return nil, fmt.Errorf("op %s needs %d units, %d remaining: %w", op, cost, s.remaining(), ErrQuotaExhausted)
	}
	req := &request{
		ctx:      ctx,
		op:       op,
		cost:     cost,
		priority: priority,
		seq:      s.seq,
		fn:       fn,
		result:   make(chan outcome, 1),
	}
	s.seq++
	heap.Push(&s.queue, req)
	s.mu.Unlock()
	s.notify()

	select {
	case out := <-req.result:
		return out.value, out.err
	case <-ctx.Done():
		// The dispatcher skips requests whose context is done; an in-flight fn
		// observes the same context and aborts on its own.
		return nil, ctx.Err()
	}
}

func (s *Scheduler) remaining() int {
	if s.used > s.limit {
		return 0
	}
	return s.limit - s.used
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop pops the highest-priority ready request whenever a concurrency
// slot is free, paces dispatches through the rate limiter, and runs each
// request in its own goroutine.
func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if s.inFlight >= s.maxConc || s.queue.Len() == 0 {
				s.mu.Unlock()
				break
			}
			req := heap.Pop(&s.queue).(*request)
			if req.ctx.Err() != nil {
				s.mu.Unlock()
				req.result <- outcome{err: req.ctx.Err()}
				continue
			}
			// Re-check the budget at dispatch time: earlier debits may have
			// shrunk the reservoir below this request's cost while it queued.
			s.checkResetLocked()
			if req.cost > s.limit-s.used {
				rem := s.remaining()
				s.mu.Unlock()
				req.result <- outcome{err: fmt.Errorf("op %s needs %d units, %d remaining: %w", req.op, req.cost, rem, ErrQuotaExhausted)}
				continue
			}
			s.inFlight++
			s.mu.Unlock()

			if err := s.limiter.Wait(req.ctx); err != nil {
				s.finish(req, outcome{err: err})
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.execute(req)
			}()
		}
	}
}

// execute runs the request's fn with the retry policy, debits on success,
// and delivers the outcome.
func (s *Scheduler) execute(req *request) {
	var value any
	var err error
	for attempt := 0; ; attempt++ {
		value, err = req.fn(req.ctx)
		if err == nil {
			break
		}

		kind := Classify(err)
		if kind == KindQuota {
			s.markExhausted()
			err = fmt.Errorf("op %s rejected upstream: %w", req.op, ErrQuotaExhausted)
			break
		}
		if !shouldRetry(kind, attempt) {
			break
		}

		delay := retryDelay(attempt)
		s.logger.Debug("retrying metered call",
			"op", string(req.op), "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-req.ctx.Done():
			err = req.ctx.Err()
			s.finish(req, outcome{err: err})
			return
		}
	}

	if err == nil {
		if derr := s.debit(req.cost); derr != nil {
			s.logger.Error("persisting quota state after debit", "error", derr)
		}
	}
	s.finish(req, outcome{value: value, err: err})
}

func (s *Scheduler) finish(req *request, out outcome) {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	s.notify()
	req.result <- out
}

// debit charges cost against the budget, fires threshold events, and persists.
func (s *Scheduler) debit(cost int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used += cost
	if s.used > s.limit {
		s.used = s.limit
	}
	s.checkThresholdsLocked()
	return s.persistLocked()
}

// markExhausted force-syncs local accounting to the external source's view.
func (s *Scheduler) markExhausted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = s.limit
	s.checkThresholdsLocked()
	if err := s.persistLocked(); err != nil {
		s.logger.Error("persisting quota state after upstream rejection", "error", err)
	}
}

func (s *Scheduler) persistLocked() error {
	return s.store.SaveQuotaState(storage.QuotaState{
		UnitsUsed:  s.used,
		UnitsLimit: s.limit,
		ResetAt:    s.resetAt,
	})
}

// resetLoop polls for the daily reset boundary.
func (s *Scheduler) resetLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.checkResetLocked()
			s.mu.Unlock()
			s.notify()
		}
	}
}

// checkResetLocked rolls the budget over when the boundary has passed.
// Rolls at most once per call even if several boundaries were missed while
// the process was down. Callers must hold s.mu.
func (s *Scheduler) checkResetLocked() {
	now := s.clock.Now()
	if now.Before(s.resetAt) {
		return
	}
	s.used = 0
	s.resetAt = nextResetBoundary(now, s.loc)
	s.warnFired = false
	s.critFired = false
	s.exhaustedFired = false
	s.emitLocked(EventReset)
	if err := s.persistLocked(); err != nil {
		s.logger.Error("persisting quota state after reset", "error", err)
	}
}

// nextResetBoundary returns the next midnight in loc strictly after now.
func nextResetBoundary(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

// Status is a read-only snapshot of scheduler state.
type Status struct {
	Used       int       `json:"used"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	Percent    float64   `json:"percent"`
	ResetAt    time.Time `json:"reset_at"`
	QueueDepth int       `json:"queue_depth"`
	InFlight   int       `json:"in_flight"`
}

// Snapshot returns the current budget and queue state.
func (s *Scheduler) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Used:       s.used,
		Limit:      s.limit,
		Remaining:  s.remaining(),
		Percent:    float64(s.used) / float64(s.limit) * 100,
		ResetAt:    s.resetAt,
		QueueDepth: s.queue.Len(),
		InFlight:   s.inFlight,
	}
}

// requestHeap orders requests by priority, then FIFO within a priority.
type requestHeap []*request

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x any)   { *h = append(*h, x.(*request)) }
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
