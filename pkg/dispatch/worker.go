package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/ratelimiter"
)

// Worker claims delivery jobs and hands them to channel senders.
// Jobs are claimed one at a time in priority order and sent concurrently
// up to the configured limit.
type Worker struct {
	repo     Repository
	senders  map[messaging.Channel]Sender
	limiters map[messaging.Channel]ratelimiter.RateLimiter
	onResult ResultHandler
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex

	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new delivery worker
func NewWorker(repo Repository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		pullInterval:      time.Second,
		lockTimeout:       2 * time.Minute,
		maxConcurrentJobs: 1,
		senders:           make(map[messaging.Channel]Sender),
		limiters:          make(map[messaging.Channel]ratelimiter.RateLimiter),
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:         repo,
		senders:      options.senders,
		limiters:     options.limiters,
		onResult:     options.onResult,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, options.maxConcurrentJobs),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		logger:       options.logger.With(logger.Component("dispatch")),
	}, nil
}

// RegisterSender sets the sender for a channel, replacing any previous one.
func (w *Worker) RegisterSender(ch messaging.Channel, s Sender) {
	if s == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.senders[ch] = s
}

// Start begins processing jobs in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	if len(w.senders) == 0 {
		w.mu.Unlock()
		return ErrNoSenders
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.LogAttrs(ctx, slog.LevelInfo, "dispatch worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Int("max_concurrent", cap(w.sem)),
	)
	return nil
}

// Stop gracefully shuts down the worker, waiting for in-flight deliveries.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.logger.LogAttrs(context.Background(), slog.LevelInfo, "dispatch worker stopped",
		slog.String("worker_id", w.workerID.String()),
	)
	return nil
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.drain()
		}
	}
}

// drain claims jobs while there are free slots and ready jobs.
func (w *Worker) drain() {
	for {
		select {
		case w.sem <- struct{}{}:
		default:
			return
		}

		job, err := w.repo.Claim(w.ctx, w.workerID, w.lockTimeout)
		if err != nil {
			<-w.sem
			if !errors.Is(err, ErrNoJobToClaim) && w.ctx.Err() == nil {
				w.logger.LogAttrs(w.ctx, slog.LevelError, "failed to claim job", logger.Error(err))
			}
			return
		}

		w.stopMu.Lock()
		if w.stopping.Load() {
			w.stopMu.Unlock()
			<-w.sem
			return
		}
		w.wg.Add(1)
		w.stopMu.Unlock()

		go func(job *Job) {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			if err := w.process(job); err != nil {
				w.logger.LogAttrs(context.Background(), slog.LevelError, "failed to process job",
					logger.JobID(job.ID),
					logger.Error(err),
				)
			}
		}(job)
	}
}

// ProcessNext claims and processes a single job synchronously.
// It returns false when no job was ready.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.repo.Claim(ctx, w.workerID, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoJobToClaim) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	return true, w.process(job)
}

func (w *Worker) process(job *Job) (retErr error) {
	start := time.Now()
	// Deliveries get their own deadline so shutdown lets them finish.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in sender: %v", r)
			w.logger.LogAttrs(ctx, slog.LevelError, "sender panicked",
				logger.JobID(job.ID),
				logger.Channel(job.Channel),
				slog.Any("panic", r),
			)
			retErr = w.handleFailure(ctx, job, err, time.Since(start))
		}
	}()

	w.mu.RLock()
	sender, ok := w.senders[job.Channel]
	limiter := w.limiters[job.Channel]
	w.mu.RUnlock()

	if !ok {
		return w.handleFailure(ctx, job, Permanent(messaging.DeliveryFailed, fmt.Errorf("%w: %s", ErrNoSender, job.Channel)), 0)
	}

	if limiter != nil {
		res, err := limiter.Allow(ctx, string(job.Channel))
		if err != nil {
			return w.handleFailure(ctx, job, fmt.Errorf("rate limiter: %w", err), 0)
		}
		if !res.Allowed() {
			w.logger.LogAttrs(ctx, slog.LevelDebug, "channel throttled, deferring job",
				logger.JobID(job.ID),
				logger.Channel(job.Channel),
				slog.Time("until", res.ResetAt),
			)
			return w.repo.Defer(ctx, job.ID, res.ResetAt)
		}
	}

	if err := sender.Send(ctx, *job); err != nil {
		return w.handleFailure(ctx, job, err, time.Since(start))
	}
	return w.handleSuccess(ctx, job, time.Since(start))
}

func (w *Worker) handleFailure(ctx context.Context, job *Job, sendErr error, duration time.Duration) error {
	retry := !IsPermanent(sendErr)
	updated, err := w.repo.Fail(ctx, job.ID, sendErr.Error(), retry)
	if err != nil {
		return fmt.Errorf("failed to mark job %s as failed: %w", job.ID, err)
	}

	final := updated.Status == JobStatusFailed
	level := slog.LevelWarn
	if final {
		level = slog.LevelError
	}
	w.logger.LogAttrs(ctx, level, "delivery attempt failed",
		logger.JobID(job.ID),
		logger.MessageID(job.MessageID),
		logger.RecipientID(job.RecipientID),
		logger.Channel(job.Channel),
		logger.RetryCount(updated.RetryCount),
		slog.Int("max_retries", updated.MaxRetries),
		slog.Bool("final", final),
		logger.Duration(duration),
		logger.Error(sendErr),
	)

	status := messaging.DeliveryPending
	if final {
		status = messaging.DeliveryFailed
		var pe *PermanentError
		if errors.As(sendErr, &pe) {
			status = pe.Status
		}
	}
	w.notify(ctx, Outcome{Job: *updated, Status: status, Err: sendErr, Final: final})
	return nil
}

func (w *Worker) handleSuccess(ctx context.Context, job *Job, duration time.Duration) error {
	if err := w.repo.Complete(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to mark job %s as completed: %w", job.ID, err)
	}

	w.logger.LogAttrs(ctx, slog.LevelInfo, "delivered",
		logger.JobID(job.ID),
		logger.MessageID(job.MessageID),
		logger.RecipientID(job.RecipientID),
		logger.Channel(job.Channel),
		logger.Duration(duration),
	)

	done := *job
	done.Status = JobStatusCompleted
	w.notify(ctx, Outcome{Job: done, Status: messaging.DeliveryDelivered, Final: true})
	return nil
}

func (w *Worker) notify(ctx context.Context, o Outcome) {
	if w.onResult != nil {
		w.onResult(ctx, o)
	}
}
