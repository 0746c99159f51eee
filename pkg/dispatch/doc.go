// Package dispatch executes delivery plans.
//
// An Enqueuer converts messaging.PlanEntry values into Jobs and pushes them to
// a Repository. A Worker claims ready jobs in descending priority order (ties
// broken by earliest schedule), hands each to the Sender registered for its
// channel and reports every attempt to a ResultHandler.
//
// Failed attempts are retried with linear backoff until the job's retry budget
// is spent; senders can stop retries early by returning an error wrapped with
// Permanent. Jobs that will not be retried land in the dead letter list.
// Channels can be throttled with a ratelimiter.RateLimiter; throttled jobs are
// deferred to the limiter's reset time without consuming a retry.
//
// Cancelling a message removes its pending jobs. Jobs already handed to a
// sender are not interrupted.
//
// # Usage
//
//	q := dispatch.NewMemoryQueue()
//	defer q.Close()
//
//	enq, _ := dispatch.NewEnqueuer(q)
//	if _, err := enq.EnqueuePlan(ctx, result.Plan); err != nil {
//		return err
//	}
//
//	w, _ := dispatch.NewWorker(q,
//		dispatch.WithSender(messaging.ChannelEmail, emailSender),
//		dispatch.WithMaxConcurrentJobs(8),
//		dispatch.WithResultHandler(hub.HandleOutcome),
//	)
//	g.Go(w.Run(ctx))
package dispatch
