// Package scheduler runs the bot's periodic jobs on a single worker
// goroutine, so that jobs never overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Kind names a job.
type Kind string

// Job kinds.
const (
	KindPoll    Kind = "poll"
	KindCleanup Kind = "cleanup"
	KindDigest  Kind = "digest"
)

// ErrStopped is returned by Do and Trigger once Run has returned.
var ErrStopped = errors.New("scheduler stopped")

// Defaults for Options.
const (
	DefaultPollInterval   = 90 * time.Second
	DefaultFirstPollDelay = 10 * time.Second
	DefaultCleanupAt      = 0
	DefaultDigestAt       = 5 * time.Minute
)

// Jobs are the functions run by the scheduler. A nil job is skipped.
type Jobs struct {
	Poll    func(ctx context.Context)
	Cleanup func(ctx context.Context)
	Digest  func(ctx context.Context)
}

// Options configures the cadences. CleanupAt and DigestAt are offsets from
// midnight in Location.
type Options struct {
	PollInterval   time.Duration
	FirstPollDelay time.Duration
	CleanupAt      time.Duration
	DigestAt       time.Duration
	Location       *time.Location
}

type request struct {
	name string
	fn   func(ctx context.Context)
	done chan struct{}
}

// Scheduler serializes the poll, cleanup and digest jobs.
type Scheduler struct {
	jobs    Jobs
	opts    Options
	reqs    chan request
	stopped chan struct{}
	now     func() time.Time
	log     *slog.Logger
}

// New creates a Scheduler.
func New(jobs Jobs, opts Options, log *slog.Logger) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.FirstPollDelay < 0 {
		opts.FirstPollDelay = DefaultFirstPollDelay
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		jobs:    jobs,
		opts:    opts,
		reqs:    make(chan request),
		stopped: make(chan struct{}),
		now:     time.Now,
		log:     log.With("component", "scheduler"),
	}
}

// Run executes jobs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.stopped)

	poll := time.NewTimer(s.opts.FirstPollDelay)
	defer poll.Stop()
	cleanup := time.NewTimer(s.untilDaily(s.opts.CleanupAt))
	defer cleanup.Stop()
	digest := time.NewTimer(s.untilDaily(s.opts.DigestAt))
	defer digest.Stop()

	s.log.Info("scheduler started",
		"poll_interval", s.opts.PollInterval,
		"next_cleanup", s.now().Add(s.untilDaily(s.opts.CleanupAt)).In(s.opts.Location),
		"next_digest", s.now().Add(s.untilDaily(s.opts.DigestAt)).In(s.opts.Location),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-poll.C:
			s.run(ctx, string(KindPoll), s.jobs.Poll)
			poll.Reset(s.opts.PollInterval)
		case <-cleanup.C:
			s.run(ctx, string(KindCleanup), s.jobs.Cleanup)
			cleanup.Reset(s.untilDaily(s.opts.CleanupAt))
		case <-digest.C:
			s.run(ctx, string(KindDigest), s.jobs.Digest)
			digest.Reset(s.untilDaily(s.opts.DigestAt))
		case req := <-s.reqs:
			s.run(ctx, req.name, req.fn)
			close(req.done)
		}
	}
}

// Do runs fn on the worker and waits for it to finish.
func (s *Scheduler) Do(ctx context.Context, name string, fn func(ctx context.Context)) error {
	req := request{name: name, fn: fn, done: make(chan struct{})}
	select {
	case s.reqs <- req:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger runs the job of the given kind now, on the worker.
func (s *Scheduler) Trigger(ctx context.Context, kind Kind) error {
	var fn func(ctx context.Context)
	switch kind {
	case KindPoll:
		fn = s.jobs.Poll
	case KindCleanup:
		fn = s.jobs.Cleanup
	case KindDigest:
		fn = s.jobs.Digest
	default:
		return fmt.Errorf("unknown job %q", kind)
	}
	return s.Do(ctx, string(kind), fn)
}

func (s *Scheduler) run(ctx context.Context, name string, fn func(ctx context.Context)) {
	if fn == nil || ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", "job", name, "panic", r)
		}
	}()

	start := s.now()
	s.log.Debug("job started", "job", name)
	fn(ctx)
	s.log.Debug("job finished", "job", name, "took", s.now().Sub(start))
}

func (s *Scheduler) untilDaily(offset time.Duration) time.Duration {
	now := s.now()
	return NextDaily(now, offset, s.opts.Location).Sub(now)
}

// NextDaily returns the first instant strictly after now whose wall clock in
// loc is offset past midnight.
func NextDaily(now time.Time, offset time.Duration, loc *time.Location) time.Time {
	local := now.In(loc)
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)

	next := time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, h, m, 0, 0, loc)
	}
	return next
}
