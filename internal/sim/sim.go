// Package sim runs reader and writer goroutines against a lock-guarded data
// set and checks mutual exclusion while they run.
//
// Every reader adds 1 to a shared activity counter while it holds the read
// lock and every writer adds 10000 while it holds the write lock. A reader
// that sees a writer's share, or a writer that sees anything but its own
// share, reports ErrExclusionViolated.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/christophcemper/datasetlock"
	"github.com/christophcemper/datasetlock/dataset"
	"github.com/christophcemper/datasetlock/internal/config"
)

const writerWeight = 10000

var (
	// ErrExclusionViolated is returned when a reader and a writer, or two
	// writers, were inside the lock at the same time.
	ErrExclusionViolated = errors.New("mutual exclusion violated")

	// ErrInconsistentRead is returned when a reader saw a half-written data set.
	ErrInconsistentRead = errors.New("inconsistent read")
)

// Result summarises a run.
type Result struct {
	Reads   int64
	Writes  int64
	Points  int
	Elapsed time.Duration
	Stats   map[datasetlock.LockType]datasetlock.LockStats
}

// Simulator owns one data set and the goroutines hammering it.
type Simulator struct {
	cfg       config.Config
	logger    *slog.Logger
	observers []datasetlock.Observer

	activity atomic.Int64
	reads    atomic.Int64
	writes   atomic.Int64
}

// New creates a simulator. cfg must be valid.
func New(cfg config.Config, logger *slog.Logger, observers ...datasetlock.Observer) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		cfg:       cfg,
		logger:    logger.With("component", "sim"),
		observers: observers,
	}
}

// Run starts the configured readers and writers and stops them after
// cfg.Duration, when ctx is cancelled, or on the first violation.
func (s *Simulator) Run(ctx context.Context) (Result, error) {
	if err := s.cfg.Validate(); err != nil {
		return Result{}, err
	}

	ds := dataset.NewRegistered(s.cfg.LockName)
	lock := ds.Lock().
		WithLogger(s.logger).
		WithWarningTimeout(s.cfg.WarningTimeout)
	for _, o := range s.observers {
		lock.WithObserver(o)
	}
	defer func() {
		if err := lock.Close(); err != nil {
			s.logger.Warn("lock not closed", "err", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Duration)
	defer cancel()

	s.logger.Info("simulation started", "readers", s.cfg.Readers, "writers", s.cfg.Writers,
		"duration", s.cfg.Duration, "depth", s.cfg.ReentrantDepth)

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Writers; i++ {
		g.Go(func() error { return s.writer(ctx, ds) })
	}
	for i := 0; i < s.cfg.Readers; i++ {
		g.Go(func() error { return s.reader(ctx, ds) })
	}
	err := g.Wait()

	res := Result{
		Reads:   s.reads.Load(),
		Writes:  s.writes.Load(),
		Elapsed: time.Since(start),
		Stats:   lock.Stats(),
	}
	res.Points = lock.ReadLock().DataCount()
	lock.ReadUnlock()

	if err != nil {
		s.logger.Error("simulation failed", "err", err)
		return res, err
	}
	s.logger.Info("simulation finished", "reads", res.Reads, "writes", res.Writes, "points", res.Points)
	return res, nil
}

func (s *Simulator) writer(ctx context.Context, ds *dataset.DataSet) error {
	lock := ds.Lock()
	for ctx.Err() == nil {
		err := nest(s.cfg.ReentrantDepth, lock.WriteLockGuard, func() error {
			if n := s.activity.Add(writerWeight); n != writerWeight {
				s.activity.Add(-writerWeight)
				return fmt.Errorf("%w: writer saw activity %d", ErrExclusionViolated, n)
			}
			defer s.activity.Add(-writerWeight)

			// two points per write; readers must never see an odd count
			x := float64(ds.DataCount())
			ds.Add(x, 1)
			hold(ctx, s.cfg.WriteHold)
			ds.Add(x+1, 1)
			return nil
		})
		if err != nil {
			return err
		}
		s.writes.Add(1)
	}
	return nil
}

func (s *Simulator) reader(ctx context.Context, ds *dataset.DataSet) error {
	lock := ds.Lock()
	for ctx.Err() == nil {
		err := nest(s.cfg.ReentrantDepth, lock.ReadLockGuard, func() error {
			n := s.activity.Add(1)
			defer s.activity.Add(-1)
			if n < 1 || n >= writerWeight {
				return fmt.Errorf("%w: reader saw activity %d", ErrExclusionViolated, n)
			}

			count := ds.DataCount()
			if count%2 != 0 || ds.SumY() != float64(count) {
				return fmt.Errorf("%w: %d points, sum %v", ErrInconsistentRead, count, ds.SumY())
			}
			hold(ctx, s.cfg.ReadHold)
			return nil
		})
		if err != nil {
			return err
		}
		s.reads.Add(1)
	}
	return nil
}

// nest runs body inside depth nested calls of guard.
func nest(depth int, guard func(func() error) error, body func() error) error {
	if depth <= 1 {
		return guard(body)
	}
	return guard(func() error {
		return nest(depth-1, guard, body)
	})
}

// hold sleeps for d or until ctx is done.
func hold(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
