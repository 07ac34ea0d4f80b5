package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-journey/internal/journey"
	"go-journey/internal/member"
)

// Refresher re-classifies one member
type Refresher interface {
	RefreshIntent(ctx context.Context, memberID string) (journey.State, error)
}

// MemberLister enumerates the members to sweep
type MemberLister interface {
	List(ctx context.Context) ([]member.Member, error)
}

// Report summarises one sweep
type Report struct {
	Members  int           `json:"members"`
	Switched int           `json:"switched"`
	Soft     int           `json:"soft"`
	Failed   int           `json:"failed"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Sweeper periodically refreshes every member's journey on a cron schedule.
// At most one sweep runs at a time; a tick that fires during a sweep is skipped.
type Sweeper struct {
	refresher   Refresher
	members     MemberLister
	parallelism int
	logger      *zap.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	cancel  context.CancelFunc
	running atomic.Bool
	last    Report
}

// New creates a sweeper; parallelism below 1 means one member at a time
func New(refresher Refresher, members MemberLister, parallelism int, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &Sweeper{
		refresher:   refresher,
		members:     members,
		parallelism: parallelism,
		logger:      logger.Named("scheduler"),
	}
}

// Start schedules sweeps with a standard cron spec or a descriptor such as "@every 30m".
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.Sweep(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Sweep failed", zap.Error(err))
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.logger.Info("Scheduler started", zap.String("spec", spec), zap.Int("parallelism", s.parallelism))
	return nil
}

// Stop cancels an in-flight sweep and waits for it to return
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Last returns the report of the most recent completed sweep
func (s *Sweeper) Last() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// ErrSweepInProgress is returned when a sweep is requested while one is running
var ErrSweepInProgress = errors.New("sweep already in progress")

// Sweep refreshes every member once. Soft refresh failures are counted, not returned.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("Skipping sweep, previous one still running")
		return Report{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	list, err := s.members.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list members: %w", err)
	}

	var switched, soft, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, m := range list {
		id := m.ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			before, _ := journeyMission(gctx, s.refresher, id)
			st, err := s.refresher.RefreshIntent(gctx, id)
			switch {
			case err == nil:
				if before != "" && st.MissionID != before {
					switched.Add(1)
				}
			case journey.IsSoft(err):
				soft.Add(1)
				s.logger.Debug("Soft refresh failure", zap.String("member_id", id), zap.String("kind", journey.ErrorKind(err)))
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				s.logger.Warn("Refresh failed", zap.String("member_id", id), zap.Error(err))
			}
			return nil
		})
	}
	err = g.Wait()

	r := Report{
		Members:  len(list),
		Switched: int(switched.Load()),
		Soft:     int(soft.Load()),
		Failed:   int(failed.Load()),
		Elapsed:  time.Since(start),
	}
	if err != nil {
		return r, err
	}
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
	s.logger.Info("Sweep complete",
		zap.Int("members", r.Members),
		zap.Int("switched", r.Switched),
		zap.Int("soft", r.Soft),
		zap.Int("failed", r.Failed),
		zap.Duration("elapsed", r.Elapsed))
	return r, nil
}

type stateReader interface {
	CurrentState(ctx context.Context, memberID string) (journey.State, error)
}

// journeyMission returns the member's active mission when the refresher can report it
func journeyMission(ctx context.Context, r Refresher, memberID string) (string, bool) {
	sr, ok := r.(stateReader)
	if !ok {
		return "", false
	}
	st, err := sr.CurrentState(ctx, memberID)
	if err != nil {
		return "", false
	}
	return st.MissionID, true
}
