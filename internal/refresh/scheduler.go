// Package refresh keeps acquired tokens warm by re-acquiring them shortly
// before they expire. Renewal is driven by token lifetime, not by polling.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"chained-datasource/internal/auth"
	"chained-datasource/internal/logger"
	"chained-datasource/internal/metrics"
)

// renewTimeout bounds a single background renewal
const renewTimeout = 30 * time.Second

// TokenSource is what the scheduler re-acquires tokens from.
type TokenSource interface {
	AcquireSilent(ctx context.Context, req *auth.LoginRequest) (*oauth2.Token, bool)
	HasAccount(ctx context.Context, req *auth.LoginRequest) bool
}

type armedJob struct {
	id    uuid.UUID
	runAt time.Time
}

// Scheduler arms at most one one-shot renewal job per login request.
type Scheduler struct {
	sched         gocron.Scheduler
	source        TokenSource
	refreshBefore time.Duration
	logger        *logger.Logger
	metrics       *metrics.Metrics

	mu   sync.Mutex
	jobs map[auth.RequestKey]armedJob
}

// NewScheduler creates and starts a scheduler. refreshBefore moves each
// renewal earlier than the token expiry by that amount.
func NewScheduler(source TokenSource, refreshBefore time.Duration, log *logger.Logger, m *metrics.Metrics) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	sched.Start()

	return &Scheduler{
		sched:         sched,
		source:        source,
		refreshBefore: refreshBefore,
		logger:        log,
		metrics:       m,
		jobs:          make(map[auth.RequestKey]armedJob),
	}, nil
}

// Schedule arms a renewal for req from the expiry of token, replacing any job
// already armed for the same request. It returns false, arming nothing, when
// the token has no expiry or is already expired.
func (s *Scheduler) Schedule(req *auth.LoginRequest, token *oauth2.Token) bool {
	if token == nil || token.Expiry.IsZero() {
		s.logger.Debug("token has no expiry, refresh not scheduled", "clientId", req.Key.Client, "scope", req.Key.Scope)
		return false
	}

	now := time.Now()
	if !token.Expiry.After(now) {
		s.logger.Debug("token already expired, refresh not scheduled",
			"clientId", req.Key.Client,
			"scope", req.Key.Scope,
			"expiresOn", token.Expiry)
		return false
	}

	runAt := token.Expiry.Add(-s.refreshBefore)
	if !runAt.After(now) {
		runAt = token.Expiry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(req.Key)

	id := uuid.New()
	_, err := s.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(runAt)),
		gocron.NewTask(s.renew, req, id),
		gocron.WithIdentifier(id),
		gocron.WithName(req.Key.String()),
	)
	if err != nil {
		s.logger.Error("failed to arm token refresh",
			"clientId", req.Key.Client,
			"scope", req.Key.Scope,
			"error", err)
		return false
	}

	s.jobs[req.Key] = armedJob{id: id, runAt: runAt}
	s.logger.Info("token refresh scheduled",
		"clientId", req.Key.Client,
		"scope", req.Key.Scope,
		"delay", runAt.Sub(now))

	if s.metrics != nil {
		s.metrics.IncRefreshArmed()
		s.metrics.SetRefreshJobsPending(float64(len(s.jobs)))
	}
	return true
}

// cancelLocked removes the job armed for key, if any. Callers hold s.mu.
func (s *Scheduler) cancelLocked(key auth.RequestKey) {
	prev, ok := s.jobs[key]
	if !ok {
		return
	}
	delete(s.jobs, key)
	if err := s.sched.RemoveJob(prev.id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		s.logger.Warn("failed to cancel previous refresh", "clientId", key.Client, "scope", key.Scope, "error", err)
	}
}

// renew is the job body: re-acquire and, on success, arm the next renewal.
func (s *Scheduler) renew(req *auth.LoginRequest, id uuid.UUID) {
	s.mu.Lock()
	if cur, ok := s.jobs[req.Key]; ok && cur.id == id {
		delete(s.jobs, req.Key)
	}
	s.mu.Unlock()

	// One-shot jobs are done after this run
	if err := s.sched.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		s.logger.Debug("failed to drop finished refresh job", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), renewTimeout)
	defer cancel()

	s.logger.Debug("refreshing token", "clientId", req.Key.Client, "scope", req.Key.Scope)

	if !s.source.HasAccount(ctx, req) {
		s.logger.Warn("token refresh skipped, no signed-in account",
			"clientId", req.Key.Client,
			"scope", req.Key.Scope)
		s.recordFired(metrics.OutcomeFailure)
		return
	}

	token, ok := s.source.AcquireSilent(ctx, req)
	if !ok {
		s.logger.Warn("token refresh failed, waiting for next data request",
			"clientId", req.Key.Client,
			"scope", req.Key.Scope)
		s.recordFired(metrics.OutcomeFailure)
		return
	}

	s.recordFired(metrics.OutcomeSuccess)
	s.Schedule(req, token)
}

func (s *Scheduler) recordFired(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncRefreshFired(outcome)
	s.metrics.SetRefreshJobsPending(float64(s.Pending()))
}

// NextRun returns when the renewal for key is armed to run.
func (s *Scheduler) NextRun(key auth.RequestKey) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[key]
	return job.runAt, ok
}

// Pending returns the number of armed renewals.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Shutdown stops the scheduler and drops all armed renewals.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	s.jobs = make(map[auth.RequestKey]armedJob)
	s.mu.Unlock()

	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	return nil
}
