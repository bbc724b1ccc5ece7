// Package jobs implements the scrape job lifecycle state machine.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tbakker/linkcrm/internal/crm"
	"github.com/tbakker/linkcrm/internal/metrics"
)

// ErrNoValidURLs is returned when a trigger request carries no URL on the
// expected domain.
var ErrNoValidURLs = errors.New("no valid linkedin urls in request")

// Config controls Controller polling behavior on the synchronous path.
type Config struct {
	MaxPollAttempts int
	PollInterval    time.Duration
}

// Controller owns the pending -> processing -> completed/failed state
// machine. Trigger creates a job and returns immediately; Check advances it
// by at most one external call; terminal states are sticky.
type Controller struct {
	gateway crm.ScrapeGateway
	store   crm.JobStore
	idGen   crm.IDGenerator
	clock   crm.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Controller.
func New(
	gateway crm.ScrapeGateway,
	store crm.JobStore,
	idGen crm.IDGenerator,
	clock crm.Clock,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 20
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	return &Controller{
		gateway: gateway,
		store:   store,
		idGen:   idGen,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// TriggerInput is the request body of the trigger operation.
type TriggerInput struct {
	URL  string
	URLs []string
	Kind crm.EntityKind
}

// TriggerResult is returned by Trigger. Tracked is false when the job row
// could not be written; the snapshot id is still usable against the vendor.
type TriggerResult struct {
	JobID      string
	SnapshotID string
	Status     crm.JobStatus
	URLs       []string
	URLCount   int
	Tracked    bool
}

// CheckResult is the outcome of one status probe.
type CheckResult struct {
	JobID     string
	Kind      crm.EntityKind
	Status    crm.JobStatus
	Result    []crm.Record
	ErrorText string
}

// Trigger validates and canonicalize-filters the input URLs, starts the
// external scrape, and records a pending job. It does not block on scrape
// completion.
func (c *Controller) Trigger(ctx context.Context, input TriggerInput) (TriggerResult, error) {
	urls := collectURLs(input)
	if len(urls) == 0 {
		return TriggerResult{}, ErrNoValidURLs
	}
	if len(urls) > crm.MaxBatchURLs {
		urls = urls[:crm.MaxBatchURLs]
	}

	snapshotID, err := c.gateway.Trigger(ctx, input.Kind, urls)
	if err != nil {
		return TriggerResult{}, fmt.Errorf("trigger scrape: %w", err)
	}

	jobID, err := c.idGen.NewID()
	if err != nil {
		return TriggerResult{}, fmt.Errorf("generate job id: %w", err)
	}
	job := crm.Job{
		ID:         jobID,
		Kind:       input.Kind,
		URLs:       urls,
		SnapshotID: snapshotID,
		Status:     crm.JobStatusPending,
		CreatedAt:  c.clock.Now(),
	}
	// The external scrape is already running; a store failure must not lose
	// the snapshot handle. Degrade to an untracked result instead.
	if err := c.store.CreateJob(ctx, job); err != nil {
		c.logger.Error("job row write failed, returning untracked snapshot",
			zap.String("snapshot_id", snapshotID),
			zap.Error(err),
		)
		return TriggerResult{
			SnapshotID: snapshotID,
			Status:     crm.JobStatusPending,
			URLs:       urls,
			URLCount:   len(urls),
		}, nil
	}

	metrics.ObserveJobTransition(string(input.Kind), string(crm.JobStatusPending))
	c.logger.Info("scrape job created",
		zap.String("job_id", jobID),
		zap.String("snapshot_id", snapshotID),
		zap.String("type", string(input.Kind)),
		zap.Int("url_count", len(urls)),
	)
	return TriggerResult{
		JobID:      jobID,
		SnapshotID: snapshotID,
		Status:     crm.JobStatusPending,
		URLs:       urls,
		URLCount:   len(urls),
		Tracked:    true,
	}, nil
}

// Check probes a job once. A terminal job is returned verbatim from the
// store without contacting the vendor, which makes repeated polling cheap
// and safe. A non-terminal job costs exactly one vendor call: still
// processing leaves the row untouched, ready or hard error performs the
// single terminal write.
func (c *Controller) Check(ctx context.Context, jobID string) (CheckResult, error) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return CheckResult{}, err
	}
	if job.Status.IsTerminal() {
		return CheckResult{
			JobID:     job.ID,
			Kind:      job.Kind,
			Status:    job.Status,
			Result:    job.Result,
			ErrorText: job.ErrorText,
		}, nil
	}

	snap, err := c.gateway.PollSnapshot(ctx, job.SnapshotID)
	if err != nil {
		// Only a vendor verdict is terminal. A local misconfiguration or a
		// transport failure (no response at all) leaves the row untouched so
		// the next check can retry.
		if errors.Is(err, crm.ErrMissingCredential) || errors.Is(err, crm.ErrGatewayUnavailable) {
			return CheckResult{}, err
		}
		now := c.clock.Now()
		if failErr := c.store.FailJob(ctx, jobID, err.Error(), now); failErr != nil {
			return CheckResult{}, fmt.Errorf("record job failure: %w", failErr)
		}
		metrics.ObserveJobTransition(string(job.Kind), string(crm.JobStatusFailed))
		c.logger.Warn("scrape job failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return CheckResult{
			JobID:     jobID,
			Kind:      job.Kind,
			Status:    crm.JobStatusFailed,
			ErrorText: err.Error(),
		}, nil
	}

	if !snap.Ready {
		return CheckResult{
			JobID:  jobID,
			Kind:   job.Kind,
			Status: crm.JobStatusProcessing,
		}, nil
	}

	now := c.clock.Now()
	if err := c.store.CompleteJob(ctx, jobID, snap.Records, now); err != nil {
		return CheckResult{}, fmt.Errorf("record job completion: %w", err)
	}
	metrics.ObserveJobTransition(string(job.Kind), string(crm.JobStatusCompleted))
	c.logger.Info("scrape job completed",
		zap.String("job_id", jobID),
		zap.Int("record_count", len(snap.Records)),
	)
	return CheckResult{
		JobID:  jobID,
		Kind:   job.Kind,
		Status: crm.JobStatusCompleted,
		Result: snap.Records,
	}, nil
}

// List returns up to 50 jobs newest-first, optionally filtered by status.
func (c *Controller) List(ctx context.Context, status crm.JobStatus) ([]crm.Job, error) {
	return c.store.ListJobs(ctx, status, 50)
}

// FetchSync triggers a scrape and blocks until the snapshot is ready,
// suspending the caller for up to MaxPollAttempts*PollInterval. Meant for
// small single-item fetches where bounded blocking beats job bookkeeping;
// batch work should go through Trigger and the background poller.
func (c *Controller) FetchSync(ctx context.Context, input TriggerInput) ([]crm.Record, error) {
	triggered, err := c.Trigger(ctx, input)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		if triggered.Tracked {
			res, err := c.Check(ctx, triggered.JobID)
			if err != nil {
				return nil, err
			}
			switch res.Status {
			case crm.JobStatusCompleted:
				return res.Result, nil
			case crm.JobStatusFailed:
				return nil, errors.New(res.ErrorText)
			}
		} else {
			// Degraded mode: no job row to track, poll the vendor directly.
			snap, err := c.gateway.PollSnapshot(ctx, triggered.SnapshotID)
			if err != nil {
				return nil, err
			}
			if snap.Ready {
				return snap.Records, nil
			}
		}
		lastErr = fmt.Errorf("snapshot %s not ready after %d attempts", triggered.SnapshotID, attempt)
		if attempt == c.cfg.MaxPollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch sync: %w", ctx.Err())
		case <-time.After(c.cfg.PollInterval):
		}
	}
	return nil, lastErr
}

func collectURLs(input TriggerInput) []string {
	if len(input.URLs) > 0 {
		out := make([]string, 0, len(input.URLs))
		for _, u := range input.URLs {
			if crm.IsLinkedinURL(u) {
				out = append(out, u)
			}
		}
		return out
	}
	if input.URL != "" && crm.IsLinkedinURL(input.URL) {
		return []string{input.URL}
	}
	return nil
}
