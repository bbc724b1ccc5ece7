// Package poller tracks in-flight scrape jobs and drives their checks in
// the background so request handlers never block on the vendor.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tbakker/linkcrm/internal/crm"
	"github.com/tbakker/linkcrm/internal/jobs"
	"github.com/tbakker/linkcrm/internal/metrics"
)

// Checker probes one job's status. Satisfied by *jobs.Controller.
type Checker interface {
	Check(ctx context.Context, jobID string) (jobs.CheckResult, error)
}

// Entry is one tracked job's client-side state.
type Entry struct {
	JobID     string         `json:"job_id"`
	Kind      crm.EntityKind `json:"type"`
	URLs      []string       `json:"urls"`
	Status    crm.JobStatus  `json:"status"`
	Result    []crm.Record   `json:"result,omitempty"`
	ErrorText string         `json:"error,omitempty"`
}

// Config controls Poller behavior.
type Config struct {
	Interval time.Duration
}

// Poller is a process-local registry of outstanding jobs with a single
// cooperative timer loop. The loop runs only while non-terminal entries
// exist and idles otherwise. Removing an entry never cancels the
// underlying external scrape.
type Poller struct {
	checker     Checker
	interval    time.Duration
	logger      *zap.Logger
	onCompleted func(Entry)

	mu      sync.RWMutex
	entries map[string]Entry

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Poller. onCompleted, if non-nil, is invoked once per job
// when it reaches completed (not failed).
func New(checker Checker, cfg Config, onCompleted func(Entry), logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{
		checker:     checker,
		interval:    interval,
		logger:      logger,
		onCompleted: onCompleted,
		entries:     make(map[string]Entry),
		wake:        make(chan struct{}, 1),
	}
}

// Start launches the background loop. Call Stop to shut it down.
func (p *Poller) Start(ctx context.Context) {
	if p.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(runCtx)
}

// Stop cancels the loop and blocks until it exits.
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
}

// Add registers a job to track and wakes the loop for an immediate check.
func (p *Poller) Add(jobID string, kind crm.EntityKind, urls []string) {
	p.mu.Lock()
	p.entries[jobID] = Entry{
		JobID:  jobID,
		Kind:   kind,
		URLs:   urls,
		Status: crm.JobStatusPending,
	}
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Remove drops a tracked entry. It has no effect on the job store.
func (p *Poller) Remove(jobID string) {
	p.mu.Lock()
	delete(p.entries, jobID)
	p.mu.Unlock()
}

// Jobs returns a snapshot of all tracked entries.
func (p *Poller) Jobs() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	return out
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	for {
		if p.activeCount() == 0 {
			// Self-disable: no timer while nothing is in flight.
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			}
		} else {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			case <-time.After(p.interval):
			}
		}
		p.Tick(ctx)
	}
}

// Tick sweeps every non-terminal entry once. Checks within one sweep are
// issued concurrently and are independent; an errored check leaves its
// entry unchanged for the next sweep, only an explicit failed status is
// terminal.
func (p *Poller) Tick(ctx context.Context) {
	p.mu.RLock()
	active := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		if !e.Status.IsTerminal() {
			active = append(active, e)
		}
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, entry := range active {
		wg.Add(1)
		go func(entry Entry) {
			defer wg.Done()
			res, err := p.checker.Check(ctx, entry.JobID)
			if err != nil {
				p.logger.Debug("job check failed, will retry",
					zap.String("job_id", entry.JobID),
					zap.Error(err),
				)
				return
			}
			p.apply(entry.JobID, res)
		}(entry)
	}
	wg.Wait()
	metrics.ObservePollerTick(len(p.Jobs()))
}

func (p *Poller) apply(jobID string, res jobs.CheckResult) {
	p.mu.Lock()
	entry, ok := p.entries[jobID]
	if !ok || entry.Status.IsTerminal() {
		p.mu.Unlock()
		return
	}
	entry.Status = res.Status
	entry.Result = res.Result
	entry.ErrorText = res.ErrorText
	p.entries[jobID] = entry
	p.mu.Unlock()

	switch res.Status {
	case crm.JobStatusCompleted:
		p.logger.Info("tracked job completed",
			zap.String("job_id", jobID),
			zap.Int("record_count", len(res.Result)),
		)
		if p.onCompleted != nil {
			p.onCompleted(entry)
		}
	case crm.JobStatusFailed:
		p.logger.Warn("tracked job failed",
			zap.String("job_id", jobID),
			zap.String("error", res.ErrorText),
		)
	}
}

func (p *Poller) activeCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, e := range p.entries {
		if !e.Status.IsTerminal() {
			n++
		}
	}
	return n
}
