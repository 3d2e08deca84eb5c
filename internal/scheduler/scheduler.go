package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"email-monitor-go/internal/metrics"
)

// Poller runs a job at a fixed interval on a cron scheduler
type Poller struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	name      string
	interval  time.Duration
	job       func()
	metrics   *metrics.Metrics
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// NewPoller creates a stopped poller. Intervals below one second are
// rounded up to one second by the cron scheduler.
func NewPoller(name string, interval time.Duration, job func(), m *metrics.Metrics) *Poller {
	return &Poller{
		cron:     cron.New(),
		name:     name,
		interval: interval,
		job:      job,
		metrics:  m,
	}
}

// Start starts the poller. The first run happens one interval after Start.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("poller %s is already running", p.name)
	}
	if p.interval <= 0 {
		return fmt.Errorf("poller %s interval must be greater than 0", p.name)
	}

	entryID, err := p.cron.AddFunc(fmt.Sprintf("@every %s", p.interval), p.tick)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	p.entryID = entryID
	p.cron.Start()
	p.isRunning = true

	logrus.Debugf("Poller %s started with interval %s", p.name, p.interval)
	return nil
}

// Stop stops the poller. A tick already in progress is allowed to finish.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	ctx := p.cron.Stop()
	p.cron.Remove(p.entryID)
	p.entryID = 0
	p.mu.Unlock()

	// wait outside the lock: a running tick takes the read lock
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		logrus.Warnf("Poller %s stop timeout, abandoning running tick", p.name)
	}

	logrus.Debugf("Poller %s stopped", p.name)
	return nil
}

// IsRunning returns whether the poller is running
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isRunning
}

func (p *Poller) tick() {
	p.wg.Add(1)
	defer p.wg.Done()

	p.mu.RLock()
	if !p.isRunning {
		p.mu.RUnlock()
		return
	}
	p.mu.RUnlock()

	if p.metrics != nil {
		p.metrics.PollTicks.Inc()
	}
	p.job()
}

// RunOnce runs the job immediately, outside the schedule
func (p *Poller) RunOnce() {
	p.wg.Add(1)
	defer p.wg.Done()
	p.job()
}

// GetNextRun returns the time of the next scheduled run
func (p *Poller) GetNextRun() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.isRunning {
		return time.Time{}
	}
	return p.cron.Entry(p.entryID).Next
}

// GetLastRun returns the time of the last run
func (p *Poller) GetLastRun() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.isRunning {
		return time.Time{}
	}
	return p.cron.Entry(p.entryID).Prev
}

// Wait waits for running ticks to finish
func (p *Poller) Wait() {
	p.wg.Wait()
}
