package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/storefront/pkg/logger"
)

// cronJob runs run on a cron schedule and implements system.Service. A run
// still in progress when the next tick fires is skipped.
type cronJob struct {
	name     string
	schedule string
	log      *logger.Logger
	run      func(ctx context.Context)

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func (j *cronJob) init(name, schedule string, log *logger.Logger, run func(context.Context)) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("parse %s schedule %q: %w", name, schedule, err)
	}
	if log == nil {
		log = logger.NewDefault(name)
	}
	j.name, j.schedule, j.log, j.run = name, schedule, log, run
	return nil
}

func (j *cronJob) Name() string { return j.name }

func (j *cronJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(j.schedule, func() { j.run(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule %s: %w", j.name, err)
	}
	c.Start()

	j.cron = c
	j.cancel = cancel
	j.running = true
	j.log.WithField("schedule", j.schedule).Info(j.name + " started")
	return nil
}

func (j *cronJob) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	c, cancel := j.cron, j.cancel
	j.cron, j.cancel, j.running = nil, nil, false
	j.mu.Unlock()

	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	j.log.Info(j.name + " stopped")
	return nil
}
