package cron

import (
	"context"
	"fmt"
	"marketplace/pkg/config"

	"go.uber.org/zap"
)

const defaultSpec = "@every 1m"

type Controller struct {
	scheduler *Scheduler
	logger    *zap.SugaredLogger
}

func NewController(ctx context.Context, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		scheduler: NewScheduler(ctx, logger),
		logger:    logger,
	}
}

// RegisterDeadLetterMonitorJob accepts a cron expression with seconds
// ("0 */5 * * * *") in Schedule or a descriptor ("@every 1m") in Interval.
// Schedule wins when both are set.
func (c *Controller) RegisterDeadLetterMonitorJob(usecase DeadLetterReporter, conf config.Cron) error {
	job := NewDeadLetterMonitorJob(usecase, c.logger)

	spec := specFor(conf)
	if conf.Schedule == "" && conf.Interval == "" {
		c.logger.Warnf("no schedule configured, using default interval %s", spec)
	}

	entryID, err := c.scheduler.Add(spec, job)
	if err != nil {
		return fmt.Errorf("register dead letter monitor %q: %w", spec, err)
	}

	c.logger.Infof("dead letter monitor registered, entry %d, schedule %s", entryID, spec)
	return nil
}

func specFor(conf config.Cron) string {
	switch {
	case conf.Schedule != "":
		return conf.Schedule
	case conf.Interval != "":
		return conf.Interval
	default:
		return defaultSpec
	}
}

func (c *Controller) Start() {
	c.logger.Info("starting cron scheduler")
	c.scheduler.Start()
}

// Stop waits for running jobs.
func (c *Controller) Stop() {
	c.logger.Info("stopping cron scheduler")
	c.scheduler.Stop()
	c.logger.Info("cron scheduler stopped")
}
