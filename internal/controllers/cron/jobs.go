package cron

import (
	"context"

	"go.uber.org/zap"
)

// DeadLetterReporter is the use case the monitor job runs.
type DeadLetterReporter interface {
	ReportDeadLetters(ctx context.Context)
}

// DeadLetterMonitorJob surfaces outbox rows the relay gave up on.
type DeadLetterMonitorJob struct {
	usecase DeadLetterReporter
	logger  *zap.SugaredLogger
}

func NewDeadLetterMonitorJob(usecase DeadLetterReporter, logger *zap.SugaredLogger) *DeadLetterMonitorJob {
	return &DeadLetterMonitorJob{
		usecase: usecase,
		logger:  logger,
	}
}

func (j *DeadLetterMonitorJob) Run(ctx context.Context) {
	j.logger.Debug("dead letter monitor started")

	defer func() {
		if r := recover(); r != nil {
			j.logger.Errorf("dead letter monitor panicked: %v", r)
		}
	}()

	j.usecase.ReportDeadLetters(ctx)
	j.logger.Debug("dead letter monitor finished")
}
