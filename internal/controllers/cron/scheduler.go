package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

type Job interface {
	Run(ctx context.Context)
}

// zapCronLogger feeds robfig/cron's own messages (skipped runs, panics) into zap.
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

type Scheduler struct {
	c   *cron.Cron
	ctx context.Context
}

func NewScheduler(ctx context.Context, logger *zap.SugaredLogger) *Scheduler {
	cl := zapCronLogger{logger: logger}
	// six fields with seconds, plus descriptors (@every, @hourly, ...)
	c := cron.New(
		cron.WithParser(cron.NewParser(
			cron.Second|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
		)),
		cron.WithLogger(cl),
		// a slow run is skipped instead of piling up
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return &Scheduler{c: c, ctx: ctx}
}

// Add runs job on spec with a per-run deadline derived from the scheduler context.
func (s *Scheduler) Add(spec string, job Job) (cron.EntryID, error) {
	return s.c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
		defer cancel()
		job.Run(ctx)
	})
}

func (s *Scheduler) Start() {
	s.c.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
}
