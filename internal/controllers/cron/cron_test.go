package cron

import (
	"context"
	"marketplace/pkg/config"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingReporter struct{ calls atomic.Int32 }

func (r *countingReporter) ReportDeadLetters(context.Context) { r.calls.Add(1) }

type panickingReporter struct{}

func (panickingReporter) ReportDeadLetters(context.Context) { panic("boom") }

func TestSpecFor(t *testing.T) {
	cases := []struct {
		conf config.Cron
		want string
	}{
		{config.Cron{}, defaultSpec},
		{config.Cron{Interval: "@every 5s"}, "@every 5s"},
		{config.Cron{Schedule: "0 */5 * * * *", Interval: "@every 5s"}, "0 */5 * * * *"},
	}
	for _, tc := range cases {
		if got := specFor(tc.conf); got != tc.want {
			t.Errorf("specFor(%+v) = %q, want %q", tc.conf, got, tc.want)
		}
	}
}

func TestRegisterRejectsBadSchedule(t *testing.T) {
	c := NewController(context.Background(), zap.NewNop().Sugar())
	err := c.RegisterDeadLetterMonitorJob(&countingReporter{}, config.Cron{Schedule: "not a schedule"})
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestMonitorRunsOnSchedule(t *testing.T) {
	r := &countingReporter{}
	c := NewController(context.Background(), zap.NewNop().Sugar())
	if err := c.RegisterDeadLetterMonitorJob(r, config.Cron{Interval: "@every 1s"}); err != nil {
		t.Fatal(err)
	}
	c.Start()
	defer c.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for r.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if r.calls.Load() == 0 {
		t.Fatal("job never ran")
	}
}

func TestJobRecoversPanic(t *testing.T) {
	job := NewDeadLetterMonitorJob(panickingReporter{}, zap.NewNop().Sugar())
	job.Run(context.Background())
}
