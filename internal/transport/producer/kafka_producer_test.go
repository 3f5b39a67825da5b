package producer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
)

type dialTimeout struct{}

func (dialTimeout) Error() string   { return "i/o timeout" }
func (dialTimeout) Timeout() bool   { return true }
func (dialTimeout) Temporary() bool { return true }

func TestClassifyRetry(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{sarama.ErrLeaderNotAvailable, "leader_not_available"},
		{fmt.Errorf("wrapped: %w", sarama.ErrRequestTimedOut), "broker_timeout"},
		{sarama.ErrNotEnoughReplicasAfterAppend, "not_enough_replicas"},
		{context.DeadlineExceeded, "client_deadline"},
		{fmt.Errorf("send: %w", context.DeadlineExceeded), "client_deadline"},
		{context.Canceled, "client_deadline"},
		{dialTimeout{}, "net_timeout"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := ClassifyRetry(tt.err); got != tt.want {
			t.Errorf("ClassifyRetry(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestIsPermanent(t *testing.T) {
	if !isPermanent(sarama.ErrMessageSizeTooLarge) {
		t.Fatal("oversized messages never succeed on retry")
	}
	if isPermanent(sarama.ErrLeaderNotAvailable) {
		t.Fatal("leader election is transient")
	}
}
