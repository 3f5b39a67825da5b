// Package notifier sends user-facing email.
package notifier

import (
	"context"
	"fmt"
	"io"
	"marketplace/pkg/httpclient"
	"net/http"

	"go.uber.org/zap"
)

type Email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Notifier interface {
	Send(ctx context.Context, e Email) error
}

// HTTPNotifier posts the email as JSON to a mail relay.
type HTTPNotifier struct {
	client httpclient.HTTPClient
	url    string
	from   string
	logger *zap.SugaredLogger
}

func NewHTTPNotifier(client httpclient.HTTPClient, url, from string, logger *zap.SugaredLogger) *HTTPNotifier {
	return &HTTPNotifier{client: client, url: url, from: from, logger: logger}
}

func (n *HTTPNotifier) Send(ctx context.Context, e Email) error {
	if e.From == "" {
		e.From = n.from
	}
	resp, err := httpclient.PostJSON(ctx, n.client, n.url, e)
	if err != nil {
		return fmt.Errorf("send email to %s: %w", e.To, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("send email to %s: relay answered %d", e.To, resp.StatusCode)
	}
	n.logger.Infof("email %q sent to %s", e.Subject, e.To)
	return nil
}

// LogNotifier only logs; used when no mail relay is configured.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, e Email) error {
	n.logger.Infow("simulated email", "to", e.To, "subject", e.Subject, "body", e.Body)
	return nil
}
