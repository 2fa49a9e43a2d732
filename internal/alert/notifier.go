package alert

import (
	"context"
	"fmt"
	"io"

	"github.com/evairo/aqmon/backend/internal/pipeline"
	"github.com/evairo/aqmon/backend/pkg/httputil"
	"github.com/evairo/aqmon/backend/pkg/logger"
)

// LogNotifier writes notifications to the log. Default sink for
// development environments.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a new log notifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.WithField("module", "log_notifier")}
}

var _ Notifier = (*LogNotifier)(nil)

// Send logs the notification instead of delivering it.
func (n *LogNotifier) Send(ctx context.Context, channel, recipient, message string) error {
	n.logger.WithFields(map[string]interface{}{
		"channel":   channel,
		"recipient": recipient,
		"message":   message,
	}).Info("Alert notification")
	return nil
}

// WebhookNotifier POSTs notifications as JSON to a configured endpoint,
// which fans out to the actual delivery channels (email, push, SMS).
type WebhookNotifier struct {
	httpClient *httputil.Client
	url        string
	logger     *logger.Logger
}

// NewWebhookNotifier creates a new webhook notifier.
func NewWebhookNotifier(httpClient *httputil.Client, url string, log *logger.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		httpClient: httpClient,
		url:        url,
		logger:     log.WithField("module", "webhook_notifier"),
	}
}

var _ Notifier = (*WebhookNotifier)(nil)

type webhookPayload struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// Send delivers one notification to the webhook endpoint.
func (n *WebhookNotifier) Send(ctx context.Context, channel, recipient, message string) error {
	resp, err := n.httpClient.PostJSON(ctx, n.url, webhookPayload{
		Channel:   channel,
		Recipient: recipient,
		Message:   message,
	})
	if err != nil {
		return &pipeline.NotificationDeliveryError{Channel: channel, Recipient: recipient, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &pipeline.NotificationDeliveryError{
			Channel:   channel,
			Recipient: recipient,
			Err:       fmt.Errorf("webhook returned status %d", resp.StatusCode),
		}
	}
	return nil
}
