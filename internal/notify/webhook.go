package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// WebhookClient posts invitation notices as JSON to an external mailer hook.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
}

// NewWebhookClient creates a client with the specified timeout
func NewWebhookClient(url string, timeoutMS int) *WebhookClient {
	timeout := time.Duration(timeoutMS) * time.Millisecond
	return &WebhookClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

type webhookPayload struct {
	Event   string           `json:"event"`
	Subject string           `json:"subject"`
	Text    string           `json:"text"`
	Notice  InvitationNotice `json:"invitation"`
}

// InvitationSent delivers the notice. Failures are logged at WARN and never
// returned, so a broken hook cannot fail an invitation request.
func (c *WebhookClient) InvitationSent(ctx context.Context, n InvitationNotice) {
	event := "invitation.sent"
	if n.Reminder {
		event = "invitation.resent"
	}

	body, err := json.Marshal(webhookPayload{
		Event:   event,
		Subject: n.Subject(),
		Text:    n.Body(),
		Notice:  n,
	})
	if err != nil {
		log.Warn().Err(err).Str("to", n.Email).Msg("Failed to marshal notification payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Str("webhook_url", "<set>").Msg("Failed to create notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeoutError(err) {
			log.Warn().
				Err(err).
				Dur("timeout", c.timeout).
				Str("to", n.Email).
				Msg("Notification webhook timed out")
		} else {
			log.Warn().
				Err(err).
				Str("to", n.Email).
				Msg("Failed to send notification")
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("to", n.Email).
			Msg("Notification webhook returned non-2xx status")
		return
	}

	log.Info().
		Str("event", event).
		Str("to", n.Email).
		Msg("Notification sent successfully")
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
