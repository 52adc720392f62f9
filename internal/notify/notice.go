package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aliuyar1234/pmdash/internal/config"
	"github.com/rs/zerolog/log"
)

// InvitationNotice carries everything needed to tell someone they were invited.
type InvitationNotice struct {
	AppName      string    `json:"app_name"`
	Email        string    `json:"email"`
	CompanyName  string    `json:"company_name"`
	InviterName  string    `json:"inviter_name"`
	Role         string    `json:"role"`
	Link         string    `json:"invitation_link"`
	ExpiresAt    time.Time `json:"expires_at"`
	ValidForDays int       `json:"valid_for_days"`
	Reminder     bool      `json:"reminder"`
}

// Subject returns the email subject line.
func (n InvitationNotice) Subject() string {
	company := orDefault(n.CompanyName, "a company")
	if n.Reminder {
		return fmt.Sprintf("Invitation Reminder: Join %s on %s", company, n.AppName)
	}
	return fmt.Sprintf("You've been invited to join %s on %s", company, n.AppName)
}

// Body returns the plain-text email body.
func (n InvitationNotice) Body() string {
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	if n.Reminder {
		b.WriteString("This is a reminder that ")
	}
	fmt.Fprintf(&b, "%s has invited you to join %s on %s with the role of %s.\n\n",
		orDefault(n.InviterName, "Someone"), orDefault(n.CompanyName, "their company"), n.AppName, n.Role)
	fmt.Fprintf(&b, "To accept this invitation, please click the link below:\n%s\n\n", n.Link)
	fmt.Fprintf(&b, "This invitation will expire in %d days.\n\n", n.ValidForDays)
	b.WriteString("If you did not expect this invitation, you can safely ignore this email.\n\n")
	fmt.Fprintf(&b, "Best regards,\nThe %s Team\n", n.AppName)
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// Notifier delivers invitation notices. Implementations never fail the caller.
type Notifier interface {
	InvitationSent(ctx context.Context, notice InvitationNotice)
}

// LogNotifier writes the rendered email to the structured log instead of sending it.
type LogNotifier struct{}

func (LogNotifier) InvitationSent(_ context.Context, n InvitationNotice) {
	log.Info().
		Str("to", n.Email).
		Str("from", n.AppName).
		Str("subject", n.Subject()).
		Bool("reminder", n.Reminder).
		Str("body", n.Body()).
		Msg("Invitation email")
}

// New returns the webhook client when a URL is configured, otherwise a LogNotifier.
func New(cfg *config.Config) Notifier {
	if cfg.NotifyWebhookURL == "" {
		return LogNotifier{}
	}
	return NewWebhookClient(cfg.NotifyWebhookURL, cfg.NotifyTimeoutMS)
}
