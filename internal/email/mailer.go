// Package email sends appointment invitations through Amazon SES.
package email

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog"

	"github.com/parentrak/parentrak-backend/internal/config"
)

// SendAPI is the part of the SES client the mailer uses.
type SendAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Invite describes an appointment invitation for one recipient.
type Invite struct {
	ToEmail       string
	ToName        string
	ChildName     string
	Title         string
	Description   string
	StartsAt      time.Time
	EndsAt        time.Time
	Location      string
	MeetingType   string
	AppointmentID string
}

// Mailer sends transactional email. A disabled mailer logs and skips.
type Mailer struct {
	client     SendAPI
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	log        zerolog.Logger
}

// New builds a Mailer from cfg. Without SES_FROM_EMAIL the mailer is
// disabled and no AWS configuration is loaded.
func New(ctx context.Context, cfg config.EmailConfig, log zerolog.Logger) (*Mailer, error) {
	log = log.With().Str("component", "email").Logger()
	if cfg.FromEmail == "" {
		log.Info().Msg("email disabled: SES_FROM_EMAIL not configured")
		return &Mailer{log: log}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("email: load AWS config: %w", err)
	}
	log.Info().Str("from", cfg.FromEmail).Str("region", cfg.Region).Msg("email enabled")
	return NewWithClient(sesv2.NewFromConfig(awsCfg), cfg, log), nil
}

// NewWithClient builds an enabled Mailer around an existing SES client.
func NewWithClient(client SendAPI, cfg config.EmailConfig, log zerolog.Logger) *Mailer {
	return &Mailer{
		client:     client,
		fromEmail:  cfg.FromEmail,
		fromName:   cfg.FromName,
		appBaseURL: strings.TrimRight(cfg.AppBaseURL, "/"),
		enabled:    client != nil && cfg.FromEmail != "",
		log:        log,
	}
}

// Enabled reports whether mail is actually sent.
func (m *Mailer) Enabled() bool { return m != nil && m.enabled }

// SendAppointmentInvite emails inv to its recipient.
func (m *Mailer) SendAppointmentInvite(ctx context.Context, inv Invite) error {
	if !m.Enabled() {
		m.log.Debug().Str("appointment_id", inv.AppointmentID).Msg("skipping invite email (disabled)")
		return nil
	}
	if inv.ToEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("Appointment: %s", inv.Title)
	link := fmt.Sprintf("%s/appointments/%s", m.appBaseURL, inv.AppointmentID)
	when := fmt.Sprintf("%s - %s UTC",
		inv.StartsAt.UTC().Format("Mon 2 Jan 2006 15:04"),
		inv.EndsAt.UTC().Format("15:04"))

	textBody := fmt.Sprintf(`Hi %s,

You have been invited to an appointment about %s.

%s
When: %s
Where: %s (%s)

%s

Accept or decline here: %s
`, inv.ToName, inv.ChildName, inv.Title, when, inv.Location, inv.MeetingType, inv.Description, link)

	e := html.EscapeString
	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<p>Hi %s,</p>
	<p>You have been invited to an appointment about <strong>%s</strong>.</p>
	<h2>%s</h2>
	<p><strong>When:</strong> %s<br><strong>Where:</strong> %s (%s)</p>
	<p>%s</p>
	<p><a href="%s">Accept or decline</a></p>
</body>
</html>
`, e(inv.ToName), e(inv.ChildName), e(inv.Title), e(when), e(inv.Location), e(inv.MeetingType), e(inv.Description), e(link))

	return m.send(ctx, inv.ToEmail, subject, htmlBody, textBody)
}

func (m *Mailer) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	from := m.fromEmail
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}
	if _, err := m.client.SendEmail(ctx, input); err != nil {
		m.log.Error().Err(err).Msg("send email failed")
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}
