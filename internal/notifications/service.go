package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/mentionmap/slack-mention-map/internal/config"
	"github.com/mentionmap/slack-mention-map/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Mailer abstracts the SMTP dialer so the report path can be tested
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service e-mails finished analysis reports when NOTIFICATION_EMAIL is set
type Service struct {
	config *config.Config
	mailer Mailer
}

// Ensure Service implements ReportSender
var _ ReportSender = (*Service)(nil)

// NewService creates a new e-mail report service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		mailer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}
}

// SendReport e-mails the report; it is a no-op when no recipient is configured
func (s *Service) SendReport(report *models.Report) error {
	if s.config.NotificationEmail == "" {
		return nil
	}

	msg, err := s.buildMessage(report)
	if err != nil {
		return err
	}

	if err := s.mailer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	logrus.Infof("Sent mention map report for #%s to %s", report.ChannelName, s.config.NotificationEmail)
	return nil
}

func (s *Service) buildMessage(report *models.Report) (*gomail.Message, error) {
	subject := fmt.Sprintf("Mention map for #%s - last %d days (%d messages)",
		report.ChannelName, report.Days, report.TotalMessages)

	htmlBody, err := buildEmailHTML(report)
	if err != nil {
		return nil, fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", buildEmailText(report))
	m.AddAlternative("text/html", htmlBody)

	return m, nil
}

const emailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Mention Map Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #1D9BD1; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        table { border-collapse: collapse; }
        td, th { padding: 4px 12px; border-bottom: 1px solid #ddd; text-align: left; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Mention map for #{{.ChannelName}}</h1>
        <p>Last {{.Days}} days, generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM MST"}}</p>
    </div>

    <div class="summary">
        <p><strong>Messages analyzed:</strong> {{.TotalMessages}}</p>
        <p><strong>Active members:</strong> {{.TotalSenders}}</p>
    </div>

    {{if .TopPairs}}
    <h2>Most frequent mentions</h2>
    <table>
        <tr><th>From</th><th>To</th><th>Count</th></tr>
        {{range .TopPairs}}<tr><td>{{.Sender}}</td><td>{{.Receiver}}</td><td>{{.Count}}</td></tr>
        {{end}}
    </table>
    {{end}}

    {{if .TopSenders}}
    <h2>Most active members</h2>
    <table>
        <tr><th>Member</th><th>Messages</th></tr>
        {{range .TopSenders}}<tr><td>{{.Sender}}</td><td>{{.Count}}</td></tr>
        {{end}}
    </table>
    {{end}}

    {{if .URL}}<p><a href="{{.URL}}">Open the interactive diagram</a></p>{{end}}
    <hr>
    <p><small>This report was generated automatically by the Slack Mention Map bot.</small></p>
</body>
</html>
`

var emailHTML = template.Must(template.New("email").Parse(emailTemplate))

func buildEmailHTML(report *models.Report) (string, error) {
	var buf bytes.Buffer
	if err := emailHTML.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildEmailText(report *models.Report) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Mention map for #%s - last %d days\n", report.ChannelName, report.Days))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")))

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("Messages analyzed: %d\n", report.TotalMessages))
	text.WriteString(fmt.Sprintf("Active members: %d\n", report.TotalSenders))

	if len(report.TopPairs) > 0 {
		text.WriteString("\nMOST FREQUENT MENTIONS\n")
		text.WriteString("======================\n")
		for i, p := range report.TopPairs {
			text.WriteString(fmt.Sprintf("%d. %s -> %s (%d)\n", i+1, p.Sender, p.Receiver, p.Count))
		}
	}

	if len(report.TopSenders) > 0 {
		text.WriteString("\nMOST ACTIVE MEMBERS\n")
		text.WriteString("===================\n")
		for i, s := range report.TopSenders {
			text.WriteString(fmt.Sprintf("%d. %s (%d)\n", i+1, s.Sender, s.Count))
		}
	}

	if report.URL != "" {
		text.WriteString(fmt.Sprintf("\nInteractive diagram: %s\n", report.URL))
	}

	text.WriteString("\n---\nThis report was generated automatically by the Slack Mention Map bot.\n")

	return text.String()
}
