package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/gatherhall/server/internal/config"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

// Service renders and sends transactional email. All sends are best-effort:
// callers treat a returned error as log-and-continue, never as a reason to
// fail the operation that triggered the email.
type Service struct {
	config       config.EmailConfig
	resendClient *resend.Client
	templates    *template.Template
	logger       zerolog.Logger
}

// NewService creates an email service. When cfg.Enabled is false every send
// is logged and skipped.
func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	templates, err := template.New("email").Parse(templateSource)
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	s := &Service{
		config:    cfg,
		templates: templates,
		logger:    logger.With().Str("component", "email").Logger(),
	}
	if cfg.Enabled && cfg.ResendAPIKey != "" {
		s.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return s, nil
}

// RegistrationData fills the registration confirmation and cancellation
// templates.
type RegistrationData struct {
	EventName   string
	EventCode   string
	CurrentYear int
}

// RoleData fills the role change template.
type RoleData struct {
	NewRole     string
	CurrentYear int
}

// SendRegistrationConfirmed notifies a registrant their spot is confirmed.
func (s *Service) SendRegistrationConfirmed(ctx context.Context, to, eventName, eventCode string) error {
	data := RegistrationData{EventName: eventName, EventCode: eventCode, CurrentYear: time.Now().Year()}
	subject := fmt.Sprintf("You're registered for %s", eventName)
	return s.sendTemplate(ctx, to, subject, "registration_confirmed", data)
}

// SendRegistrationCancelled notifies a registrant their registration was
// cancelled.
func (s *Service) SendRegistrationCancelled(ctx context.Context, to, eventName, eventCode string) error {
	data := RegistrationData{EventName: eventName, EventCode: eventCode, CurrentYear: time.Now().Year()}
	subject := fmt.Sprintf("Your registration for %s was cancelled", eventName)
	return s.sendTemplate(ctx, to, subject, "registration_cancelled", data)
}

// SendRoleChanged notifies a user their platform role changed.
func (s *Service) SendRoleChanged(ctx context.Context, to, newRole string) error {
	data := RoleData{NewRole: newRole, CurrentYear: time.Now().Year()}
	return s.sendTemplate(ctx, to, "Your Gatherhall role has changed", "role_changed", data)
}

func (s *Service) sendTemplate(ctx context.Context, to, subject, name string, data any) error {
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}

	if !s.config.Enabled {
		s.logger.Info().
			Str("to", to).
			Str("template", name).
			Msg("email service disabled, skipping send")
		return nil
	}

	htmlBody, err := s.renderTemplate(name, data)
	if err != nil {
		return fmt.Errorf("render %s template: %w", name, err)
	}
	return s.sendViaResend(ctx, to, subject, htmlBody)
}

func (s *Service) renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// validateEmailAddress validates format and rejects header injection attempts.
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}
	return nil
}

const templateSource = `
{{define "registration_confirmed"}}<html><body>
<h2>See you there!</h2>
<p>Your registration for <strong>{{.EventName}}</strong> is confirmed.</p>
<p>Event code: <code>{{.EventCode}}</code></p>
<p>&copy; {{.CurrentYear}} Gatherhall</p>
</body></html>{{end}}

{{define "registration_cancelled"}}<html><body>
<h2>Registration cancelled</h2>
<p>Your registration for <strong>{{.EventName}}</strong> has been cancelled.</p>
<p>If there is still room, you can register again with code <code>{{.EventCode}}</code>.</p>
<p>&copy; {{.CurrentYear}} Gatherhall</p>
</body></html>{{end}}

{{define "role_changed"}}<html><body>
<h2>Your role has changed</h2>
<p>An administrator set your Gatherhall role to <strong>{{.NewRole}}</strong>.</p>
<p>&copy; {{.CurrentYear}} Gatherhall</p>
</body></html>{{end}}
`
