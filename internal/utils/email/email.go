package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// BlockRequest describes a card a user asked to have blocked
type BlockRequest struct {
	CardID       int64
	MaskedNumber string
	Username     string
	RequestedAt  time.Time
}

// sendFunc delivers a prepared message; replaced in tests
type sendFunc func(e *email.Email) error

// Sender handles sending emails via SMTP to the operations mailbox
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   sendFunc
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	s := &Sender{cfg: cfg, logger: logger}
	s.send = s.smtpSend
	return s
}

func (s *Sender) smtpSend(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	return e.Send(addr, auth)
}

func (s *Sender) newMessage(subject, body string) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.OpsEmail}
	e.Subject = subject
	e.Text = []byte(body + "\nBest regards,\nBank Cards Service")
	return e
}

// BlockRequested tells operations that a user asked for a card to be blocked
func (s *Sender) BlockRequested(_ context.Context, req BlockRequest) error {
	body := fmt.Sprintf(
		"User %s requested blocking of card %s (id %d) at %s.\n"+
			"The card stays in REQUESTED_BLOCK until an administrator blocks it.\n",
		req.Username, req.MaskedNumber, req.CardID, req.RequestedAt.Format("2006-01-02 15:04:05"),
	)
	e := s.newMessage("Card Block Request", body)
	if err := s.send(e); err != nil {
		s.logger.Errorf("Failed to send block request notice for card %d: %v", req.CardID, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Infof("Email sent to %s: %s", s.cfg.OpsEmail, e.Subject)
	return nil
}

// PendingBlockDigest summarises every card still waiting for an administrator
func (s *Sender) PendingBlockDigest(_ context.Context, pending []BlockRequest) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d card(s) are waiting to be blocked:\n\n", len(pending))
	for _, p := range pending {
		fmt.Fprintf(&b, "  - card %d %s (owner %s)\n", p.CardID, p.MaskedNumber, p.Username)
	}
	e := s.newMessage(fmt.Sprintf("Pending Block Requests (%d)", len(pending)), b.String())
	if err := s.send(e); err != nil {
		s.logger.Errorf("Failed to send pending block digest: %v", err)
		return fmt.Errorf("failed to send digest: %w", err)
	}
	s.logger.Infof("Email sent to %s: %s", s.cfg.OpsEmail, e.Subject)
	return nil
}
