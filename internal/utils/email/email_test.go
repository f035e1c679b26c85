package email

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

func newTestSender() (*Sender, *[]*email.Email) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := NewSender(&config.Config{SenderEmail: "cards@bank.test", OpsEmail: "ops@bank.test"}, logger)
	sent := []*email.Email{}
	s.send = func(e *email.Email) error {
		sent = append(sent, e)
		return nil
	}
	return s, &sent
}

func TestBlockRequested(t *testing.T) {
	s, sent := newTestSender()
	err := s.BlockRequested(context.Background(), BlockRequest{
		CardID:       12,
		MaskedNumber: "**** **** **** 3456",
		Username:     "alice",
		RequestedAt:  time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected one message, got %d", len(*sent))
	}
	msg := (*sent)[0]
	if msg.To[0] != "ops@bank.test" || msg.From != "cards@bank.test" {
		t.Fatalf("unexpected envelope %v -> %v", msg.From, msg.To)
	}
	body := string(msg.Text)
	if !strings.Contains(body, "**** **** **** 3456") || !strings.Contains(body, "alice") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestPendingBlockDigestListsEveryCard(t *testing.T) {
	s, sent := newTestSender()
	err := s.PendingBlockDigest(context.Background(), []BlockRequest{
		{CardID: 1, MaskedNumber: "**** **** **** 0001", Username: "alice"},
		{CardID: 2, MaskedNumber: "**** **** **** 0002", Username: "bob"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := (*sent)[0]
	if msg.Subject != "Pending Block Requests (2)" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{"0001", "0002", "bob"} {
		if !strings.Contains(string(msg.Text), want) {
			t.Fatalf("digest is missing %q", want)
		}
	}
}

func TestSendFailureIsReported(t *testing.T) {
	s, _ := newTestSender()
	s.send = func(*email.Email) error { return errors.New("connection refused") }
	if err := s.BlockRequested(context.Background(), BlockRequest{CardID: 1}); err == nil {
		t.Fatalf("expected error")
	}
}
