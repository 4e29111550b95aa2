// Package mail implements the send-email tool.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/recall/internal/command"
	"github.com/felixgeelhaar/recall/internal/observe"
)

const Tag = "sendmail"

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// Confirmer asks the operator to approve a draft before it goes out.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// Handler sends one email per invocation.
type Handler struct {
	sender  Sender
	confirm Confirmer // nil sends without asking
	from    string
	now     func() time.Time
	obs     *observe.Observer
}

func NewHandler(sender Sender, confirm Confirmer, from string, obs *observe.Observer) *Handler {
	return &Handler{sender: sender, confirm: confirm, from: from, now: time.Now, obs: obs}
}

func (h *Handler) Spec() command.Spec {
	return command.Spec{
		Tag:         Tag,
		Description: "Send an email.",
		Required: [][]string{
			{"to", "recipient"},
			{"subject"},
			{"body", "content", command.BodyArg},
		},
	}
}

func (h *Handler) Handle(ctx context.Context, inv *command.Invocation) (string, error) {
	d := Draft{
		From:    h.from,
		To:      splitRecipients(inv.Value("to", "recipient")),
		Subject: inv.Value("subject"),
		Body:    inv.Value("body", "content", command.BodyArg),
	}
	if d.From == "" {
		return "", fmt.Errorf("sendmail: no sender address configured")
	}

	if h.confirm != nil {
		ok, err := h.confirm.Confirm(ctx, fmt.Sprintf("Send this email?\nTo: %s\nSubject: %s\n\n%s\n\n[y/N]",
			strings.Join(d.To, ", "), d.Subject, d.Body))
		if err != nil {
			return "", fmt.Errorf("confirm email: %w", err)
		}
		if !ok {
			h.obs.Log().Info().Str("subject", d.Subject).Msg("email cancelled by operator")
			return fmt.Sprintf("The email to %s was cancelled by operator.", strings.Join(d.To, ", ")), nil
		}
	}

	msg, err := Compose(d, h.now())
	if err != nil {
		return "", err
	}
	if err := h.sender.Send(ctx, d.From, d.To, msg); err != nil {
		return "", err
	}
	h.obs.Log().Info().Int("recipients", len(d.To)).Str("subject", d.Subject).Msg("email sent")
	return fmt.Sprintf("Email sent to %s with subject %q.", strings.Join(d.To, ", "), d.Subject), nil
}

func splitRecipients(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
