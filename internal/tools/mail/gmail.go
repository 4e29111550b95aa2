package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSender posts the composed message through the Gmail API as the
// authorized user.
type GmailSender struct {
	svc *gmail.Service
}

func NewGmailSender(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*GmailSender, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &GmailSender{svc: svc}, nil
}

func (g *GmailSender) Send(ctx context.Context, _ string, _ []string, msg []byte) error {
	raw := base64.URLEncoding.EncodeToString(msg)
	if _, err := g.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}
