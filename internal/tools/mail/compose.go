package mail

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"
)

// Draft is one outgoing message. Body is markdown.
type Draft struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Compose renders d as an RFC 5322 message with text/plain and text/html
// alternatives.
func Compose(d Draft, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(d.Subject)

	from, err := mail.ParseAddress(d.From)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", d.From, err)
	}
	h.SetAddressList("From", []*mail.Address{from})

	to := make([]*mail.Address, 0, len(d.To))
	for _, a := range d.To {
		addr, err := mail.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("parse recipient %q: %w", a, err)
		}
		to = append(to, addr)
	}
	h.SetAddressList("To", to)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}

	html, err := toHTML(d.Body)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	parts := []struct{ contentType, text string }{
		{"text/plain; charset=utf-8", toPlain(d.Body)},
		{"text/html; charset=utf-8", html},
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.Set("Content-Type", p.contentType)
		pw, err := tw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("create %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(pw, p.text); err != nil {
			return nil, err
		}
		if err := pw.Close(); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"></head><body>\n" + buf.String() + "</body></html>", nil
}

var (
	mdBold    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdLink    = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdCode    = regexp.MustCompile("`([^`]+)`")
)

func toPlain(md string) string {
	s := mdLink.ReplaceAllString(md, "$1 ($2)")
	s = mdBold.ReplaceAllString(s, "$1")
	s = mdCode.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// bareAddress strips a display name: "Ann <a@b.c>" -> "a@b.c".
func bareAddress(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ">") {
		if i := strings.LastIndexByte(s, '<'); i >= 0 {
			return s[i+1 : len(s)-1]
		}
	}
	return s
}
