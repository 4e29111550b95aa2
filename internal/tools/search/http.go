package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxBodyBytes = 4 << 20

// HTTPSearcher fetches the results page with a plain GET and extracts its
// readable text.
type HTTPSearcher struct {
	client    *http.Client
	endpoint  string
	userAgent string
	settle    time.Duration
}

// NewHTTPSearcher queries endpoint+escaped(query), e.g.
// "https://www.google.com/search?q=".
func NewHTTPSearcher(endpoint, userAgent string, timeout time.Duration) *HTTPSearcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	}
	return &HTTPSearcher{
		client:    &http.Client{Timeout: timeout},
		endpoint:  endpoint,
		userAgent: userAgent,
	}
}

// SetSettle makes every search wait d after the response headers arrive
// before reading the page.
func (s *HTTPSearcher) SetSettle(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.client.Timeout += d - s.settle
	s.settle = d
}

func (s *HTTPSearcher) Search(ctx context.Context, query string) (string, error) {
	target := s.endpoint + url.QueryEscape(query)
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch results page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, resp.Status)
	}

	if s.settle > 0 {
		t := time.NewTimer(s.settle)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	return extract(body, parsed), nil
}

// extract returns the page's visible text unless trafilatura finds a main
// content block covering most of it, in which case that cleaner text wins.
func extract(body []byte, pageURL *url.URL) string {
	visible := visibleText(string(body))
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{OriginalURL: pageURL})
	if err != nil || result == nil {
		return visible
	}
	content := collapse(result.ContentText)
	if content == "" || 2*len(content) < len(visible) {
		return visible
	}
	if title := strings.TrimSpace(result.Metadata.Title); title != "" {
		content = title + "\n\n" + content
	}
	return content
}

var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
}

// visibleText returns the text of every rendered node.
func visibleText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return collapse(raw)
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipElements[n.DataAtom] {
				return
			}
			switch n.DataAtom {
			case atom.P, atom.Div, atom.Li, atom.Br, atom.H1, atom.H2, atom.H3, atom.Tr, atom.Section, atom.Article:
				b.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return collapse(b.String())
}
