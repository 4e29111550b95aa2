package search

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserSearcher loads the results page in headless Chrome, waits a fixed
// settle delay for scripts to render, then reads the body text.
type BrowserSearcher struct {
	endpoint string
	settle   time.Duration
	timeout  time.Duration
	opts     []chromedp.ExecAllocatorOption
}

func NewBrowserSearcher(endpoint string, settle, timeout time.Duration, execPath string) *BrowserSearcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	return &BrowserSearcher{
		endpoint: endpoint,
		settle:   settle,
		timeout:  timeout,
		opts:     opts,
	}
}

func (s *BrowserSearcher) Search(ctx context.Context, query string) (string, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, s.opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, s.timeout+s.settle)
	defer cancel()

	var text string
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(s.endpoint+url.QueryEscape(query)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.settle),
		chromedp.Text("body", &text, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("browser search failed: %w", err)
	}
	return collapse(text), nil
}
