package web

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/sync/semaphore"
)

// Browser manages one headless Chrome instance shared by search and fetch.
// Page sessions are bounded by a semaphore so a wide fan-out of jurisdiction
// tasks cannot open an unbounded number of tabs.
type Browser struct {
	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
	tabs       *semaphore.Weighted
}

// NewBrowser returns an unstarted manager allowing maxConcurrent pages.
func NewBrowser(maxConcurrent int) *Browser {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Browser{tabs: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Start launches Chrome and connects. Implements the service resource
// contract: the retrieval services acquire the browser at scope entry.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return nil
	}

	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return fmt.Errorf("failed to launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}

	b.browser = browser
	b.controlURL = controlURL
	return nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

// WithPage opens a page on the managed browser, bounded by the tab
// semaphore, and closes it when fn returns.
func (b *Browser) WithPage(ctx context.Context, url string, fn func(page *rod.Page) error) error {
	if err := b.tabs.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.tabs.Release(1)

	b.mu.Lock()
	browser := b.browser
	b.mu.Unlock()
	if browser == nil {
		return fmt.Errorf("browser is not started")
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return fmt.Errorf("failed to open page %q: %w", url, err)
	}
	defer page.Close()

	if err := page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("failed to load %q: %w", url, err)
	}
	return fn(page.Context(ctx))
}

// HTML fetches a page's rendered HTML through the browser, for sites that
// assemble their content with JavaScript.
func (b *Browser) HTML(ctx context.Context, url string) (string, error) {
	var html string
	err := b.WithPage(ctx, url, func(page *rod.Page) error {
		var err error
		html, err = page.HTML()
		return err
	})
	return html, err
}
