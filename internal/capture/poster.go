// Package capture renders printable check-in posters by screenshotting
// the public check-in page in headless Chromium.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	appLog "rollcall/internal/log"
)

// Poster viewport defaults: A4 portrait at 96 dpi.
const (
	DefaultWidth   = 794
	DefaultHeight  = 1123
	DefaultTimeout = 30 * time.Second
	DefaultTTL     = 10 * time.Minute
)

// ErrDisabled is returned when no frontend URL is configured.
var ErrDisabled = errors.New("capture: poster rendering is disabled")

// Options configures a Posters renderer.
type Options struct {
	// FrontendURL is the base URL of the RollCall web client.
	FrontendURL string
	Width       int
	Height      int
	Timeout     time.Duration
	// ReadySelector is waited for before the screenshot is taken.
	ReadySelector string
	// TTL is how long a rendered poster is reused.
	TTL time.Duration
}

type cached struct {
	png []byte
	at  time.Time
}

type screenshotFunc func(ctx context.Context, pageURL string, opts Options) ([]byte, error)

// Posters renders and caches check-in posters.
type Posters struct {
	opts Options
	shot screenshotFunc
	now  func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

// NewPosters returns a renderer for opts, filling in defaults.
func NewPosters(opts Options) *Posters {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ReadySelector == "" {
		opts.ReadySelector = "body"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Posters{
		opts:  opts,
		shot:  chromiumScreenshot,
		now:   time.Now,
		cache: make(map[string]cached),
	}
}

// CheckInURL is the public check-in page of an event.
func (p *Posters) CheckInURL(slug string) (string, error) {
	if p.opts.FrontendURL == "" {
		return "", ErrDisabled
	}
	base, err := url.Parse(strings.TrimRight(p.opts.FrontendURL, "/"))
	if err != nil {
		return "", fmt.Errorf("capture: frontend url: %w", err)
	}
	return base.JoinPath("events", "check-in", slug).String(), nil
}

// Poster returns a PNG of the check-in page for slug.
func (p *Posters) Poster(ctx context.Context, slug string) ([]byte, error) {
	pageURL, err := p.CheckInURL(slug)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	c, ok := p.cache[pageURL]
	p.mu.Unlock()
	if ok && p.now().Sub(c.at) < p.opts.TTL {
		return c.png, nil
	}

	start := p.now()
	png, err := p.shot(ctx, pageURL, p.opts)
	if err != nil {
		return nil, err
	}
	appLog.Info("poster rendered", "slug", slug, "bytes", len(png), "took", p.now().Sub(start))

	p.mu.Lock()
	p.cache[pageURL] = cached{png: png, at: p.now()}
	p.mu.Unlock()
	return png, nil
}

func chromiumScreenshot(parent context.Context, pageURL string, opts Options) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(parent)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, opts.Timeout)
	defer cancelTimeout()

	var png []byte
	err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(opts.ReadySelector, chromedp.ByQuery),
		// Let the QR code finish painting.
		chromedp.Sleep(500*time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return png, nil
}
