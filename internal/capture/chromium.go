// Package capture screenshots the rendered timeline page with headless
// Chromium.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"tztimeline/internal/config"
	appLog "tztimeline/internal/log"
)

// Default capture parameters; they match the /timeline layout.
const (
	DefaultWidth      = 1280
	DefaultHeight     = 720
	DefaultTimeoutSec = 30

	// ReadySelector is present once the page has laid out every bar.
	ReadySelector = `[data-ready="true"]`
)

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/timeline".
	URL string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture operation.
	Timeout time.Duration
}

// Capturer takes screenshots. The web layer depends on this so tests can
// substitute a fake.
type Capturer interface {
	CapturePNG(ctx context.Context, opts Options) ([]byte, error)
}

// Chromium is the chromedp-backed Capturer.
type Chromium struct{}

func (o Options) normalized() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return o
}

// CapturePNG navigates to opts.URL, waits for ReadySelector and returns a
// full-page PNG.
func (Chromium) CapturePNG(parentCtx context.Context, opts Options) ([]byte, error) {
	if opts.URL == "" {
		return nil, errors.New("capture: URL is required")
	}
	opts = opts.normalized()

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	}

	start := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	appLog.Debug("timeline captured", "url", redacted(opts.URL), "bytes", len(png), "elapsed", time.Since(start))
	return png, nil
}

// redacted masks any userinfo in raw.
func redacted(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable url)"
	}
	return u.Redacted()
}

// WriteFile captures with c and stores the PNG atomically at path.
func WriteFile(ctx context.Context, c Capturer, opts Options, path string) error {
	if path == "" {
		return errors.New("capture: output path is required")
	}
	png, err := c.CapturePNG(ctx, opts)
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(path, png); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return nil
}
