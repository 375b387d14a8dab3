package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/starford/scenesync/internal/models"
)

// ErrChromeMissing is returned when no headless browser can be found.
var ErrChromeMissing = errors.New("thumbnail: chromium not installed")

// ChromeRenderer rasterizes the SVG form of a scene in headless Chrome.
type ChromeRenderer struct {
	Timeout time.Duration
}

// Available reports whether a chromium binary is on PATH.
func (ChromeRenderer) Available() bool {
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

// Render implements Renderer.
func (r ChromeRenderer) Render(ctx context.Context, content models.Content, opts Options) ([]byte, error) {
	if !r.Available() {
		return nil, ErrChromeMissing
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	doc, w, h := SVG(content, opts)
	dataURL := "data:image/svg+xml;charset=utf-8," + url.PathEscape(doc)

	var shot []byte
	err := chromedp.Run(taskCtx,
		emulation.SetDeviceMetricsOverride(int64(w), int64(h), 1, false),
		chromedp.Navigate(dataURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			shot, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithClip(&page.Viewport{Width: float64(w), Height: float64(h), Scale: 1}).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: chrome render: %w", err)
	}
	return shot, nil
}
