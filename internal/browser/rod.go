// rod.go — Screenshot capture over the Chrome DevTools Protocol.
// Used when the browser runs with --remote-debugging-port and capture.debugger_url
// points at it. Pages are matched to tabs by the URL the extension last reported.
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

var (
	// ErrUnknownTab means no URL has been reported for the tab yet.
	ErrUnknownTab = errors.New("no url known for tab")
	// ErrPageNotFound means no DevTools target shows the tab's URL.
	ErrPageNotFound = errors.New("no page matches tab url")
	// ErrPageHidden means the matching page is not visible.
	ErrPageHidden = errors.New("page is not visible")
)

// URLResolver maps a tab to its current URL.
type URLResolver interface {
	URL(tabID int) (string, bool)
}

// RodCapturer implements scheduler.Capturer against a DevTools endpoint.
type RodCapturer struct {
	mu          sync.Mutex
	debuggerURL string
	browser     *rod.Browser
	disconnect  context.CancelFunc
	tabs        URLResolver
	logger      *zap.Logger
}

// NewRodCapturer creates a capturer that connects lazily to debuggerURL, which may
// be an http:// discovery address or a ws:// browser endpoint.
func NewRodCapturer(debuggerURL string, tabs URLResolver, logger *zap.Logger) *RodCapturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodCapturer{debuggerURL: debuggerURL, tabs: tabs, logger: logger.Named("rod")}
}

func (r *RodCapturer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	controlURL := r.debuggerURL
	if !strings.HasPrefix(controlURL, "ws://") && !strings.HasPrefix(controlURL, "wss://") {
		resolved, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, fmt.Errorf("resolve debugger url: %w", err)
		}
		controlURL = resolved
	}

	connCtx, cancel := context.WithCancel(context.Background())
	b := rod.New().ControlURL(controlURL).Context(connCtx)
	if err := b.Connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	r.browser = b
	r.disconnect = cancel
	r.logger.Info("connected to chrome devtools", zap.String("url", controlURL))
	return b, nil
}

// reset drops a broken connection so the next capture reconnects.
func (r *RodCapturer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked()
}

// dropLocked cancels the connection context. Browser.Close is never called: it
// would shut down the user's browser.
func (r *RodCapturer) dropLocked() {
	if r.disconnect != nil {
		r.disconnect()
		r.disconnect = nil
	}
	r.browser = nil
}

// Capture screenshots the page showing tabID's URL and returns a PNG data URL.
func (r *RodCapturer) Capture(ctx context.Context, tabID int) (string, error) {
	want, ok := r.tabs.URL(tabID)
	if !ok {
		return "", ErrUnknownTab
	}

	b, err := r.connect()
	if err != nil {
		return "", err
	}

	page, err := findPage(b.Context(ctx), want)
	if err != nil {
		if !errors.Is(err, ErrPageNotFound) {
			r.reset()
		}
		return "", err
	}
	page = page.Context(ctx)

	res, err := page.Eval(`() => document.visibilityState === 'visible'`)
	if err != nil {
		return "", fmt.Errorf("check visibility: %w", err)
	}
	if !res.Value.Bool() {
		return "", ErrPageHidden
	}

	png, err := page.Screenshot(false, &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng})
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func findPage(b *rod.Browser, url string) (*rod.Page, error) {
	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if info.URL == url {
			return p, nil
		}
	}
	return nil, ErrPageNotFound
}

// Close disconnects from the browser. The browser itself keeps running.
func (r *RodCapturer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked()
	return nil
}
