package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// LocalLauncher starts one Chrome process per context on this machine,
// each with its own profile directory
type LocalLauncher struct {
	ChromePath string
	Headless   bool
	logger     *zap.Logger
}

var _ Launcher = (*LocalLauncher)(nil)

// NewLocalLauncher creates a launcher for local Chrome processes
func NewLocalLauncher(chromePath string, headless bool, logger *zap.Logger) *LocalLauncher {
	return &LocalLauncher{ChromePath: chromePath, Headless: headless, logger: logger}
}

// AllocatorOptions returns the Chrome flags for one context
func (l *LocalLauncher) AllocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.Flag("disable-gpu", l.Headless),
		chromedp.UserDataDir(opts.UserDataDir),
		chromedp.UserAgent(ua),
	)
	if path := strings.TrimSpace(l.ChromePath); path != "" {
		out = append(out, chromedp.ExecPath(path))
	}
	if opts.Proxy != "" {
		out = append(out, chromedp.ProxyServer(opts.Proxy))
	}
	if opts.Bounds.Width > 0 && opts.Bounds.Height > 0 {
		out = append(out, chromedp.WindowSize(opts.Bounds.Width, opts.Bounds.Height))
	}
	return out
}

// Launch starts Chrome on the partition directory and opens its first tab
func (l *LocalLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	if opts.UserDataDir == "" {
		return nil, fmt.Errorf("local backend requires a partition directory")
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.AllocatorOptions(opts)...)

	t, err := openTab(allocCtx, opts, func() error {
		allocCancel()
		return nil
	}, l.logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Close is a no-op; each browser owns its process
func (l *LocalLauncher) Close() error { return nil }
