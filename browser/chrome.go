package browser

import (
	"context"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/sirupsen/logrus"
)

// ChromeLauncher spawns headless Chrome processes via chromedp. One launcher
// is shared process-wide; every Launch call allocates a dedicated browser so
// that linking attempts cannot see each other's cookies.
type ChromeLauncher struct {
	Headless  bool
	UserAgent string
	Logger    *logrus.Logger
}

func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !l.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	// force the browser process to start now so Launch fails fast when
	// chrome is missing instead of on the first navigation
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, err
	}
	c := &chromeSession{ctx: tabCtx, cancel: func() {
		tabCancel()
		allocCancel()
	}}
	if l.Logger != nil {
		l.Logger.WithField("headless", l.Headless).Debug("launched browser")
	}
	return c, nil
}

// chromeSession is one Chrome tab. The mutex serializes all driving of the
// tab; chromedp contexts are not safe for concurrent Run calls.
type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	once   sync.Once
}

// run executes actions against the tab while honoring the caller's deadline
// and cancellation.
func (c *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var dlCancel context.CancelFunc
		runCtx, dlCancel = context.WithDeadline(runCtx, dl)
		defer dlCancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (c *chromeSession) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *chromeSession) Location(ctx context.Context) (string, error) {
	var url string
	err := c.run(ctx, chromedp.Location(&url))
	return url, err
}

func (c *chromeSession) WaitVisible(ctx context.Context, sel string) error {
	return c.run(ctx, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

func (c *chromeSession) Click(ctx context.Context, sel string) error {
	return c.run(ctx, chromedp.Click(sel, chromedp.ByQuery))
}

func (c *chromeSession) SendKeys(ctx context.Context, sel, value string) error {
	return c.run(ctx, chromedp.SendKeys(sel, value, chromedp.ByQuery))
}

func (c *chromeSession) Text(ctx context.Context, sel string) (string, error) {
	var out string
	err := c.run(ctx, chromedp.Text(sel, &out, chromedp.ByQuery))
	return out, err
}

func (c *chromeSession) OuterHTML(ctx context.Context, sel string) (string, error) {
	var out string
	err := c.run(ctx, chromedp.OuterHTML(sel, &out, chromedp.ByQuery))
	return out, err
}

func (c *chromeSession) Escape(ctx context.Context) error {
	return c.run(ctx, chromedp.KeyEvent(kb.Escape))
}

// NewTab opens another tab in the same browser process. The tab shares the
// browser's cookie jar, which is what the fresh-tab landing strategy relies
// on. Closing the parent closes every tab spawned from it.
func (c *chromeSession) NewTab() (Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, err
	}
	return &chromeSession{ctx: tabCtx, cancel: tabCancel}, nil
}

func (c *chromeSession) Close() error {
	c.once.Do(c.cancel)
	return nil
}
