// Package pwdriver implements the scenario browser boundary on Playwright.
//
// A Launcher owns one Playwright process and one browser. Every scenario gets
// its own browser context from NewSession, so sessions share no cookies,
// storage or pages.
package pwdriver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/lpcheck/internal/errs"
	"github.com/kuitang/lpcheck/internal/logutil"
	"github.com/kuitang/lpcheck/internal/obs"
	"github.com/kuitang/lpcheck/internal/scenario"
)

const (
	// DefaultTimeout caps every single browser operation.
	DefaultTimeout = 5 * time.Second

	snapshotMaxChars = 500
)

// Config selects and configures the browser.
type Config struct {
	// Browser is chromium, firefox or webkit. Empty means chromium.
	Browser  string
	Headless bool
	// Timeout caps navigation and interaction. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Launcher starts sessions in a single shared browser.
type Launcher struct {
	cfg     Config
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// Launch starts Playwright and the configured browser.
func Launch(cfg Config) (*Launcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.UnexpectedInteractionFailure, fmt.Sprintf("could not start playwright: %v", err), err)
	}

	browserType, err := selectBrowser(pw, cfg.Browser)
	if err != nil {
		_ = pw.Stop()
		return nil, err
	}

	browser, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.UnexpectedInteractionFailure, fmt.Sprintf("could not launch %s: %v", browserName(cfg.Browser), err), err)
	}

	obs.Pkg("pwdriver").Info("browser launched", "browser", browserName(cfg.Browser), "headless", cfg.Headless)
	return &Launcher{cfg: cfg, pw: pw, browser: browser}, nil
}

// NewSession opens an isolated browser context with one page.
func (l *Launcher) NewSession(ctx context.Context) (scenario.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Canceled, "session not opened", err)
	}

	l.mu.Lock()
	browser := l.browser
	l.mu.Unlock()
	if browser == nil {
		return nil, errs.New(errs.InvalidArgument, "launcher is closed")
	}

	bctx, err := browser.NewContext()
	if err != nil {
		return nil, errs.Wrap(errs.UnexpectedInteractionFailure, fmt.Sprintf("could not create browser context: %v", err), err)
	}
	ms := float64(l.cfg.Timeout.Milliseconds())
	bctx.SetDefaultTimeout(ms)
	bctx.SetDefaultNavigationTimeout(ms)

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, errs.Wrap(errs.UnexpectedInteractionFailure, fmt.Sprintf("could not create page: %v", err), err)
	}

	s := NewSession(page, l.cfg.Timeout)
	s.bctx = bctx
	return s, nil
}

// Close shuts down the browser and the Playwright driver.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var problems []string
	if l.browser != nil {
		if err := l.browser.Close(); err != nil {
			problems = append(problems, err.Error())
		}
		l.browser = nil
	}
	if l.pw != nil {
		if err := l.pw.Stop(); err != nil {
			problems = append(problems, err.Error())
		}
		l.pw = nil
	}
	if len(problems) > 0 {
		return errs.New(errs.Internal, "closing browser: "+strings.Join(problems, "; "))
	}
	return nil
}

func selectBrowser(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch browserName(name) {
	case "chromium":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown browser %q", name))
	}
}

func browserName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "chromium"
	}
	return name
}

// Session is one page in its own browser context.
type Session struct {
	page    playwright.Page
	bctx    playwright.BrowserContext
	timeout time.Duration
}

// NewSession wraps an existing page. Closing the returned session closes the
// page, and its browser context when the session created it.
func NewSession(page playwright.Page, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Session{page: page, timeout: timeout}
}

// Navigate loads url and waits for DOMContentLoaded.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Canceled, "navigation canceled", err)
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(timeoutMS(ctx, s.timeout)),
	})
	if err != nil {
		return errs.Wrap(errs.UnexpectedInteractionFailure,
			fmt.Sprintf("failed to navigate to %s: %v", logutil.RedactURLForLog(url), err), err)
	}
	return nil
}

// CurrentURL returns the page URL.
func (s *Session) CurrentURL() string {
	return s.page.URL()
}

// Resolve maps a descriptor onto a Playwright role locator.
func (s *Session) Resolve(d scenario.Descriptor) scenario.Elements {
	opts := playwright.PageGetByRoleOptions{}
	if d.Pattern != nil {
		opts.Name = d.Pattern
	} else {
		opts.Name = d.Name
		opts.Exact = playwright.Bool(true)
	}
	return &elements{
		d:       d,
		locator: s.page.GetByRole(playwright.AriaRole(d.Role), opts),
		timeout: s.timeout,
	}
}

// Snapshot describes the page for failure diagnostics.
func (s *Session) Snapshot(context.Context) (scenario.Snapshot, error) {
	snap := scenario.Snapshot{URL: s.page.URL()}
	title, err := s.page.Title()
	if err != nil {
		return snap, err
	}
	snap.Title = title
	content, err := s.page.Content()
	if err != nil {
		return snap, err
	}
	snap.Text = logutil.PageTextForLog(content, snapshotMaxChars)
	return snap, nil
}

// Close releases the page and, if owned, its browser context.
func (s *Session) Close() error {
	if s.bctx != nil {
		return s.bctx.Close()
	}
	return s.page.Close()
}

// elements is re-evaluated on every call: Playwright locators are queries,
// not handles.
type elements struct {
	d       scenario.Descriptor
	locator playwright.Locator
	timeout time.Duration
}

func (e *elements) Visible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, errs.Wrap(errs.Canceled, "visibility check canceled", err)
	}
	_, ok, err := e.firstVisible()
	return ok, err
}

func (e *elements) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Canceled, "click canceled", err)
	}
	target, ok, err := e.firstVisible()
	if err != nil {
		return errs.Wrap(errs.UnexpectedInteractionFailure, fmt.Sprintf("click %s: %v", e.d, err), err)
	}
	if !ok {
		target = e.locator.First()
	}
	err = target.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(timeoutMS(ctx, e.timeout)),
	})
	if err != nil {
		return errs.Wrap(errs.UnexpectedInteractionFailure, fmt.Sprintf("click %s: %v", e.d, err), err)
	}
	return nil
}

func (e *elements) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(errs.Canceled, "text read canceled", err)
	}
	target, ok, err := e.firstVisible()
	if err != nil {
		return "", err
	}
	if !ok {
		target = e.locator.First()
	}
	text, err := target.TextContent(playwright.LocatorTextContentOptions{
		Timeout: playwright.Float(timeoutMS(ctx, e.timeout)),
	})
	if err != nil {
		return "", errs.Wrap(errs.UnexpectedInteractionFailure, fmt.Sprintf("read text of %s: %v", e.d, err), err)
	}
	return strings.TrimSpace(text), nil
}

// firstVisible returns the first visible match. Role queries may match more
// than one element (a desktop and a mobile nav, say), and only one needs to
// be visible.
func (e *elements) firstVisible() (playwright.Locator, bool, error) {
	count, err := e.locator.Count()
	if err != nil {
		return nil, false, err
	}
	for i := 0; i < count; i++ {
		nth := e.locator.Nth(i)
		visible, err := nth.IsVisible()
		if err != nil {
			return nil, false, err
		}
		if visible {
			return nth, true, nil
		}
	}
	return nil, false, nil
}

// timeoutMS is the smaller of limit and the time left before ctx's deadline,
// in Playwright's milliseconds.
func timeoutMS(ctx context.Context, limit time.Duration) float64 {
	d := limit
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return float64(d.Milliseconds())
}
