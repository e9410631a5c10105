// Package browser provides shared test utilities for Playwright browser tests.
// All browser test files use BrowserTestEnv via SetupBrowserTestEnv(t), which
// serves a fixture landing page from an httptest server.
package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/lpcheck/internal/pwdriver"
	"github.com/kuitang/lpcheck/internal/scenario"
)

const (
	// CODING AGENT RULE: Always use these timeout constants for browser tests.
	// Never introduce a larger timeout value anywhere in tests/browser.
	browserMaxTimeoutMS = 5000
	browserMaxTimeout   = 5 * time.Second
)

// Site selects which version of the fixture landing page is served.
type Site int

const (
	// HealthySite satisfies every landing scenario.
	HealthySite Site = iota
	// BrokenSite points Services at the wrong anchor and drops the hero CTA.
	BrokenSite
)

var (
	browserMu     sync.Mutex
	sharedPW      *playwright.Playwright
	sharedBrowser playwright.Browser
)

// BrowserTestEnv is one fixture site plus access to the shared browser.
type BrowserTestEnv struct {
	Server  *httptest.Server
	BaseURL string

	browser playwright.Browser
}

// SetupBrowserTestEnv starts the fixture site. The server is closed when the
// test completes.
func SetupBrowserTestEnv(t *testing.T, site Site) *BrowserTestEnv {
	t.Helper()

	server := httptest.NewServer(fixtureHandler(site))
	t.Cleanup(server.Close)
	return &BrowserTestEnv{Server: server, BaseURL: server.URL}
}

// closeSharedBrowser stops the browser started by InitBrowser.
func closeSharedBrowser() {
	browserMu.Lock()
	defer browserMu.Unlock()
	if sharedBrowser != nil {
		_ = sharedBrowser.Close()
		sharedBrowser = nil
	}
	if sharedPW != nil {
		_ = sharedPW.Stop()
		sharedPW = nil
	}
}

// =============================================================================
// Browser lifecycle helpers
// =============================================================================

// InitBrowser initializes Playwright and launches Chromium once per test
// binary. Skips the test if not available.
func (env *BrowserTestEnv) InitBrowser(t *testing.T) {
	t.Helper()

	browserMu.Lock()
	defer browserMu.Unlock()

	if sharedBrowser == nil {
		pw, err := playwright.Run()
		if err != nil {
			t.Skip("Playwright not available:", err)
		}

		browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(true),
		})
		if err != nil {
			_ = pw.Stop()
			t.Skip("Could not launch browser:", err)
		}
		sharedPW = pw
		sharedBrowser = browser
	}
	env.browser = sharedBrowser
}

// NewContext creates a new browser context with default 5s timeouts.
func (env *BrowserTestEnv) NewContext(t *testing.T) playwright.BrowserContext {
	t.Helper()

	ctx, err := env.browser.NewContext()
	if err != nil {
		t.Fatalf("could not create browser context: %v", err)
	}
	ctx.SetDefaultTimeout(browserMaxTimeoutMS)
	ctx.SetDefaultNavigationTimeout(browserMaxTimeoutMS)
	return ctx
}

// NewSession opens a driver session in its own browser context. The context
// is closed with the test.
func (env *BrowserTestEnv) NewSession(t *testing.T) *pwdriver.Session {
	t.Helper()

	bctx := env.NewContext(t)
	t.Cleanup(func() { _ = bctx.Close() })
	page, err := bctx.NewPage()
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	return pwdriver.NewSession(page, browserMaxTimeout)
}

// Sessions returns a SessionSource that gives every scenario its own browser
// context in the shared browser.
func (env *BrowserTestEnv) Sessions() scenario.SessionSource {
	return &contextSessions{browser: env.browser}
}

type contextSessions struct {
	browser playwright.Browser
}

func (s *contextSessions) NewSession(context.Context) (scenario.Session, error) {
	bctx, err := s.browser.NewContext()
	if err != nil {
		return nil, err
	}
	bctx.SetDefaultTimeout(browserMaxTimeoutMS)
	bctx.SetDefaultNavigationTimeout(browserMaxTimeoutMS)
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, err
	}
	return &contextSession{Session: pwdriver.NewSession(page, browserMaxTimeout), bctx: bctx}, nil
}

// contextSession closes its browser context along with the page.
type contextSession struct {
	*pwdriver.Session
	bctx playwright.BrowserContext
}

func (s *contextSession) Close() error {
	return s.bctx.Close()
}

// =============================================================================
// Fixture landing page
// =============================================================================

const landingTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Acme Care</title>
    <style>
        section { min-height: 900px; }
    </style>
</head>
<body id="top">
    <!-- collapsed mobile menu -->
    <nav aria-label="Mobile" style="display: none">
        <a href="#top">Home</a>
        <a href="#about">About us</a>
        <a href="{{SERVICES}}">Services</a>
        <a href="/blog/">Blog</a>
        <a href="#contact">Contact us</a>
    </nav>
    <header>
        <nav aria-label="Main">
            <a href="#top">Home</a>
            <a href="#about">About us</a>
            <a href="{{SERVICES}}">Services</a>
            <a href="/blog/">Blog</a>
            <a href="#contact">Contact us</a>
            <a href="/login">Login</a>
            <a href="/signup">Sign up</a>
        </nav>
    </header>
    <main>
        <section>
            <h1>We Are Committed To People</h1>
            <p>Care that starts with listening.</p>
            {{CTA}}
        </section>
        <section id="about"><h2>Who we are</h2></section>
        <section id="services"><h2>What we do</h2></section>
        <section id="pricing"><h2>Plans</h2></section>
        <section id="contact"><h2>Say hello</h2></section>
    </main>
</body>
</html>
`

func destinationPage(title string) string {
	return `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>` + title + `</title></head>
<body><h1>` + title + `</h1><a href="/">Back</a></body>
</html>
`
}

func landingPage(site Site) string {
	services := "#services"
	cta := `<a href="/signup">Get Started Now</a>`
	if site == BrokenSite {
		services = "#pricing"
		cta = ""
	}
	page := strings.ReplaceAll(landingTemplate, "{{SERVICES}}", services)
	return strings.ReplaceAll(page, "{{CTA}}", cta)
}

func fixtureHandler(site Site) http.Handler {
	mux := http.NewServeMux()
	serve := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(body))
		}
	}
	mux.HandleFunc("GET /{$}", serve(landingPage(site)))
	mux.HandleFunc("GET /blog/", serve(destinationPage("Blog")))
	mux.HandleFunc("GET /login", serve(destinationPage("Login")))
	mux.HandleFunc("GET /signup", serve(destinationPage("Sign up")))
	return mux
}
