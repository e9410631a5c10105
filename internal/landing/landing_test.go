package landing

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/lpcheck/internal/errs"
	"github.com/kuitang/lpcheck/internal/obs"
	"github.com/kuitang/lpcheck/internal/scenario"
)

// sitePage simulates the landing page and its destinations in memory.
type sitePage struct {
	mu       sync.Mutex
	url      string
	pages    map[string][]node
	navigate error
	closed   bool
}

type node struct {
	role    scenario.Role
	name    string
	href    string
	visible bool
}

func landingNodes() []node {
	return []node{
		{role: scenario.RoleHeading, name: "We are Committed To People", visible: true},
		{role: scenario.RoleLink, name: "Home", href: "#top", visible: true},
		{role: scenario.RoleLink, name: "About us", href: "#about", visible: true},
		{role: scenario.RoleLink, name: "Services", href: "#services", visible: true},
		{role: scenario.RoleLink, name: "Blog", href: "/blog/", visible: true},
		{role: scenario.RoleLink, name: "Contact us", href: "#contact", visible: true},
		{role: scenario.RoleLink, name: "Login", href: "/login", visible: true},
		{role: scenario.RoleLink, name: "Sign up", href: "/signup", visible: true},
		{role: scenario.RoleLink, name: "Get Started Now", href: "/trial/", visible: true},
	}
}

func newSite() *sitePage {
	return &sitePage{pages: map[string][]node{
		"/":       landingNodes(),
		"/blog/":  {{role: scenario.RoleHeading, name: "Blog", visible: true}},
		"/login":  {{role: scenario.RoleHeading, name: "Login", visible: true}},
		"/signup": {{role: scenario.RoleHeading, name: "Sign up", visible: true}},
		"/trial/": {{role: scenario.RoleHeading, name: "Start your trial", visible: true}},
	}}
}

const origin = "http://lp.test"

func (p *sitePage) path() string {
	path := strings.TrimPrefix(p.url, origin)
	path, _, _ = strings.Cut(path, "#")
	return path
}

func (p *sitePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navigate != nil {
		return p.navigate
	}
	p.url = url
	return nil
}

func (p *sitePage) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *sitePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *sitePage) Resolve(d scenario.Descriptor) scenario.Elements {
	return &siteElements{page: p, d: d}
}

type siteElements struct {
	page *sitePage
	d    scenario.Descriptor
}

func (e *siteElements) find() (node, bool) {
	for _, n := range e.page.pages[e.page.path()] {
		if e.d.Matches(n.role, n.name) {
			return n, true
		}
	}
	return node{}, false
}

func (e *siteElements) Visible(context.Context) (bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	n, ok := e.find()
	return ok && n.visible, nil
}

func (e *siteElements) Click(context.Context) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	n, ok := e.find()
	if !ok {
		return errs.New(errs.UnexpectedInteractionFailure, "element detached")
	}
	switch {
	case strings.HasPrefix(n.href, "#"):
		base, _, _ := strings.Cut(e.page.url, "#")
		e.page.url = base + n.href
	case n.href != "":
		e.page.url = origin + n.href
	}
	return nil
}

func (e *siteElements) Text(context.Context) (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	n, ok := e.find()
	if !ok {
		return "", errors.New("no element")
	}
	return n.name, nil
}

type siteSessions struct {
	mu     sync.Mutex
	build  func() *sitePage
	opened []*sitePage
}

func (s *siteSessions) NewSession(context.Context) (scenario.Session, error) {
	p := s.build()
	s.mu.Lock()
	s.opened = append(s.opened, p)
	s.mu.Unlock()
	return p, nil
}

func newTestSuite(t *testing.T) *Suite {
	t.Helper()
	suite, err := New(Options{
		BaseURL:  origin,
		Asserter: &scenario.Asserter{Timeout: 200 * time.Millisecond, Interval: 5 * time.Millisecond},
	})
	require.NoError(t, err)
	return suite
}

func runSuite(t *testing.T, suite *Suite, build func() *sitePage) ([]scenario.Result, *siteSessions) {
	t.Helper()
	sessions := &siteSessions{build: build}
	r := &scenario.Runner{Tracer: &scenario.Tracer{}, Sessions: sessions, Before: suite.Before, Parallel: 3}
	return r.RunAll(context.Background(), suite.Scenarios()), sessions
}

func TestSuite_AllScenariosPassOnHealthyPage(t *testing.T) {
	t.Parallel()
	suite := newTestSuite(t)

	results, sessions := runSuite(t, suite, newSite)

	require.Len(t, results, 8)
	for _, res := range results {
		require.Equalf(t, scenario.Passed, res.Status, "%s failed at %q: %v", res.Scenario, res.FailedStep, res.Err)
	}
	require.Len(t, sessions.opened, 8)
	for _, p := range sessions.opened {
		require.True(t, p.closed)
	}
	require.Equal(t, origin+"/", suite.EntryURL())
}

func TestSuite_ScenarioNames(t *testing.T) {
	t.Parallel()
	var names []string
	for _, sc := range newTestSuite(t).Scenarios() {
		names = append(names, sc.Name)
	}
	require.Equal(t, []string{
		`header link "Home" navigates to expected location`,
		`header link "About us" navigates to expected location`,
		`header link "Services" navigates to expected location`,
		`header link "Blog" navigates to expected location`,
		`header link "Contact us" navigates to expected location`,
		"Login link navigates to login page",
		"Sign up link navigates to signup page",
		`hero CTA "Get Started Now" navigates to signup or trial page`,
	}, names)
}

func TestSuite_MissingHeroFailsEveryScenarioInSetup(t *testing.T) {
	t.Parallel()
	suite := newTestSuite(t)
	results, _ := runSuite(t, suite, func() *sitePage {
		p := newSite()
		p.pages["/"] = p.pages["/"][1:]
		return p
	})

	for _, res := range results {
		require.Equal(t, scenario.Failed, res.Status)
		require.Equal(t, "open landing page and check hero heading", res.FailedStep)
		require.True(t, errs.Is(res.Err, errs.AssertionTimeout))
	}
}

func TestSuite_LoginNeedsHeadingAsWellAsURL(t *testing.T) {
	t.Parallel()
	suite := newTestSuite(t)
	p := newSite()
	p.pages["/login"] = nil

	r := &scenario.Runner{Tracer: &scenario.Tracer{}, Sessions: &siteSessions{build: func() *sitePage { return p }}, Before: suite.Before}
	res := r.Run(context.Background(), suite.Login())

	require.Equal(t, scenario.Failed, res.Status)
	require.Equal(t, "check Login page URL and heading", res.FailedStep)
	var te *scenario.TimeoutError
	require.True(t, errors.As(res.Err, &te))
	require.Equal(t, "visible", te.Check)
}

func TestSuite_LoginMismatchLogsExpectedDestination(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutputForTests(&buf)
	defer restore()

	suite := newTestSuite(t)
	p := newSite()
	for i, n := range p.pages["/"] {
		if n.name == "Login" {
			p.pages["/"][i].href = "/signin?token=s3cr3t"
		}
	}

	r := &scenario.Runner{Tracer: &scenario.Tracer{}, Sessions: &siteSessions{build: func() *sitePage { return p }}, Before: suite.Before}
	res := r.Run(context.Background(), suite.Login())

	require.Equal(t, scenario.Failed, res.Status)
	require.Equal(t, "check Login page URL and heading", res.FailedStep)
	logs := buf.String()
	require.Contains(t, logs, "destination mismatch")
	require.Contains(t, logs, `"want_url":"http://lp.test/login"`)
	require.Contains(t, logs, "/signin")
	require.NotContains(t, logs, "s3cr3t")
}

func TestSuite_CTAFallsBackToButton(t *testing.T) {
	t.Parallel()
	suite := newTestSuite(t)
	p := newSite()
	nodes := p.pages["/"]
	nodes[len(nodes)-1] = node{role: scenario.RoleButton, name: CTALabel, href: "/signup", visible: true}

	r := &scenario.Runner{Sessions: &siteSessions{build: func() *sitePage { return p }}, Before: suite.Before}
	res := r.Run(context.Background(), suite.CTA())

	require.Equal(t, scenario.Passed, res.Status, "%v", res.Err)
	require.Equal(t, origin+"/signup", p.CurrentURL())
}

func TestSuite_CTAMissingFailsBeforeClick(t *testing.T) {
	t.Parallel()
	suite := newTestSuite(t)
	p := newSite()
	nodes := p.pages["/"]
	p.pages["/"] = nodes[:len(nodes)-1]

	r := &scenario.Runner{Sessions: &siteSessions{build: func() *sitePage { return p }}, Before: suite.Before}
	res := r.Run(context.Background(), suite.CTA())

	require.Equal(t, scenario.Failed, res.Status)
	require.Equal(t, `show CTA "Get Started Now"`, res.FailedStep)
	require.True(t, errs.Is(res.Err, errs.ElementNotFound))
	require.Contains(t, res.Err.Error(), `button "Get Started Now" or link "Get Started Now"`)
	require.Equal(t, scenario.NotStarted, res.Steps[len(res.Steps)-1].Status)
}

func TestSuite_CTAPatternIsConfigurable(t *testing.T) {
	t.Parallel()
	suite, err := New(Options{
		BaseURL:  origin,
		Asserter: &scenario.Asserter{Timeout: 100 * time.Millisecond, Interval: 5 * time.Millisecond},
		CTAURL:   regexp.MustCompile(`/pricing$`),
	})
	require.NoError(t, err)

	r := &scenario.Runner{Sessions: &siteSessions{build: newSite}, Before: suite.Before}
	res := r.Run(context.Background(), suite.CTA())

	require.Equal(t, scenario.Failed, res.Status)
	require.Equal(t, "check URL after clicking CTA", res.FailedStep)
}

func TestSuite_BrokenHeaderLinkIsolated(t *testing.T) {
	t.Parallel()
	suite := newTestSuite(t)
	results, _ := runSuite(t, suite, func() *sitePage {
		p := newSite()
		for i, n := range p.pages["/"] {
			if n.name == "Services" {
				p.pages["/"][i].href = "#pricing"
			}
		}
		return p
	})

	var failed []string
	for _, res := range results {
		if res.Status == scenario.Failed {
			failed = append(failed, res.FailedStep)
		}
	}
	require.Equal(t, []string{`check URL after clicking "Services"`}, failed)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := New(Options{BaseURL: "localhost:3000"})
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))

	dup := scenario.Set{Cases: []scenario.Case{
		{Label: "Blog", ExpectedURL: regexp.MustCompile(`/blog`)},
		{Label: "Blog", ExpectedURL: regexp.MustCompile(`/blog`)},
	}}
	_, err = New(Options{HeaderLinks: &dup})
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))

	suite, err := New(Options{})
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, suite.EntryURL())
}

func TestSuite_UnreachableBaseURL(t *testing.T) {
	t.Parallel()
	suite := newTestSuite(t)
	p := newSite()
	p.navigate = errs.New(errs.UnexpectedInteractionFailure, "net::ERR_CONNECTION_REFUSED")

	r := &scenario.Runner{Sessions: &siteSessions{build: func() *sitePage { return p }}, Before: suite.Before}
	res := r.Run(context.Background(), suite.SignUp())

	require.Equal(t, scenario.Failed, res.Status)
	require.Equal(t, "open landing page and check hero heading", res.FailedStep)
	require.True(t, errs.Is(res.Err, errs.UnexpectedInteractionFailure))
	require.True(t, p.closed)
}
