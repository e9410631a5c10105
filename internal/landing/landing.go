// Package landing defines the acceptance checks for the marketing landing
// page: header navigation, the Login and Sign up links, and the hero call to
// action.
package landing

import (
	"context"
	"fmt"
	"regexp"

	"github.com/kuitang/lpcheck/internal/errs"
	"github.com/kuitang/lpcheck/internal/logutil"
	"github.com/kuitang/lpcheck/internal/obs"
	"github.com/kuitang/lpcheck/internal/scenario"
	"github.com/kuitang/lpcheck/internal/urlutil"
)

const (
	DefaultBaseURL = "http://localhost:3000/"
	CTALabel       = "Get Started Now"
	// DefaultCTAURLPattern is where the CTA is expected to lead until the
	// page settles on one destination.
	DefaultCTAURLPattern = `(?i)/(signup|trial)/?`
)

// HeroHeading must be visible right after the landing page loads.
var HeroHeading = scenario.ByPattern(scenario.RoleHeading, `(?i)Committed To People`)

// HeaderLinks returns the default header navigation table.
func HeaderLinks() scenario.Set {
	return scenario.Set{
		Name: "header-links",
		Cases: []scenario.Case{
			{Label: "Home", ExpectedURL: regexp.MustCompile(`(?i)/(#top)?$`)},
			{Label: "About us", ExpectedURL: regexp.MustCompile(`(?i)#about`)},
			{Label: "Services", ExpectedURL: regexp.MustCompile(`(?i)#services`)},
			{Label: "Blog", ExpectedURL: regexp.MustCompile(`(?i)/blog/?(#.*)?$`)},
			{Label: "Contact us", ExpectedURL: regexp.MustCompile(`(?i)#contact`)},
		},
	}
}

// Options configures a Suite. Zero values fall back to the defaults above.
type Options struct {
	BaseURL     string
	Asserter    *scenario.Asserter
	HeaderLinks *scenario.Set
	CTAURL      *regexp.Regexp
}

// Suite builds the landing page scenarios.
type Suite struct {
	entryURL    string
	assert      *scenario.Asserter
	headerLinks scenario.Set
	ctaURL      *regexp.Regexp
}

// New validates opts and returns the suite.
func New(opts Options) (*Suite, error) {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if err := urlutil.ValidateBaseURL(base); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err.Error(), err)
	}

	s := &Suite{
		entryURL:    urlutil.EntryURL(base),
		assert:      opts.Asserter,
		headerLinks: HeaderLinks(),
		ctaURL:      opts.CTAURL,
	}
	if s.assert == nil {
		s.assert = &scenario.Asserter{}
	}
	if opts.HeaderLinks != nil {
		s.headerLinks = *opts.HeaderLinks
	}
	if err := s.headerLinks.Validate(); err != nil {
		return nil, err
	}
	if s.ctaURL == nil {
		s.ctaURL = regexp.MustCompile(DefaultCTAURLPattern)
	}
	return s, nil
}

// EntryURL is where every scenario starts.
func (s *Suite) EntryURL() string {
	return s.entryURL
}

// Before opens the landing page and waits for the hero heading. It runs at
// the start of every scenario.
func (s *Suite) Before(p scenario.Page) []scenario.Step {
	return []scenario.Step{{
		Name: "open landing page and check hero heading",
		Run: func(ctx context.Context) error {
			if err := p.Navigate(ctx, s.entryURL); err != nil {
				return err
			}
			return s.assert.Visible(ctx, p, HeroHeading)
		},
	}}
}

// Scenarios returns every landing page scenario: one per header link, then
// Login, Sign up and the hero CTA.
func (s *Suite) Scenarios() []scenario.Scenario {
	out := s.headerLinks.Expand(s.headerLink)
	return append(out, s.Login(), s.SignUp(), s.CTA())
}

func (s *Suite) headerLink(c scenario.Case) scenario.Scenario {
	link := scenario.ByName(scenario.RoleLink, c.Label)
	return scenario.Scenario{
		Name: fmt.Sprintf("header link %q navigates to expected location", c.Label),
		Steps: func(p scenario.Page) []scenario.Step {
			return []scenario.Step{
				{Name: fmt.Sprintf("show %q link", c.Label), Run: func(ctx context.Context) error {
					return s.assert.Visible(ctx, p, link)
				}},
				{Name: fmt.Sprintf("click %q", c.Label), Run: func(ctx context.Context) error {
					return p.Resolve(link).Click(ctx)
				}},
				{Name: fmt.Sprintf("check URL after clicking %q", c.Label), Run: func(ctx context.Context) error {
					return s.assert.URL(ctx, p, c.ExpectedURL)
				}},
			}
		},
	}
}

// Login checks that the Login link lands on the login page.
func (s *Suite) Login() scenario.Scenario {
	return s.pageLink("Login link navigates to login page", "Login", "/login",
		regexp.MustCompile(`(?i)/login/?$`), scenario.ByPattern(scenario.RoleHeading, `(?i)Login`))
}

// SignUp checks that the Sign up link lands on the signup page.
func (s *Suite) SignUp() scenario.Scenario {
	return s.pageLink("Sign up link navigates to signup page", "Sign up", "/signup",
		regexp.MustCompile(`(?i)/signup/?$`), scenario.ByPattern(scenario.RoleHeading, `(?i)Sign up`))
}

// pageLink clicks the link called label and requires both the URL and the
// destination heading. dest is the usual path of the destination, logged when
// the URL does not match.
func (s *Suite) pageLink(name, label, dest string, url *regexp.Regexp, heading scenario.Descriptor) scenario.Scenario {
	link := scenario.ByName(scenario.RoleLink, label)
	want := urlutil.BuildAbsolute(s.entryURL, dest)
	return scenario.Scenario{
		Name: name,
		Steps: func(p scenario.Page) []scenario.Step {
			return []scenario.Step{
				{Name: fmt.Sprintf("click %q link", label), Run: func(ctx context.Context) error {
					if err := s.assert.Visible(ctx, p, link); err != nil {
						return err
					}
					return p.Resolve(link).Click(ctx)
				}},
				{Name: fmt.Sprintf("check %s page URL and heading", label), Run: func(ctx context.Context) error {
					if err := s.assert.URL(ctx, p, url); err != nil {
						obs.From(ctx).Warn("destination mismatch", "want_url", want, "got_url", logutil.RedactURLForLog(p.CurrentURL()))
						return err
					}
					return s.assert.Visible(ctx, p, heading)
				}},
			}
		},
	}
}

// CTA checks the hero call to action, which may be either a button or a link.
func (s *Suite) CTA() scenario.Scenario {
	alts := []scenario.Descriptor{
		scenario.ByName(scenario.RoleButton, CTALabel),
		scenario.ByName(scenario.RoleLink, CTALabel),
	}
	return scenario.Scenario{
		Name: fmt.Sprintf("hero CTA %q navigates to signup or trial page", CTALabel),
		Steps: func(p scenario.Page) []scenario.Step {
			return []scenario.Step{
				{Name: fmt.Sprintf("show CTA %q", CTALabel), Run: func(ctx context.Context) error {
					_, _, err := s.assert.FirstVisible(ctx, p, alts...)
					return err
				}},
				{Name: fmt.Sprintf("click CTA %q", CTALabel), Run: func(ctx context.Context) error {
					cta, _, err := s.assert.FirstVisible(ctx, p, alts...)
					if err != nil {
						return err
					}
					return cta.Click(ctx)
				}},
				{Name: "check URL after clicking CTA", Run: func(ctx context.Context) error {
					return s.assert.URL(ctx, p, s.ctaURL)
				}},
			}
		},
	}
}
