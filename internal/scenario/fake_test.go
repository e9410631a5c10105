package scenario

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// fakeElement is one element on a fakePage. A non-empty href moves the page
// when the element is clicked.
type fakeElement struct {
	role    Role
	name    string
	text    string
	href    string
	visible bool
	// hiddenPolls is how many Visible calls report false before the
	// element shows up.
	hiddenPolls int
}

type fakePage struct {
	mu          sync.Mutex
	url         string
	elements    []*fakeElement
	roleErrs    map[Role]error
	navigations []string
	clicks      []string
	closed      bool
	navErr      error
}

func newFakePage(url string, elements ...*fakeElement) *fakePage {
	return &fakePage{url: url, elements: elements, roleErrs: map[Role]error{}}
}

func (p *fakePage) Resolve(d Descriptor) Elements {
	return &fakeElements{page: p, d: d}
}

func (p *fakePage) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navErr != nil {
		return p.navErr
	}
	p.navigations = append(p.navigations, url)
	p.url = url
	return nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeElements struct {
	page *fakePage
	d    Descriptor
}

func (e *fakeElements) find() *fakeElement {
	for _, el := range e.page.elements {
		if e.d.Matches(el.role, el.name) {
			return el
		}
	}
	return nil
}

func (e *fakeElements) Visible(context.Context) (bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.page.roleErrs[e.d.Role]; err != nil {
		return false, err
	}
	el := e.find()
	if el == nil {
		return false, nil
	}
	if el.hiddenPolls > 0 {
		el.hiddenPolls--
		return false, nil
	}
	return el.visible, nil
}

func (e *fakeElements) Click(context.Context) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	el := e.find()
	if el == nil {
		return errors.New("element detached: " + e.d.String())
	}
	e.page.clicks = append(e.page.clicks, e.d.String())
	switch {
	case el.href == "":
	case strings.HasPrefix(el.href, "#"):
		base, _, _ := strings.Cut(e.page.url, "#")
		e.page.url = base + el.href
	default:
		e.page.url = el.href
	}
	return nil
}

func (e *fakeElements) Text(context.Context) (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	el := e.find()
	if el == nil {
		return "", errors.New("no element for " + e.d.String())
	}
	if el.text != "" {
		return el.text, nil
	}
	return el.name, nil
}

// fakeSessions hands out fresh pages built by newPage.
type fakeSessions struct {
	mu      sync.Mutex
	newPage func() *fakePage
	pages   []*fakePage
	openErr error
}

func (s *fakeSessions) NewSession(context.Context) (Session, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	p := s.newPage()
	s.mu.Lock()
	s.pages = append(s.pages, p)
	s.mu.Unlock()
	return p, nil
}

func (s *fakeSessions) opened() []*fakePage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakePage(nil), s.pages...)
}
