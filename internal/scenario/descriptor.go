// Package scenario runs browser acceptance checks as ordered, traced steps.
//
// A scenario never talks to a browser directly. It resolves Descriptors
// through a Page, asserts on what the page reports with bounded polling, and
// reports every step to a Reporter.
package scenario

import (
	"context"
	"fmt"
	"regexp"
)

// Role is the ARIA role a descriptor matches.
type Role string

const (
	RoleHeading Role = "heading"
	RoleLink    Role = "link"
	RoleButton  Role = "button"
)

// Descriptor is a semantic element query: a role plus an accessible name.
// Exactly one of Name and Pattern is set. A Name matches exactly.
type Descriptor struct {
	Role    Role
	Name    string
	Pattern *regexp.Regexp
}

// ByName describes the element with role whose accessible name is exactly name.
func ByName(role Role, name string) Descriptor {
	return Descriptor{Role: role, Name: name}
}

// ByPattern describes the element with role whose accessible name matches expr.
// It panics if expr does not compile; descriptors are declared statically.
func ByPattern(role Role, expr string) Descriptor {
	return Descriptor{Role: role, Pattern: regexp.MustCompile(expr)}
}

func (d Descriptor) String() string {
	if d.Pattern != nil {
		return fmt.Sprintf("%s /%s/", d.Role, d.Pattern)
	}
	return fmt.Sprintf("%s %q", d.Role, d.Name)
}

// Matches reports whether an element with the given role and accessible name
// satisfies d.
func (d Descriptor) Matches(role Role, name string) bool {
	if role != d.Role {
		return false
	}
	if d.Pattern != nil {
		return d.Pattern.MatchString(name)
	}
	return name == d.Name
}

// Elements is a live view of the elements a descriptor matches. Every call
// queries the current page state; nothing is cached between calls.
type Elements interface {
	// Visible reports whether at least one matching element is visible.
	Visible(ctx context.Context) (bool, error)
	// Click clicks the first matching element.
	Click(ctx context.Context) error
	// Text returns the text content of the first matching element.
	Text(ctx context.Context) (string, error)
}

// Resolver turns descriptors into live element views.
type Resolver interface {
	Resolve(d Descriptor) Elements
}

// URLSource reports the URL the page is currently showing.
type URLSource interface {
	CurrentURL() string
}

// Page is the browser boundary a scenario drives.
type Page interface {
	Resolver
	URLSource
	Navigate(ctx context.Context, url string) error
}
