package scenario

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/lpcheck/internal/errs"
)

// Case is one row of a scenario set: a label and the URL pattern the flow
// under that label must end on.
type Case struct {
	Label       string
	ExpectedURL *regexp.Regexp
}

// Set is a table of cases that drives one scenario template.
type Set struct {
	Name  string
	Cases []Case
}

// Validate rejects empty labels, missing patterns and duplicate labels.
func (s Set) Validate() error {
	var problems []string
	seen := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		label := strings.TrimSpace(c.Label)
		switch {
		case label == "":
			problems = append(problems, fmt.Sprintf("case %d has no label", i))
		case seen[label]:
			problems = append(problems, fmt.Sprintf("duplicate label %q", label))
		}
		seen[label] = true
		if c.ExpectedURL == nil {
			problems = append(problems, fmt.Sprintf("case %q has no expected URL pattern", c.Label))
		}
	}
	if len(problems) > 0 {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("scenario set %q: %s", s.Name, strings.Join(problems, "; ")))
	}
	return nil
}

// Expand builds one scenario per case with tmpl. Each scenario is named by
// its case label unless tmpl names it.
func (s Set) Expand(tmpl func(Case) Scenario) []Scenario {
	out := make([]Scenario, 0, len(s.Cases))
	for _, c := range s.Cases {
		sc := tmpl(c)
		if sc.Name == "" {
			sc.Name = c.Label
		}
		out = append(out, sc)
	}
	return out
}

type setFile struct {
	Name  string     `yaml:"name"`
	Cases []caseFile `yaml:"cases"`
}

type caseFile struct {
	Label     string `yaml:"label"`
	ExpectURL string `yaml:"expect_url"`
}

// LoadSet reads a scenario set from YAML:
//
//	name: header-links
//	cases:
//	  - label: Blog
//	    expect_url: '(?i)/blog/?(#.*)?$'
func LoadSet(r io.Reader) (Set, error) {
	var f setFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Set{}, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("failed to parse scenario set: %v", err), err)
	}

	set := Set{Name: f.Name, Cases: make([]Case, 0, len(f.Cases))}
	for _, c := range f.Cases {
		if strings.TrimSpace(c.ExpectURL) == "" {
			set.Cases = append(set.Cases, Case{Label: c.Label})
			continue
		}
		re, err := regexp.Compile(c.ExpectURL)
		if err != nil {
			return Set{}, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("case %q: bad expect_url: %v", c.Label, err), err)
		}
		set.Cases = append(set.Cases, Case{Label: c.Label, ExpectedURL: re})
	}
	if err := set.Validate(); err != nil {
		return Set{}, err
	}
	return set, nil
}
