package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Markdown renders the summary for humans.
func Markdown(s Summary) []byte {
	var b bytes.Buffer

	b.WriteString("# Landing page check\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", s.RunID)
	fmt.Fprintf(&b, "- Target: %s\n", s.BaseURL)
	fmt.Fprintf(&b, "- Browser: %s\n", s.Browser)
	fmt.Fprintf(&b, "- Started: %s\n", s.Started.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Result: **%d passed, %d failed** in %d ms\n\n", s.Passed, s.Failed, s.DurationMS)

	b.WriteString("## Scenarios\n\n")
	b.WriteString("| Status | Scenario | Duration |\n")
	b.WriteString("| --- | --- | --- |\n")
	for _, sc := range s.Scenarios {
		fmt.Fprintf(&b, "| %s | %s | %d ms |\n", statusLabel(sc.Status), cell(sc.Name), sc.DurationMS)
	}

	var failed []Scenario
	for _, sc := range s.Scenarios {
		if sc.Status != "passed" {
			failed = append(failed, sc)
		}
	}
	if len(failed) == 0 {
		return b.Bytes()
	}

	b.WriteString("\n## Failures\n")
	for _, sc := range failed {
		fmt.Fprintf(&b, "\n### %s\n\n", sc.Name)
		if sc.FailedStep != "" {
			fmt.Fprintf(&b, "Failed at step **%s** (`%s`).\n\n", sc.FailedStep, sc.ErrorCode)
		}
		if sc.Error != "" {
			f := fence(sc.Error)
			fmt.Fprintf(&b, "%s\n%s\n%s\n\n", f, sc.Error, f)
		}
		b.WriteString("| Step | Status | Duration |\n")
		b.WriteString("| --- | --- | --- |\n")
		for _, st := range sc.Steps {
			fmt.Fprintf(&b, "| %s | %s | %d ms |\n", cell(st.Name), statusLabel(st.Status), st.DurationMS)
		}
	}
	return b.Bytes()
}

func statusLabel(status string) string {
	switch status {
	case "passed":
		return "PASS"
	case "failed":
		return "FAIL"
	case "not_started":
		return "SKIP"
	default:
		return strings.ToUpper(status)
	}
}

// fence returns a code fence longer than any backtick run in s, so s cannot
// close it early.
func fence(s string) string {
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

// cell keeps a value inside its table column.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.5;
            max-width: 960px;
            margin: 0 auto;
            padding: 2rem 1rem;
        }
        table { border-collapse: collapse; width: 100%; }
        th, td { border: 1px solid #e0e0e0; padding: 0.4em 0.6em; text-align: left; }
        pre { background: #f5f5f5; padding: 1em; overflow-x: auto; }
    </style>
</head>
<body>
{{.Content}}
</body>
</html>
`

var pageTemplate = template.Must(template.New("report").Parse(htmlTemplate))

// HTML renders the Markdown report as a standalone, sanitized page.
func HTML(s Summary) []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(Markdown(s))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	body := markdown.Render(doc, renderer)

	// Scenario names and error text come from the page under test.
	policy := bluemonday.UGCPolicy()
	sanitized := policy.SanitizeBytes(body)

	var out bytes.Buffer
	title := fmt.Sprintf("Landing page check %s", s.RunID)
	if err := pageTemplate.Execute(&out, struct {
		Title   string
		Content template.HTML
	}{Title: title, Content: template.HTML(sanitized)}); err != nil {
		// The template is static and the data is two strings.
		panic(err)
	}
	return out.Bytes()
}
