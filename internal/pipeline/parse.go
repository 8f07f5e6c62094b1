package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"
)

// outputFrontmatter is the YAML header the generator is expected to
// write at the top of output.md (§6.4).
type outputFrontmatter struct {
	Title  string   `yaml:"title"`
	Model  string   `yaml:"model"`
	Topics []string `yaml:"topics"`
}

type parsedOutput struct {
	Title     string
	Topics    []string
	Markdown  string
	HTML      string
	ModelUsed string
}

var frontmatterRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n?(.*)$`)
var shareLinkRe = regexp.MustCompile(`https?://\S+`)

// parseOutput reads the generator's output.md, splits YAML frontmatter
// from the markdown body, converts the body to HTML, and resolves the
// article title via the fallback chain: frontmatter title, else the
// first markdown heading, else a generic placeholder. log is the
// generator's accumulated stdout/stderr from phase 3; it is scanned for
// a share-link pattern and, if found, a line linking to it is appended
// to both the markdown and HTML bodies.
func parseOutput(path, log string) (*parsedOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("generator produced empty output")
	}

	var fm outputFrontmatter
	body := string(data)
	if m := frontmatterRe.FindStringSubmatch(string(data)); m != nil {
		if err := yaml.Unmarshal([]byte(m[1]), &fm); err != nil {
			return nil, fmt.Errorf("invalid frontmatter: %w", err)
		}
		body = m[2]
	}

	title := fm.Title
	if title == "" {
		title = firstHeading(body)
	}
	if title == "" {
		title = "Untitled Digest"
	}

	if link := shareLinkRe.FindString(log); link != "" {
		shareLine := fmt.Sprintf("\n\n[Session](%s)\n", link)
		body += shareLine
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &htmlBuf); err != nil {
		return nil, fmt.Errorf("markdown conversion: %w", err)
	}

	return &parsedOutput{
		Title:     title,
		Topics:    fm.Topics,
		Markdown:  body,
		HTML:      htmlBuf.String(),
		ModelUsed: fm.Model,
	}, nil
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}
