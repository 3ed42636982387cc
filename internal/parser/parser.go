// Package parser extracts frontmatter, cross-references, and tags from
// Markdown document content.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	refRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Refs        []string
	Tags        []string
	Title       string
}

// Parse extracts frontmatter, body, cross-references, and tags from raw
// Markdown bytes. Content without frontmatter, or with invalid YAML, is
// treated as body-only.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Refs:        extractRefs(body),
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading ---
// delimiters) from the Markdown body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter.
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// extractRefs returns deduplicated [[ref]] targets, normalising aliases.
func extractRefs(body string) []string {
	matches := refRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		// [[Target|Alias]] → Target.
		if i := strings.Index(target, "|"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags collects #tags from the body and the frontmatter "tags" list.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	if fm != nil {
		if raw, ok := fm["tags"]; ok {
			if list, ok := raw.([]any); ok {
				for _, item := range list {
					if s, ok := item.(string); ok {
						add(s)
					}
				}
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the
// first H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
