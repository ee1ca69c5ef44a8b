// Package parser converts between Markdown documents with YAML front matter and
// an ordered list of titled sections plus an ordered metadata mapping.
package parser

import (
	"bytes"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

const (
	delim = "---"
	fence = "```"
)

// Field is one key/value pair of front matter.
type Field struct {
	Key   string
	Value any
}

// Meta is front matter in document order. Values are scalars, nested Meta, or
// []any sequences.
type Meta []Field

// Get returns the value stored under key.
func (m Meta) Get(key string) (any, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Section is a heading and the trimmed text below it. The first section of a
// document may have an empty title.
type Section struct {
	Title string
	Body  string
}

// Document is a parsed Markdown file.
type Document struct {
	Sections []Section
	Meta     Meta
}

// FirstTitle returns the title of the first section, or "".
func (d *Document) FirstTitle() string {
	if len(d.Sections) == 0 {
		return ""
	}
	return d.Sections[0].Title
}

// FirstBody returns the body of the first section, or "".
func (d *Document) FirstBody() string {
	if len(d.Sections) == 0 {
		return ""
	}
	return d.Sections[0].Body
}

// Text joins every title and body, for full-text indexing.
func (d *Document) Text() string {
	var b strings.Builder
	for _, s := range d.Sections {
		if s.Title != "" {
			b.WriteString(s.Title)
			b.WriteByte('\n')
		}
		if s.Body != "" {
			b.WriteString(s.Body)
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String())
}

// Parse splits raw Markdown into front matter and sections. A document always
// has at least one section.
func Parse(data []byte) (*Document, error) {
	meta, body := splitFrontmatter(string(data))
	return &Document{Sections: splitSections(body), Meta: meta}, nil
}

// splitFrontmatter separates a leading YAML block delimited by "---" lines.
// Without a closing delimiter, or when the block is not a YAML mapping, the
// whole text is body.
func splitFrontmatter(text string) (Meta, string) {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 || lines[0] != delim {
		return nil, text
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if lines[i] == delim {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, text
	}

	block := strings.Join(lines[1:end], "\n")
	body := strings.Join(lines[end+1:], "\n")
	if strings.TrimSpace(block) == "" {
		return nil, body
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
		return nil, text
	}
	if len(doc.Content) == 0 {
		return nil, body
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, text
	}
	meta, err := decodeMapping(root)
	if err != nil {
		return nil, text
	}
	return meta, body
}

func splitSections(text string) []Section {
	var (
		sections  []Section
		preamble  []string
		current   []string
		title     string
		inHeading bool
		inFence   bool
	)
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, fence) {
			inFence = !inFence
		}
		if !inFence {
			if t, ok := headingTitle(line); ok {
				if inHeading {
					sections = append(sections, Section{Title: title, Body: joinTrim(current)})
				}
				title, current, inHeading = t, nil, true
				continue
			}
		}
		if inHeading {
			current = append(current, line)
		} else {
			preamble = append(preamble, line)
		}
	}

	if !inHeading {
		return []Section{{Body: joinTrim(preamble)}}
	}
	sections = append(sections, Section{Title: title, Body: joinTrim(current)})
	if pre := joinTrim(preamble); pre != "" {
		sections = append([]Section{{Body: pre}}, sections...)
	}
	return sections
}

// headingTitle reports whether line is a level-1 or level-2 heading.
func headingTitle(line string) (string, bool) {
	switch {
	case strings.HasPrefix(line, "# "):
		return strings.TrimSpace(line[2:]), true
	case strings.HasPrefix(line, "## "):
		return strings.TrimSpace(line[3:]), true
	}
	return "", false
}

func joinTrim(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Serialize renders doc back to Markdown. The first section becomes a level-1
// heading and the rest level-2; headings inside bodies are demoted to level 3.
// The output ends with exactly one newline.
func Serialize(doc *Document) ([]byte, error) {
	var parts []string
	if len(doc.Meta) > 0 {
		fm, err := encodeFrontmatter(doc.Meta)
		if err != nil {
			return nil, err
		}
		parts = append(parts, delim, strings.TrimRightFunc(fm, unicode.IsSpace), delim, "")
	}
	for i, s := range doc.Sections {
		switch {
		case i == 0 && (s.Title != "" || (s.Body == "" && len(doc.Sections) > 1)):
			parts = append(parts, "# "+s.Title, "")
		case i > 0:
			parts = append(parts, "## "+s.Title, "")
		}
		if s.Body != "" {
			parts = append(parts, demoteHeadings(s.Body), "")
		}
	}
	out := strings.TrimRightFunc(strings.Join(parts, "\n"), unicode.IsSpace)
	return []byte(out + "\n"), nil
}

func demoteHeadings(body string) string {
	lines := strings.Split(body, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(line, fence) {
			inFence = !inFence
		}
		if inFence {
			continue
		}
		switch {
		case strings.HasPrefix(line, "# "):
			lines[i] = "### " + line[2:]
		case strings.HasPrefix(line, "## "):
			lines[i] = "### " + line[3:]
		}
	}
	return strings.Join(lines, "\n")
}

func encodeFrontmatter(meta Meta) (string, error) {
	node, err := encodeValue(meta)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return compactSequences(buf.String()), nil
}
