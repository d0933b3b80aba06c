package frontmatter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Header is the metadata block written in front of every article.
// Keys are always emitted in the order title, description, date, tags, cover.
type Header struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Date        string   `yaml:"date"`
	Tags        []string `yaml:"tags"`
	Cover       string   `yaml:"cover"`
}

var lineBreaks = regexp.MustCompile(`[ \t]*(?:\r\n|\r|\n)+[ \t]*`)

// escape makes v safe inside a double-quoted header value.
func escape(v string) string {
	v = lineBreaks.ReplaceAllString(v, " ")
	v = strings.Map(printable, v)
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}

// printable drops runes YAML does not allow in a scalar. Invalid UTF-8 comes
// out of strings.Map as U+FFFD.
func printable(r rune) rune {
	if r == '\t' {
		return r
	}
	if unicode.IsControl(r) || r == '\uFEFF' || r == '\uFFFE' || r == '\uFFFF' {
		return -1
	}
	return r
}

func quote(v string) string {
	return `"` + escape(v) + `"`
}

// String renders the header including both delimiter lines.
func (h Header) String() string {
	tags := make([]string, len(h.Tags))
	for i, t := range h.Tags {
		tags[i] = quote(t)
	}

	var b strings.Builder
	b.WriteString(delimiter + "\n")
	fmt.Fprintf(&b, "title: %s\n", quote(h.Title))
	fmt.Fprintf(&b, "description: %s\n", quote(h.Description))
	fmt.Fprintf(&b, "date: %s\n", lineBreaks.ReplaceAllString(h.Date, " "))
	fmt.Fprintf(&b, "tags: [%s]\n", strings.Join(tags, ", "))
	fmt.Fprintf(&b, "cover: %s\n", quote(h.Cover))
	b.WriteString(delimiter + "\n")
	return b.String()
}

// Document joins a header and body with one blank line between them.
func Document(h Header, body string) string {
	return h.String() + "\n" + strings.TrimSpace(body) + "\n"
}

var coverLine = regexp.MustCompile(`(?m)^cover:.*$`)

// RewriteCover replaces every cover: line in the header block of doc with path.
// The body is never touched.
func RewriteCover(doc, path string) string {
	locs := delimiterLine.FindAllStringIndex(doc, 2)
	if len(locs) < 2 {
		return doc
	}
	head := doc[:locs[1][0]]
	line := "cover: " + quote(path)
	head = coverLine.ReplaceAllLiteralString(head, line)
	return head + doc[locs[1][0]:]
}

// ParseHeader decodes the header block of a rendered document.
func ParseHeader(doc string) (Header, string, error) {
	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	block, body, ok := splitHeader(doc)
	if !ok {
		return Header{}, doc, fmt.Errorf("%w: no header block", ErrInvalidInput)
	}
	var raw struct {
		Title       string    `yaml:"title"`
		Description string    `yaml:"description"`
		Date        yaml.Node `yaml:"date"`
		Tags        []string  `yaml:"tags"`
		Cover       string    `yaml:"cover"`
	}
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return Header{}, body, fmt.Errorf("decoding header: %w", err)
	}
	return Header{
		Title:       raw.Title,
		Description: raw.Description,
		Date:        raw.Date.Value,
		Tags:        raw.Tags,
		Cover:       raw.Cover,
	}, strings.TrimSpace(body), nil
}
