// Package frontmatter turns loosely structured model output into a complete
// article header and a cleaned markdown body.
package frontmatter

import (
	"regexp"
	"strings"
)

// Fields is the best-effort result of reading a draft.
// Empty strings mean the field was not found.
type Fields struct {
	Title       string
	Description string
	Cover       string
	Body        string
}

var (
	delimiterLine = regexp.MustCompile(`(?m)^[ \t]*---[ \t]*\r?$`)
	anyKeyLine    = regexp.MustCompile(`(?m)^[ \t]*[A-Za-z_][\w-]*[ \t]*:`)
	knownKeyLine  = regexp.MustCompile(`(?i)^[ \t]*(title|description|cover)[ \t]*:(.*)$`)
	topHeading    = regexp.MustCompile(`^#[ \t]+(.+?)[ \t#]*$`)
	headingPrefix = regexp.MustCompile(`^[ \t]*#+[ \t]*`)
)

// Extract splits text into header fields and body. Keys other than title,
// description and cover are ignored; date and tags always come from the caller.
func Extract(text string) Fields {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	header, body, ok := splitHeader(text)
	if !ok {
		return Fields{Body: text}
	}

	f := Fields{Body: body}
	for _, line := range strings.Split(header, "\n") {
		m := knownKeyLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := unquote(strings.TrimSpace(m[2]))
		if value == "" {
			continue
		}
		switch strings.ToLower(m[1]) {
		case "title":
			if f.Title == "" {
				f.Title = value
			}
		case "description":
			if f.Description == "" {
				f.Description = value
			}
		case "cover":
			if f.Cover == "" {
				f.Cover = value
			}
		}
	}
	return f
}

// splitHeader returns the block between the first two delimiter lines and
// everything after the second. A block without any key: line is not a header.
func splitHeader(text string) (header, body string, ok bool) {
	locs := delimiterLine.FindAllStringIndex(text, 2)
	if len(locs) < 2 {
		return "", text, false
	}
	header = text[locs[0][1]:locs[1][0]]
	if !anyKeyLine.MatchString(header) {
		return "", text, false
	}
	return header, text[locs[1][1]:], true
}

func unquote(v string) string {
	if len(v) >= 2 {
		switch {
		case v[0] == '"' && v[len(v)-1] == '"':
			inner := v[1 : len(v)-1]
			inner = strings.ReplaceAll(inner, `\"`, `"`)
			return strings.TrimSpace(strings.ReplaceAll(inner, `\\`, `\`))
		case v[0] == '\'' && v[len(v)-1] == '\'':
			return strings.TrimSpace(strings.ReplaceAll(v[1:len(v)-1], "''", "'"))
		}
	}
	return v
}

// FallbackTitle picks the first top-level heading, then the first non-blank
// line without heading markers, then the placeholder.
func FallbackTitle(body, placeholder string) string {
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		if m := topHeading.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	for _, line := range lines {
		line = strings.TrimSpace(headingPrefix.ReplaceAllString(line, ""))
		if line != "" {
			return line
		}
	}
	return placeholder
}

// FallbackDescription returns the first non-blank, non-heading line after the
// first top-level heading, or "" when there is none.
func FallbackDescription(body string) string {
	seenHeading := false
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !seenHeading {
			seenHeading = topHeading.MatchString(line)
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return ""
}
