package frontmatter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	labelLine = regexp.MustCompile(`(?im)^[ \t]*#*[ \t]*(?:title|summary)[ \t]*:.*(?:\n|$)`)
	blankRun  = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)

	// Code is kept out of the emphasis passes.
	codeSpan    = regexp.MustCompile("(?s)```.*?(?:```|$)|`[^`\n]+`")
	placeholder = regexp.MustCompile(`\x00([0-9]+)\x00`)

	// A pair may span one line break but never a blank line. Underscore
	// pairs must sit on word boundaries so snake_case survives.
	strongStars = regexp.MustCompile(`\*\*([^\n*](?:[^\n]|\n[^\n])*?)\*\*`)
	strongUnder = regexp.MustCompile(`(^|[^\w])__([^\n_](?:[^\n]|\n[^\n])*?)__([^\w]|$)`)
	emStar      = regexp.MustCompile(`\*([^\s*](?:(?:[^*\n]|\n[^\n*])*?[^\s*])?)\*`)
	emUnder     = regexp.MustCompile(`(^|[^\w])_([^\s_](?:(?:[^_\n]|\n[^\n_])*?[^\s_])?)_([^\w]|$)`)
)

// Sanitize strips emphasis markers and "Title:"/"Summary:" label lines,
// collapses runs of blank lines, and trims the result. It never fails.
func Sanitize(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = StripEmphasis(body)
	body = labelLine.ReplaceAllString(body, "")
	body = blankRun.ReplaceAllString(body, "\n\n")
	return strings.TrimSpace(body)
}

// StripEmphasis removes **, __, * and _ emphasis pairs and keeps their text.
// Fenced blocks and inline code spans are left as they are.
func StripEmphasis(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	var code []string
	s = codeSpan.ReplaceAllStringFunc(s, func(m string) string {
		code = append(code, m)
		return fmt.Sprintf("\x00%d\x00", len(code)-1)
	})

	s = strongStars.ReplaceAllString(s, "$1")
	s = replaceBounded(strongUnder, s)
	s = emStar.ReplaceAllString(s, "$1")
	s = replaceBounded(emUnder, s)

	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		i, err := strconv.Atoi(strings.Trim(m, "\x00"))
		if err != nil || i >= len(code) {
			return m
		}
		return code[i]
	})
}

// replaceBounded applies a pattern whose first and last groups capture the
// boundary characters. Adjacent pairs share a boundary, so it repeats until
// nothing changes.
func replaceBounded(re *regexp.Regexp, s string) string {
	for {
		next := re.ReplaceAllString(s, "${1}${2}${3}")
		if next == s {
			return s
		}
		s = next
	}
}
