package frontmatter

import (
	"fmt"
	"strings"
	"time"
)

// Result is a reconciled draft.
type Result struct {
	Header Header
	// Title is the final, possibly decorated, title.
	Title string
	// Body starts with "# " + Title.
	Body string
}

// Document renders the header, a blank line and the body.
func (r Result) Document() string {
	return Document(r.Header, r.Body)
}

// Reconciler merges a model draft with canonical date and tags.
// It holds no mutable state and is safe for concurrent use.
type Reconciler struct {
	policy Policy
	emoji  *emojiMatcher
}

// NewReconciler builds a reconciler for the given policy.
func NewReconciler(p Policy) *Reconciler {
	r := &Reconciler{policy: p}
	if p.Decorate {
		fallback := p.FallbackEmoji
		if fallback == "" {
			fallback = FallbackEmoji
		}
		r.emoji = newEmojiMatcher(p.EmojiRules, fallback)
	}
	return r
}

// Policy returns the policy the reconciler applies.
func (r *Reconciler) Policy() Policy {
	return r.policy
}

var dateLayouts = []string{time.DateOnly, time.RFC3339, time.DateTime}

// Reconcile produces a complete header and cleaned body from draft. Missing
// fields degrade to the policy fallbacks; only bad canonical values fail.
func (r *Reconciler) Reconcile(draft, date string, tags []string, prompt string) (Result, error) {
	date, err := checkDate(date)
	if err != nil {
		return Result{}, err
	}
	tags, err = checkTags(tags)
	if err != nil {
		return Result{}, err
	}

	fields := Extract(draft)
	body := Sanitize(fields.Body)

	title := strings.TrimSpace(StripEmphasis(fields.Title))
	if title == "" {
		title = FallbackTitle(body, r.policy.Placeholder)
	}
	description := strings.TrimSpace(StripEmphasis(fields.Description))
	if description == "" {
		description = FallbackDescription(body)
	}
	if description == "" {
		description = r.policy.describe(stripDecoration(title, r.emoji))
	}

	plain := title
	if r.emoji != nil {
		title = r.emoji.decorate(title, tags, prompt)
	}

	return Result{
		Header: Header{
			Title:       title,
			Description: description,
			Date:        date,
			Tags:        tags,
			Cover:       fields.Cover,
		},
		Title: title,
		Body:  withHeading(body, title, plain),
	}, nil
}

// CheckCanonical validates a canonical date and tag list without reconciling
// anything, so callers can reject a round before paying for generation.
func CheckCanonical(date string, tags []string) error {
	if _, err := checkDate(date); err != nil {
		return err
	}
	_, err := checkTags(tags)
	return err
}

func checkDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return "", fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, date); err == nil {
			return date, nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized date %q", ErrInvalidInput, date)
}

func checkTags(tags []string) ([]string, error) {
	if tags == nil {
		return nil, fmt.Errorf("%w: tags are required", ErrInvalidInput)
	}
	out := make([]string, 0, len(tags))
	for i, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || strings.ContainsAny(t, "\r\n") {
			return nil, fmt.Errorf("%w: tag %d is blank or spans lines", ErrInvalidInput, i)
		}
		out = append(out, t)
	}
	return out, nil
}

// stripDecoration removes a known emoji prefix so templates read naturally
// when a draft is reconciled a second time.
func stripDecoration(title string, m *emojiMatcher) string {
	if m == nil || !m.decorated(title) {
		return title
	}
	_, rest, _ := strings.Cut(title, " ")
	return rest
}

// withHeading makes body start with "# title". A leading top-level heading is
// replaced; otherwise the first top-level heading reading plain, the one the
// title was taken from, is dropped and the heading is prepended.
func withHeading(body, title, plain string) string {
	heading := "# " + title
	lines := strings.Split(body, "\n")
	if topHeading.MatchString(strings.TrimSpace(lines[0])) {
		lines = lines[1:]
	} else {
		for i, line := range lines {
			m := topHeading.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			if strings.TrimSpace(m[1]) == plain {
				lines = append(lines[:i:i], lines[i+1:]...)
			}
			break
		}
	}
	rest := strings.Trim(blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"), "\n")
	if rest == "" {
		return heading
	}
	return heading + "\n\n" + rest
}
