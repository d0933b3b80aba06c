package frontmatter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidInput reports a caller contract violation: missing or malformed
// canonical date or tags.
var ErrInvalidInput = errors.New("invalid input")

// Policy holds the fallback rules applied when a draft is missing fields.
type Policy struct {
	Version string
	// Placeholder is the title used when the draft has no usable text.
	Placeholder string
	// DescriptionTemplate receives the resolved title through %s.
	DescriptionTemplate string
	// LowercaseTemplateTitle lowercases the title before templating.
	LowercaseTemplateTitle bool
	// Decorate enables the topic emoji prefix on titles.
	Decorate      bool
	EmojiRules    []EmojiRule
	FallbackEmoji string
}

// DefaultPolicyVersion is used when the configuration leaves the policy empty.
const DefaultPolicyVersion = "v2"

var policies = map[string]Policy{
	"v1": {
		Version:             "v1",
		Placeholder:         "Untitled Article",
		DescriptionTemplate: "An article about %s.",
	},
	"v2": {
		Version:                "v2",
		Placeholder:            "Untitled Article",
		DescriptionTemplate:    "Learn more about %s.",
		LowercaseTemplateTitle: true,
		Decorate:               true,
		EmojiRules:             DefaultEmojiRules,
		FallbackEmoji:          FallbackEmoji,
	},
}

// LookupPolicy returns the named policy version.
func LookupPolicy(version string) (Policy, error) {
	if version == "" {
		version = DefaultPolicyVersion
	}
	p, ok := policies[version]
	if !ok {
		return Policy{}, fmt.Errorf("unknown fallback policy %q (known: %s)", version, strings.Join(PolicyVersions(), ", "))
	}
	return p, nil
}

// PolicyVersions lists the registered policy versions.
func PolicyVersions() []string {
	var out []string
	for v := range policies {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (p Policy) describe(title string) string {
	if p.LowercaseTemplateTitle {
		title = strings.ToLower(title)
	}
	return fmt.Sprintf(p.DescriptionTemplate, title)
}
