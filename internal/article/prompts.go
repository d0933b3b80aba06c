package article

import (
	"fmt"
	"strings"
)

const defaultSystemPrompt = `You are a blog author writing complete, self-contained articles in Markdown.

Start your answer with a metadata block exactly like this:
---
title: "<article title>"
description: "<one sentence summary>"
cover: ""
---

Then write the article body. Begin the body with "# " followed by the same title.
Use "##" for sections. Do not repeat the title or summary as labelled lines.
Do not wrap the answer in code fences.`

const articlePrompt = `Write a blog article of about %d words.

Topic: %s
Tags: %s
%s`

const sourcePrompt = `
Base the article on this reference material and cite it as the source (%s):

%s
`

const emojiPrompt = `Suggest two or three emoji that illustrate a blog article.

Title: %s
Tags: %s

Respond with ONLY the emoji characters, nothing else.`

// maxSourceChars bounds the reference text sent along with the prompt.
const maxSourceChars = 6000

func buildArticlePrompt(req Request, words int) string {
	if words <= 0 {
		words = 800
	}
	var source string
	if text := strings.TrimSpace(req.Source); text != "" {
		if r := []rune(text); len(r) > maxSourceChars {
			text = string(r[:maxSourceChars])
		}
		ref := req.SourceURL
		if ref == "" {
			ref = "reference"
		}
		source = fmt.Sprintf(sourcePrompt, ref, text)
	}
	return fmt.Sprintf(articlePrompt, words, req.Prompt, strings.Join(req.Tags, ", "), source)
}
