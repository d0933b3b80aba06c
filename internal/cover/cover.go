// Package cover draws article cover images: white title text centered on a
// black canvas with the suggested emoji below it.
package cover

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/TobiSchelling/autoblog/internal/config"
)

const (
	margin        = 100
	maxTitleSize  = 72.0
	minTitleSize  = 32.0
	emojiSize     = 64.0
	tagSize       = 24.0
	blockSpacing  = 40
	lineSpacingPc = 125
)

// Spec is what one cover shows.
type Spec struct {
	Title string
	Tags  []string
	Emoji string
}

// Renderer draws covers of a fixed size. Parsed fonts are shared; faces are
// created per call because font.Face is not safe for concurrent use.
type Renderer struct {
	width, height int
	bold, regular *opentype.Font
	emoji         *opentype.Font
}

// NewRenderer parses the Go fonts and, if configured, an emoji-capable font.
func NewRenderer(cfg config.Cover) (*Renderer, error) {
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing bold font: %w", err)
	}
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing regular font: %w", err)
	}
	r := &Renderer{width: cfg.Width, height: cfg.Height, bold: bold, regular: regular, emoji: regular}
	if r.width <= 0 {
		r.width = 1200
	}
	if r.height <= 0 {
		r.height = 630
	}
	if cfg.EmojiFont != "" {
		data, err := os.ReadFile(cfg.EmojiFont)
		if err != nil {
			return nil, fmt.Errorf("reading emoji font: %w", err)
		}
		if r.emoji, err = opentype.Parse(data); err != nil {
			return nil, fmt.Errorf("parsing emoji font %s: %w", cfg.EmojiFont, err)
		}
	}
	return r, nil
}

// Render returns the cover as PNG bytes.
func (r *Renderer) Render(ctx context.Context, s Spec) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	title := strings.TrimSpace(drawable(r.bold, s.Title))
	emoji := strings.TrimSpace(drawable(r.emoji, s.Emoji))
	maxWidth := r.width - 2*margin

	titleFace, lines, err := r.fitTitle(title, maxWidth)
	if err != nil {
		return nil, err
	}
	defer titleFace.Close()
	titleLine := lineHeight(titleFace)

	var emojiFace font.Face
	emojiLine := 0
	if emoji != "" {
		if emojiFace, err = newFace(r.emoji, emojiSize); err != nil {
			return nil, err
		}
		defer emojiFace.Close()
		emojiLine = lineHeight(emojiFace) + blockSpacing
	}

	block := len(lines)*titleLine + emojiLine
	y := (r.height-block)/2 + titleFace.Metrics().Ascent.Ceil()
	for _, line := range lines {
		drawCentered(img, titleFace, line, r.width, y)
		y += titleLine
	}
	if emojiFace != nil {
		y += blockSpacing - titleLine + lineHeight(emojiFace)
		drawCentered(img, emojiFace, emoji, r.width, y)
	}

	if tags := tagLine(s.Tags); tags != "" {
		tagFace, err := newFace(r.regular, tagSize)
		if err != nil {
			return nil, err
		}
		defer tagFace.Close()
		drawCentered(img, tagFace, drawable(r.regular, tags), r.width, r.height-margin/2)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// fitTitle shrinks the title face until the wrapped text fits the canvas.
func (r *Renderer) fitTitle(title string, maxWidth int) (font.Face, []string, error) {
	available := r.height - 2*margin
	for size := maxTitleSize; ; size -= 8 {
		face, err := newFace(r.bold, size)
		if err != nil {
			return nil, nil, err
		}
		lines := Wrap(face, title, maxWidth)
		if len(lines)*lineHeight(face) <= available || size-8 < minTitleSize {
			return face, lines, nil
		}
		face.Close()
	}
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("creating font face: %w", err)
	}
	return face, nil
}

func lineHeight(face font.Face) int {
	return face.Metrics().Height.Ceil() * lineSpacingPc / 100
}

func drawCentered(dst draw.Image, face font.Face, text string, width, baseline int) {
	w := font.MeasureString(face, text).Ceil()
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P((width-w)/2, baseline),
	}
	d.DrawString(text)
}

// Wrap breaks text into lines no wider than maxWidth. Words longer than a
// line are split between runes.
func Wrap(face font.Face, text string, maxWidth int) []string {
	var lines []string
	var current string
	fits := func(s string) bool { return font.MeasureString(face, s).Ceil() <= maxWidth }

	for _, word := range strings.Fields(text) {
		for !fits(word) {
			head, tail := splitToFit(face, word, maxWidth)
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			lines = append(lines, head)
			word = tail
		}
		if word == "" {
			continue
		}
		switch {
		case current == "":
			current = word
		case fits(current + " " + word):
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

func splitToFit(face font.Face, word string, maxWidth int) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && font.MeasureString(face, string(runes[:n+1])).Ceil() <= maxWidth {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}

// drawable drops runes the font has no glyph for, so missing emoji glyphs do
// not render as boxes.
func drawable(f *opentype.Font, s string) string {
	var buf sfnt.Buffer
	var b strings.Builder
	for _, r := range s {
		if r == ' ' {
			b.WriteRune(r)
			continue
		}
		idx, err := f.GlyphIndex(&buf, r)
		if err != nil || idx == 0 {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tagLine(tags []string) string {
	var parts []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			parts = append(parts, "#"+strings.ReplaceAll(t, " ", ""))
		}
	}
	return strings.Join(parts, "  ")
}
