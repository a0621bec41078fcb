// Package richtext renders bot narrative text into safe HTML markup.
//
// Plain prose is always escaped. Only two link forms become anchors: the
// structured notation [[a|LABEL|URL]] and bare http(s):// or www. URLs.
package richtext

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	structuredLinkRe = regexp.MustCompile(`(?i)\[\[a\|([^|]+)\|([^\]]+)\]\]`)
	bareURLRe        = regexp.MustCompile(`(?i)(https?://[^\s)]+)|(\bwww\.[^\s)]+)`)
	placeholderRe    = regexp.MustCompile(`__A(\d+)__`)
	schemeRe         = regexp.MustCompile(`(?i)^https?://`)
)

// guard stands in for the first underscore of any placeholder-looking text
// already present in the input, so it cannot collide with a real placeholder.
// A guard rune already in the input is doubled, which keeps the round trip
// lossless.
const guard = "\uE000"

var (
	guardEncoder = strings.NewReplacer(guard, guard+guard, "__A", guard+"_A")
	guardDecoder = strings.NewReplacer(guard+guard, guard, guard+"_", "__")
)

// LinkDecorator rewrites an absolute URL before it is placed in an anchor.
type LinkDecorator interface {
	Decorate(rawURL string) string
}

// DecoratorFunc adapts a plain function to LinkDecorator.
type DecoratorFunc func(rawURL string) string

// Decorate calls f.
func (f DecoratorFunc) Decorate(rawURL string) string { return f(rawURL) }

// Renderer turns raw bot text into markup.
type Renderer struct {
	decorator LinkDecorator
}

// NewRenderer creates a renderer. decorator may be nil.
func NewRenderer(decorator LinkDecorator) *Renderer {
	return &Renderer{decorator: decorator}
}

// Escape escapes the five HTML-significant characters.
func Escape(s string) string {
	return html.EscapeString(s)
}

// NormalizeURL trims u and prefixes https:// when it carries no scheme.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if !schemeRe.MatchString(u) {
		u = "https://" + u
	}
	return u
}

// Render produces markup for raw.
//
// Structured links are pulled out of the raw string first and replaced by
// __A<i>__ placeholders, the remainder is escaped and auto-linked, and the
// placeholders are finally swapped for their anchors. The escape step must sit
// between extraction and re-insertion.
func (r *Renderer) Render(raw string) string {
	var anchors []string
	raw = guardEncoder.Replace(raw)
	text := structuredLinkRe.ReplaceAllStringFunc(raw, func(tok string) string {
		m := structuredLinkRe.FindStringSubmatch(tok)
		anchors = append(anchors, r.anchor(r.decorate(NormalizeURL(m[2])), m[1]))
		return "__A" + strconv.Itoa(len(anchors)-1) + "__"
	})

	safe := r.linkify(Escape(text))

	out := placeholderRe.ReplaceAllStringFunc(safe, func(tok string) string {
		m := placeholderRe.FindStringSubmatch(tok)
		i, err := strconv.Atoi(m[1])
		if err != nil || i < 0 || i >= len(anchors) {
			return tok
		}
		return anchors[i]
	})
	return guardDecoder.Replace(out)
}

// linkify wraps bare URLs found in already-escaped text. A match never
// extends over a placeholder, so anchors are not nested inside hrefs.
func (r *Renderer) linkify(escaped string) string {
	var b strings.Builder
	last := 0
	for _, loc := range bareURLRe.FindAllStringIndex(escaped, -1) {
		start, end := loc[0], loc[1]
		if start < last {
			continue
		}
		match := escaped[start:end]
		if ph := placeholderRe.FindStringIndex(match); ph != nil {
			end = start + ph[0]
			match = escaped[start:end]
		}
		if !hasURLBody(match) {
			continue
		}
		b.WriteString(escaped[last:start])
		href := html.UnescapeString(match)
		if !schemeRe.MatchString(href) {
			href = "https://" + href
		}
		b.WriteString(r.anchorEscapedLabel(r.decorate(href), match))
		last = end
	}
	b.WriteString(escaped[last:])
	return b.String()
}

func hasURLBody(m string) bool {
	lower := strings.ToLower(m)
	for _, p := range []string{"https://", "http://", "www."} {
		if strings.HasPrefix(lower, p) {
			return len(lower) > len(p)
		}
	}
	return false
}

func (r *Renderer) decorate(u string) string {
	if r.decorator == nil {
		return u
	}
	return r.decorator.Decorate(u)
}

func (r *Renderer) anchor(href, label string) string {
	return r.anchorEscapedLabel(href, Escape(label))
}

func (r *Renderer) anchorEscapedLabel(href, escapedLabel string) string {
	return `<a class="cb-link" href="` + Escape(href) + `" target="_blank" rel="noopener">` + escapedLabel + `</a>`
}

// Anchor is one link recovered from rendered markup.
type Anchor struct {
	Href  string
	Label string
}

var anchorRe = regexp.MustCompile(`<a class="cb-link" href="([^"]*)" target="_blank" rel="noopener">(.*?)</a>`)

// Anchors lists the anchors of markup produced by Render, with href and
// label unescaped.
func Anchors(markup string) []Anchor {
	var out []Anchor
	for _, m := range anchorRe.FindAllStringSubmatch(markup, -1) {
		out = append(out, Anchor{Href: html.UnescapeString(m[1]), Label: html.UnescapeString(m[2])})
	}
	return out
}
