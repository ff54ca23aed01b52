// Package renderer converts markdown text into displayable markup.
//
// Rendering never fails from the caller's point of view: a conversion error
// becomes a failure result carrying a human-readable message, so a broken
// document still produces something the viewer can see. Two renderers are
// provided. Markdown produces HTML for browser viewers and Terminal produces
// ANSI-styled text for the render command.
package renderer

import (
	"bytes"
	"io"
	"regexp"

	"github.com/charmbracelet/glamour"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/types"
)

// Renderer turns document text into a result.
type Renderer interface {
	Render(text string) types.RenderResult
}

// Options control markdown conversion.
type Options struct {
	// Dangerous passes raw HTML embedded in the document through to the
	// output. When false, raw HTML is dropped and the output is sanitized.
	Dangerous bool
	// Emoji expands :shortcode: sequences.
	Emoji bool
}

// converter is satisfied by goldmark.Markdown.
type converter interface {
	Convert(source []byte, writer io.Writer, opts ...parser.ParseOption) error
}

// Markdown renders GitHub-flavored markdown to HTML.
type Markdown struct {
	md     converter
	policy *bluemonday.Policy
}

// NewMarkdown creates an HTML renderer.
func NewMarkdown(opts Options) *Markdown {
	extensions := []goldmark.Extender{extension.GFM}
	if opts.Emoji {
		extensions = append(extensions, emoji.Emoji)
	}

	var rendererOpts []goldmark.Option
	if opts.Dangerous {
		rendererOpts = append(rendererOpts, goldmark.WithRendererOptions(html.WithUnsafe()))
	}

	m := &Markdown{
		md: goldmark.New(append(rendererOpts, goldmark.WithExtensions(extensions...))...),
	}
	if !opts.Dangerous {
		m.policy = gfmPolicy()
	}

	return m
}

// gfmPolicy is the UGC policy widened to keep what the GFM extensions emit:
// task list checkboxes, table cell alignment and fenced code languages.
func gfmPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
	p.AllowAttrs("checked", "disabled").OnElements("input")
	p.AllowStyles("text-align").OnElements("th", "td")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[\w+-]+$`)).OnElements("code")
	return p
}

// Render converts text. The same text with the same options always yields
// byte-identical markup.
func (m *Markdown) Render(text string) types.RenderResult {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		return types.Failure(errors.NewRenderError(err).Error())
	}

	if m.policy != nil {
		return types.Rendered(m.policy.Sanitize(buf.String()))
	}

	return types.Rendered(buf.String())
}

// Terminal renders markdown as ANSI-styled text.
type Terminal struct {
	tr *glamour.TermRenderer
}

// NewTerminal creates a terminal renderer wrapping at width columns.
func NewTerminal(width int) (*Terminal, error) {
	if width <= 0 {
		width = 80
	}

	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("notty"),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "failed to create terminal renderer", err)
	}

	return &Terminal{tr: tr}, nil
}

// Render converts text for display in a terminal.
func (t *Terminal) Render(text string) types.RenderResult {
	out, err := t.tr.Render(text)
	if err != nil {
		return types.Failure(errors.NewRenderError(err).Error())
	}
	return types.Rendered(out)
}
