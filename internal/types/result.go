package types

import (
	"html"
	"time"
)

// ResultKind distinguishes successful renders from failures.
type ResultKind int

const (
	KindRendered ResultKind = iota
	KindFailure
)

// String returns the string representation of the ResultKind
func (k ResultKind) String() string {
	switch k {
	case KindRendered:
		return "rendered"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// RenderResult is one update produced by a session. A failure is still
// delivered to the viewer, so every accepted change produces something
// visible.
type RenderResult struct {
	Kind    ResultKind
	Markup  string
	Message string
	Path    string
	// Seq is the 1-based position of the result within its session.
	Seq uint64
	At  time.Time
}

// Rendered wraps successfully rendered markup.
func Rendered(markup string) RenderResult {
	return RenderResult{Kind: KindRendered, Markup: markup, At: time.Now()}
}

// Failure wraps a human-readable error message.
func Failure(message string) RenderResult {
	return RenderResult{Kind: KindFailure, Message: message, At: time.Now()}
}

// Failed reports whether the result carries an error message.
func (r RenderResult) Failed() bool {
	return r.Kind == KindFailure
}

// Body returns the payload to display. Failure messages are escaped and
// wrapped in a pre block.
func (r RenderResult) Body() string {
	if r.Kind == KindFailure {
		return `<pre class="glance-error">` + html.EscapeString(r.Message) + "</pre>"
	}
	return r.Markup
}
