// Package page renders the HTML shell a browser loads to view a document.
// The shell holds no document content; it connects to the stream endpoint
// and htmx swaps every pushed result into the body.
package page

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/a-h/templ"
)

const (
	htmxURL    = "https://unpkg.com/htmx.org@2.0.3"
	htmxSSEURL = "https://unpkg.com/htmx-ext-sse@2.2.2/sse.js"
)

// Params configure the shell.
type Params struct {
	// File is the document path relative to the server root, with forward
	// slashes.
	File string
	// Stylesheet is an optional URL of an extra stylesheet.
	Stylesheet string
	// Dark selects the dark color scheme.
	Dark bool
}

// StreamURL returns the SSE endpoint for file.
func StreamURL(file string) string {
	return "/sse/" + escapeSegments(file)
}

// SocketURL returns the websocket endpoint for file.
func SocketURL(file string) string {
	return "/ws/" + escapeSegments(file)
}

func escapeSegments(file string) string {
	segments := strings.Split(strings.TrimPrefix(file, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// Page returns the viewer shell for p.File.
func Page(p Params) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		scheme := "light"
		if p.Dark {
			scheme = "dark"
		}

		title := path.Base(p.File)
		if title == "." || title == "/" {
			title = "glance"
		}

		if _, err := fmt.Fprintf(w, "<!doctype html>\n<html lang=\"en\">\n<head>\n"+
			"<meta charset=\"utf-8\">\n"+
			"<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n"+
			"<title>%s</title>\n"+
			"<script src=\"%s\"></script>\n"+
			"<script src=\"%s\"></script>\n",
			templ.EscapeString(title), htmxURL, htmxSSEURL); err != nil {
			return err
		}

		if _, err := fmt.Fprintf(w, "<style>\n:root { color-scheme: %s; }\n%s</style>\n", scheme, baseCSS); err != nil {
			return err
		}

		if p.Stylesheet != "" {
			if _, err := fmt.Fprintf(w, "<link rel=\"stylesheet\" href=\"%s\">\n", templ.EscapeString(p.Stylesheet)); err != nil {
				return err
			}
		}

		_, err := fmt.Fprintf(w, "</head>\n<body>\n<main class=\"glance-document\">\n"+
			"<article id=\"glance-content\" hx-ext=\"sse\" sse-connect=\"%s\" sse-swap=\"body\">Loading...</article>\n"+
			"</main>\n</body>\n</html>\n",
			templ.EscapeString(StreamURL(p.File)))
		return err
	})
}

const baseCSS = `body {
  margin: 0;
  padding: 2rem 1rem;
  font-family: system-ui, -apple-system, "Segoe UI", sans-serif;
  line-height: 1.6;
}
.glance-document {
  max-width: 46rem;
  margin: 0 auto;
}
pre {
  overflow-x: auto;
  padding: 0.75rem 1rem;
  font-size: 0.9rem;
  background: light-dark(#f1f1f1, #2b2b2b);
  border-left: 4px solid #d9822b;
}
code {
  font-family: ui-monospace, "SFMono-Regular", Menlo, monospace;
}
blockquote {
  margin: 1rem 0;
  padding: 0.5rem 1.25rem;
  border-left: 4px solid #4f9d8a;
  background: light-dark(#f1f1f1, #2b2b2b);
}
table {
  border-collapse: collapse;
}
th, td {
  padding: 0.25rem 0.75rem;
  border: 1px solid light-dark(#d0d0d0, #555555);
}
.glance-error {
  color: light-dark(#a40000, #ff8080);
  border-left-color: #c00000;
}
`
