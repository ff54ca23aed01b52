// Package types holds the values that flow through the preview pipeline.
// It has no dependencies so every layer can share it.
package types

// WatchTarget identifies the file a session observes and how its content may
// be rendered. It is immutable once built.
type WatchTarget struct {
	path      string
	dangerous bool
}

// NewWatchTarget builds a target. When dangerous is true, raw HTML embedded in
// the source is passed through to viewers unescaped.
func NewWatchTarget(path string, dangerous bool) WatchTarget {
	return WatchTarget{path: path, dangerous: dangerous}
}

// Path returns the watched path as given.
func (t WatchTarget) Path() string { return t.path }

// Dangerous reports whether raw HTML passthrough is enabled.
func (t WatchTarget) Dangerous() bool { return t.dangerous }
