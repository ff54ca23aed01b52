package watcher

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"
)

// DefaultIgnore matches version control internals and editor scratch files.
var DefaultIgnore = []string{
	"**/.git/**",
	"**/*.swp",
	"**/*.swx",
	"**/*~",
	"**/.#*",
	"**/4913",
}

// Coalescer decides which raw events warrant a re-render.
//
// An event is accepted when it reports a data or metadata modification.
// Creation, removal, rename and access on their own are dropped. Events
// whose every path matches an ignore pattern are dropped too, except for
// events on the target itself.
type Coalescer struct {
	target string
	ignore []string
}

// NewCoalescer creates a Coalescer for target. Invalid patterns never match.
func NewCoalescer(target string, ignore []string) *Coalescer {
	return &Coalescer{
		target: absPath(target),
		ignore: lo.Filter(ignore, func(p string, _ int) bool { return doublestar.ValidatePattern(p) }),
	}
}

// Accept reports whether ev should trigger a re-render.
func (c *Coalescer) Accept(ev RawEvent) bool {
	if !ev.Op.Has(DataModify | MetadataModify) {
		return false
	}
	if len(c.ignore) == 0 || len(ev.Paths) == 0 {
		return true
	}
	return !lo.EveryBy(ev.Paths, c.ignored)
}

func (c *Coalescer) ignored(path string) bool {
	if c.target != "" && absPath(path) == c.target {
		return false
	}

	name := strings.TrimPrefix(filepath.ToSlash(path), "/")
	return lo.SomeBy(c.ignore, func(pattern string) bool {
		ok, err := doublestar.Match(pattern, name)
		return err == nil && ok
	})
}

func absPath(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
