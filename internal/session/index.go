package session

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"
)

const (
	documentPattern = "**/*.{md,markdown,mdown,mkd}"
	maxIndexEntries = 200
)

// isDir reports whether path names an existing directory.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// directoryIndex lists the documents below dir as markdown. A directory has
// no text of its own, so this stands in for it until a document changes.
func directoryIndex(dir string) (string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), documentPattern, doublestar.WithFilesOnly())
	if err != nil {
		return "", err
	}

	docs := lo.Reject(matches, func(path string, _ int) bool {
		return lo.SomeBy(strings.Split(path, "/"), func(part string) bool {
			return strings.HasPrefix(part, ".")
		})
	})
	slices.Sort(docs)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", filepath.Base(dir))

	if len(docs) == 0 {
		b.WriteString("No documents yet. Changes to files below this directory appear here.\n")
		return b.String(), nil
	}

	fmt.Fprintf(&b, "Watching %d document(s). Edit one to preview it.\n\n", len(docs))
	for _, doc := range lo.Slice(docs, 0, maxIndexEntries) {
		fmt.Fprintf(&b, "- `%s`\n", doc)
	}
	if extra := len(docs) - maxIndexEntries; extra > 0 {
		fmt.Fprintf(&b, "- and %d more\n", extra)
	}

	return b.String(), nil
}
