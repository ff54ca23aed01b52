package watcher

import "strings"

// Op describes what happened to a path. Several bits may be set at once.
type Op uint32

const (
	Create Op = 1 << iota
	Remove
	DataModify
	MetadataModify
	Access
	Rename
)

var opNames = []struct {
	op   Op
	name string
}{
	{Create, "CREATE"},
	{Remove, "REMOVE"},
	{DataModify, "DATA_MODIFY"},
	{MetadataModify, "METADATA_MODIFY"},
	{Access, "ACCESS"},
	{Rename, "RENAME"},
}

// Has reports whether any bit of other is set in op.
func (op Op) Has(other Op) bool {
	return op&other != 0
}

// String returns the string representation of the Op
func (op Op) String() string {
	var names []string
	for _, n := range opNames {
		if op.Has(n.op) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, "|")
}

// RawEvent is a filesystem notification as reported by a backend.
type RawEvent struct {
	Op    Op
	Paths []string
}

// Path returns the first affected path, or "" when there is none.
func (e RawEvent) Path() string {
	if len(e.Paths) == 0 {
		return ""
	}
	return e.Paths[0]
}
