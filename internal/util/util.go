package util

import "strings"

// Pointer simply returns a pointer to the supplied value
func Pointer[T any](v T) *T {
	return &v
}

// SplitPath splits an absolute container path into its segments.
// "/" and "" yield no segments; repeated slashes are ignored.
func SplitPath(absPath string) []string {
	raw := strings.Split(absPath, "/")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// JoinPath joins a parent container path and a child name
func JoinPath(parent, name string) string {
	if parent == "" || parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
