package asset

import "github.com/mattn/go-zglob"

// matchGlob reports whether path matches pattern, using the same
// "**" recursive-glob semantics zglob.Glob applies when listing files on
// disk, but against an in-memory path string rather than the filesystem.
func matchGlob(pattern, path string) (bool, error) {
	return zglob.Match(pattern, path)
}
