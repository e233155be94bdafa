package invalidate

import "github.com/mattn/go-zglob"

func matchGlobPattern(pattern, path string) (bool, error) {
	return zglob.Match(pattern, path)
}
