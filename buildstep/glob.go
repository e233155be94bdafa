package buildstep

import "github.com/mattn/go-zglob"

func matchPattern(pattern, path string) (bool, error) {
	return zglob.Match(pattern, path)
}
