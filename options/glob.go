package options

import "github.com/mattn/go-zglob"

func matchFilter(pattern, path string) (bool, error) {
	return zglob.Match(pattern, path)
}
