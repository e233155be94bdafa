package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/buildforge/engine/asset"
)

// diskScanner walks a package's root directory on the real filesystem,
// the disk-backed half of invalidate.Scanner and assetgraph.SourceReader
// — the engine core stays agnostic of *how* sources are enumerated
// (invalidate/engine.go), and this is where that OS-level concern lives,
// same as the teacher's util.FileExists/os.ReadFile calls live in its
// outermost cli package rather than in config parsing.
type diskScanner struct {
	cacheDir string
}

// skipDir reports whether name should never be descended into while
// scanning a package for sources: engine-owned state and the usual VCS
// noise.
func skipDir(name string) bool {
	switch name {
	case ".git", ".forge", "node_modules":
		return true
	}
	return false
}

// Sources implements invalidate.Scanner.
func (s *diskScanner) Sources(pkg asset.Package) ([]asset.ID, error) {
	var out []asset.ID
	root := pkg.RootDir
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != root && (skipDir(d.Name()) || path == s.cacheDir) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = strings.ReplaceAll(rel, string(filepath.Separator), "/")
		out = append(out, asset.New(pkg.Name, rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadFile implements assetgraph.SourceReader, reading straight off disk
// by resolving id against the package's root directory.
type diskReader struct {
	packages map[string]asset.Package
}

func (r *diskReader) ReadFile(id asset.ID) ([]byte, error) {
	pkg, ok := r.packages[id.Package]
	if !ok {
		return nil, os.ErrNotExist
	}
	return os.ReadFile(filepath.Join(pkg.RootDir, id.Path))
}
