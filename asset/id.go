// Package asset defines the stable identity of a buildforge asset and the
// package adjacency it lives within.
package asset

import (
	"fmt"
	"strings"
)

// LibDir is the well-known path prefix that makes an asset public across
// packages. Everything else is private to its owning package unless the
// owning package's configuration lists it under additional_public_assets.
const LibDir = "lib/"

// ID is the stable identity of an asset: a package name paired with a
// forward-slash path relative to that package's root.
type ID struct {
	Package string
	Path    string
}

// New builds an ID, normalizing the path to forward slashes.
func New(pkg, path string) ID {
	return ID{Package: pkg, Path: strings.ReplaceAll(path, `\`, "/")}
}

// String renders the identity string form `<package>|<path>` from §6.
func (id ID) String() string {
	return id.Package + "|" + id.Path
}

// HiddenString renders the `$$<package>|<path>` form used by external
// callers to reference a hidden (cache-located) output explicitly.
func (id ID) HiddenString() string {
	return "$$" + id.String()
}

// Parse parses the `<package>|<path>` string form produced by String.
func Parse(s string) (ID, error) {
	s = strings.TrimPrefix(s, "$$")
	pkg, path, ok := strings.Cut(s, "|")
	if !ok {
		return ID{}, fmt.Errorf("asset: %q is not a valid identity string, want <package>|<path>", s)
	}
	return ID{Package: pkg, Path: path}, nil
}

// IsPublic reports whether the path falls under the well-known lib/ space.
func (id ID) IsPublic() bool {
	return strings.HasPrefix(id.Path, LibDir)
}

// PackageURI renders the `package:` URI form for assets under lib/, the
// form other packages use to reference this asset. Callers must check
// IsPublic first; PackageURI does not itself enforce the lib/ prefix so
// that additional_public_assets can reuse it.
func (id ID) PackageURI() string {
	rel := strings.TrimPrefix(id.Path, LibDir)
	return fmt.Sprintf("package:%s/%s", id.Package, rel)
}

// Ext returns the full, possibly multi-dot, extension of the path — e.g.
// "txt.copy" for "a/b.txt.copy" — matching the way buildExtensions
// patterns are matched against an asset's suffix.
func (id ID) Ext() string {
	base := id.Path
	if slash := strings.LastIndexByte(base, '/'); slash >= 0 {
		base = base[slash+1:]
	}
	dot := strings.IndexByte(base, '.')
	if dot < 0 {
		return ""
	}
	return base[dot+1:]
}

// WithExt returns a new ID in the same package with the extension ext
// substituted in place of the current one. If the current path has no
// extension, ext is appended after a dot.
func (id ID) WithExt(ext string) ID {
	base := id.Path
	dot := strings.IndexByte(lastComponent(base), '.')
	if dot < 0 {
		return ID{Package: id.Package, Path: base + "." + ext}
	}
	slash := strings.LastIndexByte(base, '/')
	prefix := base[:slash+1]
	name := base[slash+1:]
	nameDot := strings.IndexByte(name, '.')
	return ID{Package: id.Package, Path: prefix + name[:nameDot+1] + ext}
}

func lastComponent(path string) string {
	if slash := strings.LastIndexByte(path, '/'); slash >= 0 {
		return path[slash+1:]
	}
	return path
}
