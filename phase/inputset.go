// Package phase implements the compiled, ordered list of per-package
// builder applications described in §4.2: InBuildPhase, PostBuildPhase,
// their visibility/filter rules, and the static validation of builder
// output-extension contracts.
package phase

import "github.com/mattn/go-zglob"

// InputSet is an include/exclude glob pair, the same shape the teacher
// uses for "sources" and "generate_for" in its HCL configuration (§4.2,
// §6).
type InputSet struct {
	Include []string
	Exclude []string
}

// Matches reports whether path is selected by the input set: it must
// match at least one Include pattern (or Include must be empty, meaning
// "everything"), and must match none of the Exclude patterns.
func (s InputSet) Matches(path string) bool {
	if len(s.Exclude) > 0 {
		for _, pat := range s.Exclude {
			if ok, _ := zglob.Match(pat, path); ok {
				return false
			}
		}
	}
	if len(s.Include) == 0 {
		return true
	}
	for _, pat := range s.Include {
		if ok, _ := zglob.Match(pat, path); ok {
			return true
		}
	}
	return false
}

// PackageFilter selects packages by name glob, the targetPackageFilter
// of §4.2.
type PackageFilter struct {
	Include []string
	Exclude []string
}

// Matches reports whether a package name is selected.
func (f PackageFilter) Matches(pkg string) bool {
	if len(f.Exclude) > 0 {
		for _, pat := range f.Exclude {
			if ok, _ := zglob.Match(pat, pkg); ok {
				return false
			}
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, pat := range f.Include {
		if ok, _ := zglob.Match(pat, pkg); ok {
			return true
		}
	}
	return false
}
