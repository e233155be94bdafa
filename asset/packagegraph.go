package asset

import (
	"fmt"
	"sort"

	"github.com/gruntwork-io/go-commons/errors"
	"gopkg.in/yaml.v3"
)

// Package is one named node in a PackageGraph: a root directory on disk,
// the set of packages it depends on, and any globs that widen its public
// surface beyond lib/**.
type Package struct {
	Name                   string   `yaml:"-"`
	RootDir                string   `yaml:"root"`
	Dependencies           []string `yaml:"dependencies,omitempty"`
	AdditionalPublicAssets []string `yaml:"additional_public_assets,omitempty"`
}

// PackageGraph is the set of packages participating in a build, with a
// distinguished root package.
type PackageGraph struct {
	Root     string
	Packages map[string]Package
}

// packageGraphFile is the on-disk shape of package_graph.yaml: package
// name to its definition.
type packageGraphFile struct {
	Root     string             `yaml:"root"`
	Packages map[string]Package `yaml:"packages"`
}

// LoadPackageGraphYAML parses the package configuration file described in
// §6: a mapping from package name to its root URI (and, here, its
// dependency list and public-asset globs).
func LoadPackageGraphYAML(data []byte) (*PackageGraph, error) {
	var file packageGraphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.WithStackTrace(fmt.Errorf("parsing package graph: %w", err))
	}
	if file.Root == "" {
		return nil, errors.WithStackTrace(fmt.Errorf("package graph has no root package declared"))
	}
	if _, ok := file.Packages[file.Root]; !ok {
		return nil, errors.WithStackTrace(fmt.Errorf("root package %q is not declared in packages", file.Root))
	}

	pg := &PackageGraph{Root: file.Root, Packages: make(map[string]Package, len(file.Packages))}
	for name, pkg := range file.Packages {
		pkg.Name = name
		pg.Packages[name] = pkg
	}
	return pg, nil
}

// Names returns the package names in deterministic (sorted) order, used
// anywhere the engine needs to iterate packages reproducibly (§8 property
// 1, determinism).
func (g *PackageGraph) Names() []string {
	names := make([]string, 0, len(g.Packages))
	for name := range g.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Visible reports whether an asset identified by id is visible to code
// running in package "from", per §3/§4.3: always visible within its own
// package; visible across packages only under lib/** or a declared
// additional_public_assets glob.
func (g *PackageGraph) Visible(id ID, from string) bool {
	if id.Package == from {
		return true
	}
	if id.IsPublic() {
		return true
	}
	owner, ok := g.Packages[id.Package]
	if !ok {
		return false
	}
	for _, pattern := range owner.AdditionalPublicAssets {
		if matched, _ := matchGlob(pattern, id.Path); matched {
			return true
		}
	}
	return false
}

// DependsOn reports whether package "from" declares a dependency on
// package "on", directly.
func (g *PackageGraph) DependsOn(from, on string) bool {
	pkg, ok := g.Packages[from]
	if !ok {
		return false
	}
	for _, dep := range pkg.Dependencies {
		if dep == on {
			return true
		}
	}
	return false
}
