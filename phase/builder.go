package phase

import "github.com/buildforge/engine/asset"

// Step is the narrow surface a Builder needs from a BuildStep. It is
// declared here, rather than importing the buildstep package directly,
// so phase stays a leaf package: buildstep.Step satisfies this interface
// structurally (Go does not require an explicit implements clause).
type Step interface {
	InputID() asset.ID
	ReadAsBytes(id asset.ID) ([]byte, error)
	ReadAsString(id asset.ID) (string, error)
	CanRead(id asset.ID) bool
	WriteAsBytes(id asset.ID, data []byte) error
	WriteAsString(id asset.ID, s string) error
	FindAssets(pattern string, pkg string) ([]asset.ID, error)
	ReportUnusedAssets(ids []asset.ID)
}

// Builder is a pure function from a primary input to zero or more
// outputs with statically declared extensions (GLOSSARY).
type Builder interface {
	Build(step Step) error
}

// Factory constructs a Builder, given the per-builder options parsed out
// of a package's build configuration file (§6). A factory that returns
// an error is a setup-time failure (forgeerr.CannotBuild), per §7.
type Factory func(opts map[string]any) (Builder, error)
