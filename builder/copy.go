// Package builder ships the concrete builder applications SPEC_FULL.md
// names as worked examples of the abstract Builder contract in §4.2:
// a per-asset copy builder, a whole-package digest-manifest builder, a
// glob-then-single-output combining builder, and a post-process
// signature-stamping action.
package builder

import (
	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/phase"
)

// CopyBuilder is the simplest possible builder: one input maps to one
// output, byte for byte, with a ".copy" suffix appended.
type CopyBuilder struct{}

// NewCopyBuilder is a phase.Factory; CopyBuilder takes no options.
func NewCopyBuilder(_ map[string]any) (phase.Builder, error) {
	return CopyBuilder{}, nil
}

// Build implements phase.Builder.
func (CopyBuilder) Build(step phase.Step) error {
	in := step.InputID()
	data, err := step.ReadAsBytes(in)
	if err != nil {
		return err
	}
	out := asset.New(in.Package, in.Path+".copy")
	return step.WriteAsBytes(out, data)
}
