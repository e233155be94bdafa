package builder

import (
	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/codegen"
	"github.com/buildforge/engine/phase"
)

// NewStampAction returns a post-process action (§4.2) that writes a copy
// of every source it applies to, with buildforge's signature line
// prepended, to "<source path>.stamped",
// grounded on codegen.WriteToFile's signature idiom but routed through
// Step.WriteAsBytes rather than the filesystem directly, since a
// post-process action's writes are still staged and committed through
// the normal ReaderWriter pipeline (§5).
func NewStampAction(commentPrefix string) func(phase.Step) error {
	return func(step phase.Step) error {
		source := step.InputID()
		data, err := step.ReadAsBytes(source)
		if err != nil {
			// The source may have been removed since this post-build
			// phase was scheduled; nothing to stamp.
			return nil
		}

		stamped := codegen.Stamp(codegen.GenerateConfig{
			CommentPrefix: commentPrefix,
			Contents:      string(data),
		})

		outID := asset.New(source.Package, source.Path+".stamped")
		return step.WriteAsString(outID, stamped)
	}
}
