package builder

import (
	"bytes"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/phase"
)

// CombiningBuilder is a whole-package builder that globs a pattern and
// concatenates every match into a single output, in sorted path order —
// the "glob-then-single-output" shape the manifest builder's sibling
// exercises, used e.g. to bundle several partial templates into one
// generated file.
type CombiningBuilder struct {
	Pattern    string
	OutputPath string
}

const (
	defaultCombinePattern = "lib/**/*.partial"
	defaultCombineOutput  = "lib/combined.txt"
)

// NewCombiningBuilder is a phase.Factory; "pattern" and "output" are
// read from the phase's configured options, falling back to sane
// defaults when absent.
func NewCombiningBuilder(opts map[string]any) (phase.Builder, error) {
	pattern, _ := opts["pattern"].(string)
	if pattern == "" {
		pattern = defaultCombinePattern
	}
	output, _ := opts["output"].(string)
	if output == "" {
		output = defaultCombineOutput
	}
	return &CombiningBuilder{Pattern: pattern, OutputPath: output}, nil
}

// Build implements phase.Builder.
func (b *CombiningBuilder) Build(step phase.Step) error {
	in := step.InputID()

	ids, err := step.FindAssets(b.Pattern, "")
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, id := range ids {
		data, err := step.ReadAsBytes(id)
		if err != nil {
			continue
		}
		buf.Write(data)
		if len(data) == 0 || data[len(data)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}

	out := asset.New(in.Package, b.OutputPath)
	return step.WriteAsBytes(out, buf.Bytes())
}
