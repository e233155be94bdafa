package buildstep

import (
	"fmt"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/assetgraph"
	"github.com/buildforge/engine/forgeerr"
	"github.com/buildforge/engine/phase"
)

// Result is the outcome of one builder invocation.
type Result struct {
	Input   asset.ID
	Outputs []asset.ID
	Failed  bool
	Err     error
}

// Run invokes builder.Build(step), recovers a panic as a BuilderFailure,
// and commits the step's effects to the graph and the filesystem (§4.4,
// §5). On failure, staged writes are discarded and the filesystem is
// left untouched, but the recorded inputs are kept so a later change to
// one of them re-triggers the failing step.
func Run(step *Step, builderKey string, builder phase.Builder) (res Result) {
	res.Input = step.input
	res.Outputs = append([]asset.ID(nil), step.outputs...)

	err := runBuilder(builder, step)
	if err != nil {
		res.Failed = true
		res.Err = forgeerr.BuilderFailure{Builder: builderKey, Input: step.input.String(), Cause: err}
		step.commitFailure()
		return res
	}

	step.commitSuccess()
	return res
}

func runBuilder(builder phase.Builder, step *Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return builder.Build(step)
}

func (s *Step) inputsForCommit() assetgraph.IDSet {
	final := assetgraph.IDSet{}
	for id := range s.recorded {
		if s.unused.Has(id) {
			continue
		}
		final.Add(id)
	}
	return final
}

func (s *Step) commitFailure() {
	for _, o := range s.outputs {
		s.rw.Discard(o)
		node := assetgraph.NewGenerated(o, s.input, s.phase, s.hidden)
		node.Generated.Inputs = s.inputsForCommit()
		node.Generated.Result = false
		node.Generated.WasOutput = false
		s.graph.Add(node)
	}
	s.recordPrimaryOutputs()
}

func (s *Step) commitSuccess() {
	inputs := s.inputsForCommit()
	for _, o := range s.outputs {
		node := assetgraph.NewGenerated(o, s.input, s.phase, s.hidden)
		node.Generated.Inputs = inputs
		node.Generated.Result = true

		if _, ok := s.staged[o]; ok {
			digest, err := s.rw.Commit(o, s.phase, s.hidden)
			if err != nil {
				node.Generated.Result = false
				node.Generated.WasOutput = false
			} else {
				node.Generated.WasOutput = true
				node.Generated.HasDigest = true
				node.Generated.Digest = digest
			}
		} else {
			// Overdeclared: the builder never wrote this output. It
			// must not be treated as an input by later steps even if
			// referenced (§4.4) — callers achieve that by checking
			// WasOutput before using a generated node as a dependency.
			node.Generated.WasOutput = false
		}

		s.graph.Add(node)
	}
	s.recordPrimaryOutputs()
}

func (s *Step) recordPrimaryOutputs() {
	primary, ok := s.graph.Get(s.input)
	if !ok {
		return
	}
	var set assetgraph.IDSet
	switch primary.Kind {
	case assetgraph.KindSource:
		set = primary.Source.PrimaryOutputs
	case assetgraph.KindGenerated:
		set = primary.Generated.PrimaryOutputs
	default:
		return
	}
	for _, o := range s.outputs {
		set.Add(o)
	}
}
