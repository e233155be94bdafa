package phase

import (
	"fmt"

	"github.com/buildforge/engine/forgeerr"
	"github.com/hashicorp/terraform/dag"
)

// InBuildPhase is one builder application slot (§4.2).
type InBuildPhase struct {
	BuilderKey          string
	Factory              Factory
	TargetPackageFilter  PackageFilter
	GenerateFor          InputSet
	IsOptional           bool
	HideOutput           bool
	Extensions           ExtensionMap
	Options              map[string]any

	// WholePackage marks a builder that runs once per package against
	// the synthetic "$package$" placeholder rather than once per
	// matching asset (§3, KindPlaceholder).
	WholePackage bool
}

// PostProcessAction is one action inside a PostBuildPhase, keyed by the
// anchor nodes it owns.
type PostProcessAction struct {
	Key       string
	AppliesTo InputSet
	Run       func(step Step) error
}

// PostBuildPhase is a list of post-process actions (§4.2).
type PostBuildPhase struct {
	Actions []PostProcessAction
}

// Kind discriminates the two Phase variants.
type Kind int

const (
	KindInBuild Kind = iota
	KindPostBuild
)

// Phase is one entry in the ordered list BuildPhases compiles (§4.2).
type Phase struct {
	Kind      Kind
	InBuild   *InBuildPhase
	PostBuild *PostBuildPhase
}

// In wraps an InBuildPhase as a Phase.
func In(p InBuildPhase) Phase { return Phase{Kind: KindInBuild, InBuild: &p} }

// Post wraps a PostBuildPhase as a Phase.
func Post(p PostBuildPhase) Phase { return Phase{Kind: KindPostBuild, PostBuild: &p} }

// Compile validates an ordered phase list and returns it unchanged if
// valid. It rejects, at configuration time, any builder whose declared
// output extensions would create a cycle back to an input extension —
// whether that is directly self-feeding (a builder reading its own
// declared output) or an indirect cycle through other builders (§4.2,
// §4.5). A legitimate chain (.txt → .1 → .2 → .3) is not a cycle and
// compiles cleanly.
func Compile(phases []Phase) ([]Phase, error) {
	g := dag.AcyclicGraph{}
	vertex := func(ext string) extVertex {
		v := extVertex(ext)
		g.Add(v)
		return v
	}

	for _, p := range phases {
		if p.Kind != KindInBuild {
			continue
		}
		for pattern, templates := range p.InBuild.Extensions {
			in := vertex(inputSuffix(pattern))
			for _, tmpl := range templates {
				out := vertex(outputSuffix(tmpl))
				g.Connect(&basicEdge{S: in, T: out})
			}
		}
	}

	if err := g.Validate(); err != nil {
		return nil, forgeerr.ArgumentError{Reason: fmt.Sprintf("builder extension cycle: %v", err)}
	}

	return phases, nil
}

// extVertex is a dag.Vertex identified by an extension suffix string.
type extVertex string

func (v extVertex) Hashcode() any { return string(v) }

// basicEdge is a minimal dag.Edge implementation, the same shape the
// teacher hand-rolls in config/config_graph.go rather than relying on a
// library-provided edge constructor.
type basicEdge struct {
	S, T dag.Vertex
}

func (e *basicEdge) Hashcode() any       { return fmt.Sprintf("%v-%v", e.S, e.T) }
func (e *basicEdge) Source() dag.Vertex  { return e.S }
func (e *basicEdge) Target() dag.Vertex  { return e.T }
