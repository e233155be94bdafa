package assetgraph

import (
	"sort"
	"sync"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/phase"
)

// CurrentVersion is the graph's serialization version (§4.1). Bumping it
// is the sole sanctioned way to evolve the persisted format — there is no
// migration path; any mismatch on load forces a full rebuild.
const CurrentVersion = 1

// SourceReader reads the initial bytes of a source or internal asset so
// Build can compute its starting digest.
type SourceReader interface {
	ReadFile(id asset.ID) ([]byte, error)
}

// Graph is the in-memory dependency graph: source/generated/internal/
// glob/placeholder/anchor nodes plus the dirty set invalidation uses
// between builds. The reverse index (input → consumers) is deliberately
// not a field — ComputeOutputs recomputes it on demand (§9).
type Graph struct {
	mu    sync.Mutex
	nodes map[asset.ID]*Node
	dirty map[asset.ID]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: map[asset.ID]*Node{}, dirty: map[asset.ID]struct{}{}}
}

// Build constructs the initial graph (sources, internal inputs, and
// placeholders only — no generated nodes yet) for the given phases and
// package graph, per §4.1.
func Build(phases []phase.Phase, sources, internalSources []asset.ID, pg *asset.PackageGraph, reader SourceReader) (*Graph, error) {
	g := New()

	for _, id := range sources {
		content, err := reader.ReadFile(id)
		if err != nil {
			g.Add(NewMissingSource(id))
			continue
		}
		g.Add(NewSource(id, asset.Compute(id, content)))
	}

	for _, id := range internalSources {
		content, err := reader.ReadFile(id)
		digest := asset.Zero
		if err == nil {
			digest = asset.Compute(id, content)
		}
		g.Add(NewInternal(id, digest))
	}

	for name := range pg.Packages {
		g.Add(NewPlaceholder(asset.New(name, "$package$"), "$package$"))
		g.Add(NewPlaceholder(asset.New(name, "$lib$"), "$lib$"))
	}

	_ = phases // phases are not represented as nodes; they drive the scheduler, not the graph.
	return g, nil
}

// Add inserts or overwrites a node.
func (g *Graph) Add(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[n.ID] = n
}

// Get returns the node for id, if any.
func (g *Graph) Get(id asset.ID) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Contains reports whether id has a node in the graph.
func (g *Graph) Contains(id asset.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.nodes[id]
	return ok
}

// Remove deletes id's node entirely, together with its dirty mark.
func (g *Graph) Remove(id asset.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes, id)
	delete(g.dirty, id)
}

// All returns every node in the graph, in a deterministic order.
func (g *Graph) All() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// UpdatePostProcessBuildStep records the outputs produced by a
// post-process action against its owning anchor node.
func (g *Graph) UpdatePostProcessBuildStep(id asset.ID, outputs []asset.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok || n.Kind != KindPostProcessAnchor {
		return
	}
	for _, o := range outputs {
		n.PostProcessAnchor.Outputs.Add(o)
	}
}

// ComputeOutputs returns the reverse index input → consumers, built by
// scanning every generated node's recorded Inputs and every anchor's
// Source. It is always recomputed, never cached across calls, so a
// caller that mutates the graph and calls it again sees current state
// (§4.1, §9).
func (g *Graph) ComputeOutputs() map[asset.ID][]asset.ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	rev := map[asset.ID]IDSet{}
	ensure := func(in asset.ID) IDSet {
		s, ok := rev[in]
		if !ok {
			s = IDSet{}
			rev[in] = s
		}
		return s
	}

	for _, n := range g.nodes {
		switch n.Kind {
		case KindGenerated:
			for in := range n.Generated.Inputs {
				ensure(in).Add(n.ID)
			}
		case KindPostProcessAnchor:
			ensure(n.PostProcessAnchor.Source).Add(n.ID)
		}
	}

	out := make(map[asset.ID][]asset.ID, len(rev))
	for in, consumers := range rev {
		out[in] = consumers.Slice()
	}
	return out
}
