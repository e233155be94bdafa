package assetgraph

import "github.com/buildforge/engine/asset"

// MarkDirty marks a generated node dirty and recursively marks its
// transitive ComputeOutputs() closure dirty too (§4.1). Dirty is a
// build-local annotation, never persisted — a fresh load starts clean
// and lets InvalidationEngine recompute it.
func (g *Graph) MarkDirty(id asset.ID) {
	outputs := g.ComputeOutputs()
	g.markDirtyRec(id, outputs, map[asset.ID]struct{}{})
}

func (g *Graph) markDirtyRec(id asset.ID, outputs map[asset.ID][]asset.ID, seen map[asset.ID]struct{}) {
	if _, ok := seen[id]; ok {
		return
	}
	seen[id] = struct{}{}

	g.mu.Lock()
	g.dirty[id] = struct{}{}
	g.mu.Unlock()

	for _, consumer := range outputs[id] {
		g.markDirtyRec(consumer, outputs, seen)
	}
}

// IsDirty reports whether id is currently marked dirty.
func (g *Graph) IsDirty(id asset.ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.dirty[id]
	return ok
}

// ClearDirty unmarks id. Nothing in this module calls it; the scheduler
// does not read or clear the dirty set.
func (g *Graph) ClearDirty(id asset.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.dirty, id)
}

// DirtyIDs returns every currently-dirty id, sorted.
func (g *Graph) DirtyIDs() []asset.ID {
	g.mu.Lock()
	ids := make([]asset.ID, 0, len(g.dirty))
	for id := range g.dirty {
		ids = append(ids, id)
	}
	g.mu.Unlock()
	sortIDs(ids)
	return ids
}

// ReconcileSource updates a source node's digest, or converts it to a
// missingSource tombstone when newDigest is nil (the source was
// deleted). Either way, its primary outputs and their transitive
// dependents are marked dirty (§4.1).
func (g *Graph) ReconcileSource(id asset.ID, newDigest *asset.Digest) {
	n, ok := g.Get(id)
	if !ok {
		return
	}

	if newDigest == nil {
		g.dirtyPrimaryOutputs(n)
		g.Add(NewMissingSource(id))
		return
	}

	if n.Kind == KindMissingSource {
		// The source reappeared: nothing to compare against, so treat
		// it as changed and let readers that recorded the tombstone be
		// invalidated via ComputeOutputs (they recorded id as an input).
		g.Add(NewSource(id, *newDigest))
		g.MarkDirty(id)
		return
	}

	if n.Kind != KindSource {
		return
	}
	if n.Source.Digest == *newDigest {
		return
	}
	g.dirtyPrimaryOutputs(n)
	n.Source.Digest = *newDigest
}

func (g *Graph) dirtyPrimaryOutputs(n *Node) {
	var primaryOutputs IDSet
	switch n.Kind {
	case KindSource:
		primaryOutputs = n.Source.PrimaryOutputs
	case KindGenerated:
		primaryOutputs = n.Generated.PrimaryOutputs
	default:
		return
	}
	for out := range primaryOutputs {
		g.MarkDirty(out)
	}
	// The source/generated node itself is also an input other steps may
	// have recorded directly (e.g. a glob reading it); mark it dirty too
	// so ComputeOutputs' consumers of id itself are reached.
	g.MarkDirty(n.ID)
}
