package assetgraph

// Equal performs a structural comparison of two graphs, used by the
// serialize/deserialize bijectivity test (§8 property 4). Two graphs are
// equal when they have the same node ids and each pair of matching nodes
// has identical kind and payload; the dirty set is excluded, since it is
// explicitly build-local and never persisted.
func (g *Graph) Equal(other *Graph) bool {
	a, b := g.All(), other.All()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !nodesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func nodesEqual(a, b *Node) bool {
	if a.ID != b.ID || a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindSource:
		return a.Source.Digest == b.Source.Digest && setsEqual(a.Source.PrimaryOutputs, b.Source.PrimaryOutputs)
	case KindGenerated:
		ag, bg := a.Generated, b.Generated
		return ag.Phase == bg.Phase &&
			ag.PrimaryInput == bg.PrimaryInput &&
			ag.IsHidden == bg.IsHidden &&
			ag.WasOutput == bg.WasOutput &&
			ag.Result == bg.Result &&
			ag.HasDigest == bg.HasDigest &&
			(!ag.HasDigest || ag.Digest == bg.Digest) &&
			setsEqual(ag.Inputs, bg.Inputs) &&
			setsEqual(ag.PrimaryOutputs, bg.PrimaryOutputs)
	case KindInternal:
		return a.Internal.Digest == b.Internal.Digest
	case KindGlob:
		if a.Glob.Pattern != b.Glob.Pattern || a.Glob.Package != b.Glob.Package || a.Glob.Phase != b.Glob.Phase {
			return false
		}
		if len(a.Glob.Results) != len(b.Glob.Results) {
			return false
		}
		for i := range a.Glob.Results {
			if a.Glob.Results[i] != b.Glob.Results[i] {
				return false
			}
		}
		return true
	case KindPlaceholder:
		return a.Placeholder.Name == b.Placeholder.Name
	case KindPostProcessAnchor:
		return a.PostProcessAnchor.Source == b.PostProcessAnchor.Source &&
			a.PostProcessAnchor.Action == b.PostProcessAnchor.Action &&
			setsEqual(a.PostProcessAnchor.Outputs, b.PostProcessAnchor.Outputs)
	case KindMissingSource:
		return true
	default:
		return false
	}
}

func setsEqual(a, b IDSet) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b.Has(id) {
			return false
		}
	}
	return true
}
