// Package assetgraph implements the in-memory dependency graph of
// source, generated, internal, glob, and placeholder nodes described in
// §3–§4.1, along with its serialization and invalidation primitives.
package assetgraph

import "github.com/buildforge/engine/asset"

// Kind discriminates the AssetNode variants from §3. Every piece of code
// that branches on node type switches on Kind rather than relying on a
// subclass hierarchy (§9, "discriminated node union").
type Kind int

const (
	// KindSource is an on-disk input discovered by the filesystem scan.
	KindSource Kind = iota
	// KindGenerated is produced by a builder application.
	KindGenerated
	// KindMissingSource is a tombstone for an AssetId that was read but
	// does not exist, retained so its later creation invalidates readers.
	KindMissingSource
	// KindInternal is an engine-owned input (package config, build
	// config) whose change forces a full rebuild.
	KindInternal
	// KindGlob is a memoized glob resolution.
	KindGlob
	// KindPlaceholder is a synthetic primary input like $package$ or
	// $lib$ for whole-package builders.
	KindPlaceholder
	// KindPostProcessAnchor owns the outputs of one (source, action)
	// post-process pair.
	KindPostProcessAnchor
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindGenerated:
		return "generated"
	case KindMissingSource:
		return "missingSource"
	case KindInternal:
		return "internal"
	case KindGlob:
		return "glob"
	case KindPlaceholder:
		return "placeholder"
	case KindPostProcessAnchor:
		return "postProcessAnchor"
	default:
		return "unknown"
	}
}

// IDSet is a deterministic set of asset IDs, ordered by String() so that
// serialization is reproducible (§8 property 1: determinism).
type IDSet map[asset.ID]struct{}

// NewIDSet builds an IDSet from the given ids.
func NewIDSet(ids ...asset.ID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s IDSet) Add(id asset.ID) { s[id] = struct{}{} }

// Remove deletes id from the set.
func (s IDSet) Remove(id asset.ID) { delete(s, id) }

// Has reports whether id is a member.
func (s IDSet) Has(id asset.ID) bool {
	_, ok := s[id]
	return ok
}

// Slice returns the set's members sorted by string form.
func (s IDSet) Slice() []asset.ID {
	out := make([]asset.ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []asset.ID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1].String() > ids[j].String(); j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// SourcePayload is the KindSource variant of Node.
type SourcePayload struct {
	Digest        asset.Digest
	PrimaryOutputs IDSet
}

// GeneratedPayload is the KindGenerated variant of Node.
type GeneratedPayload struct {
	Phase          int
	PrimaryInput   asset.ID
	IsHidden       bool
	WasOutput      bool
	Result         bool
	HasDigest      bool
	Digest         asset.Digest
	Inputs         IDSet
	PrimaryOutputs IDSet
}

// MissingSourcePayload is the KindMissingSource variant; it carries no
// data beyond the node's identity — its presence in the graph is the
// tombstone.
type MissingSourcePayload struct{}

// InternalPayload is the KindInternal variant: package config, build
// config, and builder-binary identity inputs.
type InternalPayload struct {
	Digest asset.Digest
}

// GlobPayload is the KindGlob variant.
type GlobPayload struct {
	Pattern string
	Package string
	Phase   int
	Results []asset.ID
}

// PlaceholderPayload is the KindPlaceholder variant ($package$, $lib$).
type PlaceholderPayload struct {
	Name string
}

// AnchorPayload is the KindPostProcessAnchor variant.
type AnchorPayload struct {
	Source  asset.ID
	Action  string
	Outputs IDSet
}

// Node is a tagged variant: exactly one of the payload fields matching
// Kind is populated. Downstream code is expected to switch on Kind
// rather than type-assert; this mirrors the data model of §3 directly
// instead of a base/subclass hierarchy (§9).
type Node struct {
	ID   asset.ID
	Kind Kind

	Source            *SourcePayload
	Generated         *GeneratedPayload
	MissingSource     *MissingSourcePayload
	Internal          *InternalPayload
	Glob              *GlobPayload
	Placeholder       *PlaceholderPayload
	PostProcessAnchor *AnchorPayload
}

// NewSource builds a KindSource node.
func NewSource(id asset.ID, digest asset.Digest) *Node {
	return &Node{ID: id, Kind: KindSource, Source: &SourcePayload{Digest: digest, PrimaryOutputs: IDSet{}}}
}

// NewMissingSource builds a KindMissingSource tombstone node.
func NewMissingSource(id asset.ID) *Node {
	return &Node{ID: id, Kind: KindMissingSource, MissingSource: &MissingSourcePayload{}}
}

// NewInternal builds a KindInternal node.
func NewInternal(id asset.ID, digest asset.Digest) *Node {
	return &Node{ID: id, Kind: KindInternal, Internal: &InternalPayload{Digest: digest}}
}

// NewPlaceholder builds a KindPlaceholder node, e.g. for "$package$".
func NewPlaceholder(id asset.ID, name string) *Node {
	return &Node{ID: id, Kind: KindPlaceholder, Placeholder: &PlaceholderPayload{Name: name}}
}

// NewGenerated builds a pending KindGenerated node for the given
// (primaryInput, phase) pair — invariant 4 in §3: at most one such node
// per builder application.
func NewGenerated(id, primaryInput asset.ID, phase int, hidden bool) *Node {
	return &Node{
		ID:   id,
		Kind: KindGenerated,
		Generated: &GeneratedPayload{
			Phase:        phase,
			PrimaryInput: primaryInput,
			IsHidden:     hidden,
			Inputs:       IDSet{},
			PrimaryOutputs: IDSet{},
		},
	}
}

// NewGlob builds a KindGlob node recording a resolved pattern.
func NewGlob(id asset.ID, pattern, pkg string, phase int, results []asset.ID) *Node {
	return &Node{ID: id, Kind: KindGlob, Glob: &GlobPayload{Pattern: pattern, Package: pkg, Phase: phase, Results: results}}
}

// NewAnchor builds a KindPostProcessAnchor node for one (source, action)
// pair.
func NewAnchor(id, source asset.ID, action string) *Node {
	return &Node{ID: id, Kind: KindPostProcessAnchor, PostProcessAnchor: &AnchorPayload{Source: source, Action: action, Outputs: IDSet{}}}
}

// Clone returns a deep-enough copy of n so that mutating the copy never
// touches n — used when a step stages mutations that are only applied to
// the graph on commit (§4.4, §5 "steps buffer their mutations").
func (n *Node) Clone() *Node {
	c := *n
	switch n.Kind {
	case KindSource:
		s := *n.Source
		s.PrimaryOutputs = cloneSet(n.Source.PrimaryOutputs)
		c.Source = &s
	case KindGenerated:
		g := *n.Generated
		g.Inputs = cloneSet(n.Generated.Inputs)
		g.PrimaryOutputs = cloneSet(n.Generated.PrimaryOutputs)
		c.Generated = &g
	case KindInternal:
		i := *n.Internal
		c.Internal = &i
	case KindGlob:
		gl := *n.Glob
		gl.Results = append([]asset.ID(nil), n.Glob.Results...)
		c.Glob = &gl
	case KindPlaceholder:
		p := *n.Placeholder
		c.Placeholder = &p
	case KindPostProcessAnchor:
		a := *n.PostProcessAnchor
		a.Outputs = cloneSet(n.PostProcessAnchor.Outputs)
		c.PostProcessAnchor = &a
	case KindMissingSource:
		m := *n.MissingSource
		c.MissingSource = &m
	}
	return &c
}

func cloneSet(s IDSet) IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}
