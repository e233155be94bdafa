package assetgraph

import (
	"encoding/json"
	"fmt"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/forgeerr"
	"github.com/gruntwork-io/go-commons/errors"
)

// wireNode is the JSON-on-disk shape of asset_graph.json, named the way
// §6 requires (a single versioned, self-describing file). It is kept
// distinct from Node so the in-memory representation (sets, pointers)
// can evolve independently of the wire format as long as Version is
// bumped when it does.
type wireNode struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`

	// source / internal
	Digest string `json:"digest,omitempty"`

	// source
	PrimaryOutputs []string `json:"primaryOutputs,omitempty"`

	// generated
	Phase        int      `json:"phase,omitempty"`
	PrimaryInput string   `json:"primaryInput,omitempty"`
	IsHidden     bool     `json:"isHidden,omitempty"`
	WasOutput    bool     `json:"wasOutput,omitempty"`
	Result       bool     `json:"result,omitempty"`
	HasDigest    bool     `json:"hasDigest,omitempty"`
	Inputs       []string `json:"inputs,omitempty"`

	// glob
	Pattern string   `json:"pattern,omitempty"`
	Package string   `json:"package,omitempty"`
	Results []string `json:"results,omitempty"`

	// placeholder
	PlaceholderName string `json:"placeholderName,omitempty"`

	// postProcessAnchor
	AnchorSource string   `json:"anchorSource,omitempty"`
	Action       string   `json:"action,omitempty"`
	Outputs      []string `json:"outputs,omitempty"`
}

type wireGraph struct {
	Version int        `json:"version"`
	Nodes   []wireNode `json:"nodes"`
}

// Serialize encodes the graph to the versioned JSON form persisted at
// the path named in §6 (asset_graph.json).
func (g *Graph) Serialize() ([]byte, error) {
	wg := wireGraph{Version: CurrentVersion}
	for _, n := range g.All() {
		wg.Nodes = append(wg.Nodes, toWire(n))
	}
	data, err := json.MarshalIndent(wg, "", "  ")
	if err != nil {
		return nil, errors.WithStackTrace(err)
	}
	return data, nil
}

// Deserialize decodes a graph previously written by Serialize. If the
// stored version does not exactly match CurrentVersion, it returns a
// forgeerr.GraphVersionMismatch and no graph: this is the sole mechanism
// to evolve the format (§4.1) — callers must treat that error as "force
// a full rebuild," never attempt a partial load.
func Deserialize(data []byte) (*Graph, error) {
	var wg wireGraph
	if err := json.Unmarshal(data, &wg); err != nil {
		return nil, errors.WithStackTrace(err)
	}
	if wg.Version != CurrentVersion {
		return nil, forgeerr.GraphVersionMismatch{Stored: wg.Version, Current: CurrentVersion}
	}

	g := New()
	for _, wn := range wg.Nodes {
		n, err := fromWire(wn)
		if err != nil {
			return nil, errors.WithStackTrace(err)
		}
		g.Add(n)
	}
	return g, nil
}

func toWire(n *Node) wireNode {
	id := n.ID.String()
	w := wireNode{ID: id, Kind: n.Kind.String()}
	switch n.Kind {
	case KindSource:
		w.Digest = n.Source.Digest.String()
		w.PrimaryOutputs = idStrings(n.Source.PrimaryOutputs.Slice())
	case KindGenerated:
		w.Phase = n.Generated.Phase
		w.PrimaryInput = n.Generated.PrimaryInput.String()
		w.IsHidden = n.Generated.IsHidden
		w.WasOutput = n.Generated.WasOutput
		w.Result = n.Generated.Result
		w.HasDigest = n.Generated.HasDigest
		if n.Generated.HasDigest {
			w.Digest = n.Generated.Digest.String()
		}
		w.Inputs = idStrings(n.Generated.Inputs.Slice())
		w.PrimaryOutputs = idStrings(n.Generated.PrimaryOutputs.Slice())
	case KindInternal:
		w.Digest = n.Internal.Digest.String()
	case KindGlob:
		w.Pattern = n.Glob.Pattern
		w.Package = n.Glob.Package
		w.Phase = n.Glob.Phase
		w.Results = idStrings(n.Glob.Results)
	case KindPlaceholder:
		w.PlaceholderName = n.Placeholder.Name
	case KindPostProcessAnchor:
		w.AnchorSource = n.PostProcessAnchor.Source.String()
		w.Action = n.PostProcessAnchor.Action
		w.Outputs = idStrings(n.PostProcessAnchor.Outputs.Slice())
	case KindMissingSource:
		// tombstone: identity alone is the payload.
	}
	return w
}

func fromWire(w wireNode) (*Node, error) {
	id, err := asset.Parse(w.ID)
	if err != nil {
		return nil, err
	}

	switch w.Kind {
	case KindSource.String():
		digest, err := asset.ParseDigest(w.Digest)
		if err != nil {
			return nil, err
		}
		n := NewSource(id, digest)
		ids, err := parseIDs(w.PrimaryOutputs)
		if err != nil {
			return nil, err
		}
		for _, o := range ids {
			n.Source.PrimaryOutputs.Add(o)
		}
		return n, nil

	case KindGenerated.String():
		primaryInput, err := asset.Parse(w.PrimaryInput)
		if err != nil {
			return nil, err
		}
		n := NewGenerated(id, primaryInput, w.Phase, w.IsHidden)
		n.Generated.WasOutput = w.WasOutput
		n.Generated.Result = w.Result
		n.Generated.HasDigest = w.HasDigest
		if w.HasDigest {
			digest, err := asset.ParseDigest(w.Digest)
			if err != nil {
				return nil, err
			}
			n.Generated.Digest = digest
		}
		inputs, err := parseIDs(w.Inputs)
		if err != nil {
			return nil, err
		}
		for _, in := range inputs {
			n.Generated.Inputs.Add(in)
		}
		outputs, err := parseIDs(w.PrimaryOutputs)
		if err != nil {
			return nil, err
		}
		for _, o := range outputs {
			n.Generated.PrimaryOutputs.Add(o)
		}
		return n, nil

	case KindInternal.String():
		digest, err := asset.ParseDigest(w.Digest)
		if err != nil {
			return nil, err
		}
		return NewInternal(id, digest), nil

	case KindGlob.String():
		results, err := parseIDs(w.Results)
		if err != nil {
			return nil, err
		}
		return NewGlob(id, w.Pattern, w.Package, w.Phase, results), nil

	case KindPlaceholder.String():
		return NewPlaceholder(id, w.PlaceholderName), nil

	case KindPostProcessAnchor.String():
		source, err := asset.Parse(w.AnchorSource)
		if err != nil {
			return nil, err
		}
		n := NewAnchor(id, source, w.Action)
		outputs, err := parseIDs(w.Outputs)
		if err != nil {
			return nil, err
		}
		for _, o := range outputs {
			n.PostProcessAnchor.Outputs.Add(o)
		}
		return n, nil

	case KindMissingSource.String():
		return NewMissingSource(id), nil

	default:
		return nil, fmt.Errorf("assetgraph: unknown node kind %q in persisted graph", w.Kind)
	}
}

func idStrings(ids []asset.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseIDs(ss []string) ([]asset.ID, error) {
	out := make([]asset.ID, len(ss))
	for i, s := range ss {
		id, err := asset.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
