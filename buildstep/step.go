// Package buildstep implements the per-invocation façade a Builder reads
// and writes through (§4.4): BuildStep exposes reads, writes, globs, and
// unused-input reporting, and records every asset it touches so the
// graph can be updated once the step commits.
package buildstep

import (
	"fmt"
	"sort"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/assetgraph"
	"github.com/buildforge/engine/forgeerr"
	"github.com/buildforge/engine/rw"
)

// Resolver is the opaque capability forwarded to semantic analyzers
// external to this engine (§4.4); buildforge never inspects it.
type Resolver any

// Step is one builder invocation for a chosen (primaryInput, phase).
type Step struct {
	rw       *rw.ReaderWriter
	graph    *assetgraph.Graph
	pkg      string
	phase    int
	input    asset.ID
	outputs  []asset.ID
	hidden   bool
	resolver Resolver

	recorded   assetgraph.IDSet
	canReadMemo map[asset.ID]bool
	unused      assetgraph.IDSet
	staged      map[asset.ID][]byte

	// unrestricted lifts the AllowedOutputs check for post-process
	// actions (§4.2), which are not bound to a declared buildExtensions
	// contract the way InBuildPhase builders are — whatever they write
	// becomes an output of the anchor.
	unrestricted bool

	// onMiss, if set, gives the scheduler one chance to produce id
	// on demand (§4.5 escalation: an earlier phase's action, or an
	// optional phase's action it has not yet run) before a read or
	// canRead treats id as genuinely absent. It is tried at most once
	// per id per step.
	onMiss     func(id asset.ID)
	missTried  map[asset.ID]bool
}

// SetOnMiss installs the scheduler's on-demand escalation hook.
func (s *Step) SetOnMiss(fn func(id asset.ID)) { s.onMiss = fn }

// tryEscalate runs the escalation hook for id exactly once, returning
// true if it was invoked this call.
func (s *Step) tryEscalate(id asset.ID) bool {
	if s.onMiss == nil || s.missTried[id] {
		return false
	}
	s.missTried[id] = true
	s.onMiss(id)
	return true
}

// New constructs a Step for one (primaryInput, phase) builder
// invocation. allowedOutputs is the full set of outputs this builder is
// permitted to write for this input, derived from its ExtensionMap
// match.
func New(graph *assetgraph.Graph, readerWriter *rw.ReaderWriter, input asset.ID, phase int, allowedOutputs []asset.ID, hidden bool, resolver Resolver) *Step {
	return &Step{
		rw:          readerWriter,
		graph:       graph,
		pkg:         input.Package,
		phase:       phase,
		input:       input,
		outputs:     allowedOutputs,
		hidden:      hidden,
		resolver:    resolver,
		recorded:    assetgraph.IDSet{},
		canReadMemo: map[asset.ID]bool{},
		unused:      assetgraph.IDSet{},
		staged:      map[asset.ID][]byte{},
		missTried:   map[asset.ID]bool{},
	}
}

// NewPostProcess constructs a Step for a post-process action (§4.2):
// unlike an InBuildPhase builder, it has no pre-declared output set —
// any path it writes to becomes one of its outputs.
func NewPostProcess(graph *assetgraph.Graph, readerWriter *rw.ReaderWriter, input asset.ID, phase int) *Step {
	s := New(graph, readerWriter, input, phase, nil, false, nil)
	s.unrestricted = true
	return s
}

// InputID returns the primary input for this invocation.
func (s *Step) InputID() asset.ID { return s.input }

// AllowedOutputs returns the outputs this step may write.
func (s *Step) AllowedOutputs() []asset.ID { return append([]asset.ID(nil), s.outputs...) }

// Resolver returns the opaque semantic-analysis capability.
func (s *Step) Resolver() Resolver { return s.resolver }

func (s *Step) isOwnOutput(id asset.ID) bool {
	for _, o := range s.outputs {
		if o == id {
			return true
		}
	}
	return false
}

// record accumulates id into the step's recorded input set, unless id is
// one of this same step's own declared outputs — a builder reading its
// own declared output before writing it sees "not found" and must not
// gain a self-edge (§4.5, boundary behavior).
func (s *Step) record(id asset.ID) {
	if s.isOwnOutput(id) {
		return
	}
	s.recorded.Add(id)
}

// ReadAsBytes reads id, recording it as an input (including a negative
// result, which creates a missingSource tombstone). An explicit read of
// a non-existent asset raises AssetNotFound, as opposed to CanRead which
// answers false instead.
func (s *Step) ReadAsBytes(id asset.ID) ([]byte, error) {
	s.record(id)

	if s.isOwnOutput(id) {
		if data, ok := s.staged[id]; ok {
			return append([]byte(nil), data...), nil
		}
		return nil, forgeerr.AssetNotFound{Asset: id.String()}
	}

	data, err := s.rw.Read(id, s.pkg, s.phase)
	if err != nil {
		if _, ok := err.(forgeerr.AssetNotFound); ok {
			if s.tryEscalate(id) {
				if data2, err2 := s.rw.Read(id, s.pkg, s.phase); err2 == nil {
					return data2, nil
				}
			}
			s.recordMissing(id)
		}
		return nil, err
	}
	return data, nil
}

// ReadAsString reads id and decodes it as a string (UTF-8, the only
// encoding asset content uses in this engine).
func (s *Step) ReadAsString(id asset.ID) (string, error) {
	data, err := s.ReadAsBytes(id)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CanRead answers whether id exists and is visible, memoizing the
// answer for the lifetime of this step (§4.3: "a successful or negative
// canRead(id) is memoized per-step to prevent mid-step visibility
// changes"). It records id in the recorded-inputs set exactly like a
// read, including negative answers.
func (s *Step) CanRead(id asset.ID) bool {
	s.record(id)

	if memo, ok := s.canReadMemo[id]; ok {
		return memo
	}

	var ok bool
	if s.isOwnOutput(id) {
		_, ok = s.staged[id]
	} else {
		ok = s.rw.Exists(id, s.pkg, s.phase)
		if !ok && s.tryEscalate(id) {
			ok = s.rw.Exists(id, s.pkg, s.phase)
		}
		if !ok {
			s.recordMissing(id)
		}
	}
	s.canReadMemo[id] = ok
	return ok
}

func (s *Step) recordMissing(id asset.ID) {
	if !s.graph.Contains(id) {
		s.graph.Add(assetgraph.NewMissingSource(id))
	}
}

// WriteAsBytes stages bytes for id, validated against AllowedOutputs.
// The write is not visible on disk until the step commits; it is
// visible to this step's own later reads immediately (read-your-writes,
// §4.3/§5).
func (s *Step) WriteAsBytes(id asset.ID, data []byte) error {
	if !s.isOwnOutput(id) {
		if !s.unrestricted {
			return forgeerr.InvalidInput{Requester: s.pkg, Asset: id.String(), Reason: "not in this step's allowed outputs"}
		}
		s.outputs = append(s.outputs, id)
	}
	s.staged[id] = append([]byte(nil), data...)
	s.rw.StageWrite(id, data)
	return nil
}

// WriteAsString stages a string as UTF-8 bytes.
func (s *Step) WriteAsString(id asset.ID, text string) error {
	return s.WriteAsBytes(id, []byte(text))
}

// FindAssets resolves a glob pattern against pkg (or this step's own
// package if pkg is empty), recording a glob node as an input of this
// step (§4.4) and returning the matching ids.
func (s *Step) FindAssets(pattern string, pkg string) ([]asset.ID, error) {
	if pkg == "" {
		pkg = s.pkg
	}

	globID := asset.New(pkg, fmt.Sprintf("$glob$%s$%d", pattern, s.phase))
	s.record(globID)

	matches := s.matchGlob(pattern, pkg)

	node := assetgraph.NewGlob(globID, pattern, pkg, s.phase, matches)
	s.graph.Add(node)

	return matches, nil
}

func (s *Step) matchGlob(pattern, pkg string) []asset.ID {
	var out []asset.ID
	for _, n := range s.graph.All() {
		if n.ID.Package != pkg {
			continue
		}
		visible := false
		switch n.Kind {
		case assetgraph.KindSource:
			visible = true
		case assetgraph.KindGenerated:
			visible = n.Generated.Phase < s.phase && n.Generated.Result && n.Generated.WasOutput && !n.Generated.IsHidden
		default:
			visible = false
		}
		if !visible {
			continue
		}
		if ok, _ := matchPattern(pattern, n.ID.Path); ok {
			out = append(out, n.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// ReportUnusedAssets marks ids as not actually relevant to this step's
// output, so a later change to one of them does not trigger a rebuild —
// except for the primary input itself, which remains tracked for
// existence even if reported unused (§4.4, resolved Open Question in
// SPEC_FULL.md: "tests show it does not" omit existence tracking for the
// primary input).
func (s *Step) ReportUnusedAssets(ids []asset.ID) {
	for _, id := range ids {
		if id == s.input {
			continue
		}
		s.unused.Add(id)
	}
}
