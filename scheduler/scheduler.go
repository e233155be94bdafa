// Package scheduler implements the build orchestrator from §4.5: it
// walks the compiled phase list, runs one buildstep.Step per matching
// primary input, and — on a read that misses because its producer
// hasn't run yet this build — synchronously escalates to run that
// earlier (or optional) phase's action first. The model is single-
// threaded and cooperative: escalation is an ordinary recursive call
// inside the step that missed, never a spawned goroutine. Within one
// non-optional phase, packages are handed to a golang.org/x/sync/errgroup
// whose limit is 1, so at most one action of a phase runs at a time
// (§4.5) and Options.LowResourcesMode does not change the schedule.
package scheduler

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/buildforge/engine/asset"
	"github.com/buildforge/engine/assetgraph"
	"github.com/buildforge/engine/buildstep"
	"github.com/buildforge/engine/forgeerr"
	"github.com/buildforge/engine/options"
	"github.com/buildforge/engine/phase"
	"github.com/buildforge/engine/rw"
)

// Summary is the outcome of one Run.
type Summary struct {
	Results []buildstep.Result
	Failed  bool
}

type builtKey struct {
	Input asset.ID
	Phase int
}

// reverseRule is one (phase, pattern, template) triple used to invert a
// requested output path back to the primary input that would produce
// it, for escalation (§4.5).
type reverseRule struct {
	PhaseIdx int
	Pattern  string
	Template string
}

// Scheduler runs the compiled phase list against a graph and
// ReaderWriter.
type Scheduler struct {
	graph    *assetgraph.Graph
	rw       *rw.ReaderWriter
	packages *asset.PackageGraph
	phases   []phase.Phase
	opts     *options.Options

	builders map[int]phase.Builder
	built    map[builtKey]bool
	running  map[builtKey]bool
	reverse  []reverseRule

	// mu guards builders, built, running, results and errs, which are
	// touched from the errgroup goroutines runInBuildPhase starts (one
	// at a time) as well as from the calling goroutine.
	mu      sync.Mutex
	results []buildstep.Result
	errs    *multierror.Error
}

// New builds a Scheduler over an already-compiled phase list (the
// caller is expected to have run phase.Compile first).
func New(graph *assetgraph.Graph, readerWriter *rw.ReaderWriter, packages *asset.PackageGraph, phases []phase.Phase, opts *options.Options) *Scheduler {
	s := &Scheduler{
		graph:    graph,
		rw:       readerWriter,
		packages: packages,
		phases:   phases,
		opts:     opts,
		builders: map[int]phase.Builder{},
		built:    map[builtKey]bool{},
		running:  map[builtKey]bool{},
	}
	s.indexReverseRules()
	return s
}

func (s *Scheduler) indexReverseRules() {
	for idx, p := range s.phases {
		if p.Kind != phase.KindInBuild {
			continue
		}
		for pattern, templates := range p.InBuild.Extensions {
			for _, tmpl := range templates {
				s.reverse = append(s.reverse, reverseRule{PhaseIdx: idx, Pattern: pattern, Template: tmpl})
			}
		}
	}
}

// Run executes every phase in order. Non-optional in-build phases run
// proactively over every matching primary input; optional phases and
// on-demand earlier-phase dependencies run only when escalation
// demands them (§4.5).
func (s *Scheduler) Run(ctx context.Context) (*Summary, error) {
	for idx, p := range s.phases {
		if err := ctx.Err(); err != nil {
			return s.summary(), err
		}
		switch p.Kind {
		case phase.KindInBuild:
			if p.InBuild.IsOptional {
				continue
			}
			if err := s.runInBuildPhase(ctx, idx); err != nil {
				return s.summary(), err
			}
		case phase.KindPostBuild:
			if err := s.runPostBuildPhase(idx); err != nil {
				return s.summary(), err
			}
		}
	}
	if s.errs != nil && s.errs.Len() > 0 {
		return s.summary(), s.errs.ErrorOrNil()
	}
	return s.summary(), nil
}

func (s *Scheduler) summary() *Summary {
	sum := &Summary{Results: append([]buildstep.Result(nil), s.results...)}
	for _, r := range sum.Results {
		if r.Failed {
			sum.Failed = true
			break
		}
	}
	return sum
}

// runInBuildPhase runs the phase's candidate primary inputs package by
// package, in sorted package-name order, and every input within one
// package sequentially, in deterministic path order. The errgroup's
// limit of 1 keeps at most one action of the phase running at a time.
func (s *Scheduler) runInBuildPhase(ctx context.Context, idx int) error {
	p := s.phases[idx].InBuild
	byPackage := s.candidatesByPackage(p, idx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1)

	pkgNames := make([]string, 0, len(byPackage))
	for name := range byPackage {
		pkgNames = append(pkgNames, name)
	}
	sort.Strings(pkgNames)

	for _, name := range pkgNames {
		inputs := byPackage[name]
		g.Go(func() error {
			for _, in := range inputs {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := s.ensureBuilt(in, idx); err != nil {
					if _, fatal := err.(forgeerr.CannotBuild); fatal {
						return err
					}
					if _, fatal := err.(forgeerr.CycleError); fatal {
						return err
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// candidatesByPackage resolves the primary inputs phase idx applies to,
// grouped by package, in deterministic order. A whole-package builder
// (§3, "$package$") runs once per matching package; a per-asset builder
// runs once per path, taken from the existing source/generated assets
// and from anticipatedPaths, that satisfies both GenerateFor and the
// builder's own Extensions contract.
func (s *Scheduler) candidatesByPackage(p *phase.InBuildPhase, idx int) map[string][]asset.ID {
	out := map[string][]asset.ID{}
	for _, name := range s.packages.Names() {
		if !p.TargetPackageFilter.Matches(name) {
			continue
		}
		if p.WholePackage {
			out[name] = []asset.ID{asset.New(name, "$package$")}
			continue
		}

		seen := map[string]bool{}
		var inputs []asset.ID
		add := func(path string) {
			if seen[path] || !p.GenerateFor.Matches(path) {
				return
			}
			if _, matched := p.Extensions.Match(path); !matched {
				return
			}
			seen[path] = true
			inputs = append(inputs, asset.New(name, path))
		}

		for _, n := range s.graph.All() {
			if n.ID.Package != name || !nodeIsBuildable(n) {
				continue
			}
			add(n.ID.Path)
		}
		for _, path := range s.anticipatedPaths(name, idx) {
			add(path)
		}

		sort.Slice(inputs, func(i, j int) bool { return inputs[i].Path < inputs[j].Path })
		if len(inputs) > 0 {
			out[name] = inputs
		}
	}
	return out
}

// anticipatedPaths forward-simulates every earlier in-build phase's
// buildExtensions against pkg's current buildable assets, so a
// non-optional phase can find the candidates an upstream *optional*
// phase would produce even though it hasn't run yet (§4.5, demand
// propagates from the non-optional tail of a chain). The chain
// a.txt -> a.txt.1 -> a.txt.2 is reconstructed here even when nothing
// but a.txt exists in the graph; ensureBuilt's on-demand escalation
// (via the step's onMiss hook) fills in the missing intermediates once
// the resulting step actually reads its primary input.
func (s *Scheduler) anticipatedPaths(pkg string, idx int) []string {
	frontier := map[string]bool{}
	for _, n := range s.graph.All() {
		if n.ID.Package == pkg && nodeIsBuildable(n) {
			frontier[n.ID.Path] = true
		}
	}

	for j := 0; j < idx; j++ {
		if s.phases[j].Kind != phase.KindInBuild {
			continue
		}
		q := s.phases[j].InBuild
		if q.WholePackage || !q.TargetPackageFilter.Matches(pkg) {
			continue
		}
		next := map[string]bool{}
		for path := range frontier {
			if !q.GenerateFor.Matches(path) {
				continue
			}
			outs, matched := q.Extensions.Match(path)
			if !matched {
				continue
			}
			for _, o := range outs {
				next[o] = true
			}
		}
		for path := range next {
			frontier[path] = true
		}
	}

	paths := make([]string, 0, len(frontier))
	for path := range frontier {
		paths = append(paths, path)
	}
	return paths
}

func nodeIsBuildable(n *assetgraph.Node) bool {
	switch n.Kind {
	case assetgraph.KindSource:
		return true
	case assetgraph.KindGenerated:
		return n.Generated.Result && n.Generated.WasOutput
	default:
		return false
	}
}

// ensureBuilt runs the (primaryInput, phaseIdx) action exactly once per
// build, recursing through escalation as needed. It is the single entry
// point both the proactive phase loop and on-demand escalation share.
func (s *Scheduler) ensureBuilt(primaryInput asset.ID, phaseIdx int) error {
	if phaseIdx < 0 || phaseIdx >= len(s.phases) || s.phases[phaseIdx].Kind != phase.KindInBuild {
		return nil
	}
	key := builtKey{Input: primaryInput, Phase: phaseIdx}

	s.mu.Lock()
	if s.built[key] {
		s.mu.Unlock()
		return nil
	}
	if s.running[key] {
		s.mu.Unlock()
		return forgeerr.CycleError{Path: []string{primaryInput.String()}}
	}
	s.running[key] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, key)
		s.built[key] = true
		s.mu.Unlock()
	}()

	p := s.phases[phaseIdx].InBuild
	if !p.WholePackage {
		if !p.TargetPackageFilter.Matches(primaryInput.Package) || !p.GenerateFor.Matches(primaryInput.Path) {
			return nil
		}
	}
	outputs, matched := p.Extensions.Match(primaryInput.Path)
	if !matched {
		return nil
	}

	builder, err := s.builderFor(phaseIdx)
	if err != nil {
		return err
	}

	outIDs := make([]asset.ID, len(outputs))
	for i, o := range outputs {
		outIDs[i] = asset.New(primaryInput.Package, o)
	}

	step := buildstep.New(s.graph, s.rw, primaryInput, phaseIdx, outIDs, p.HideOutput, nil)
	step.SetOnMiss(func(id asset.ID) { s.escalate(id, phaseIdx) })

	res := buildstep.Run(step, p.BuilderKey, builder)

	s.mu.Lock()
	s.results = append(s.results, res)
	if res.Failed {
		s.errs = multierror.Append(s.errs, res.Err)
	}
	s.mu.Unlock()

	return nil
}

// escalate looks for an earlier (or optional) phase whose declared
// output templates could have produced id, and runs its action for the
// implied primary input if it has not already produced an output
// (§4.5). Errors are aggregated rather than propagated to the caller: a
// read that still misses after escalation simply surfaces AssetNotFound
// to the builder, the normal behavior for a genuinely absent asset.
func (s *Scheduler) escalate(id asset.ID, requestingPhase int) {
	for _, rule := range s.reverse {
		if rule.PhaseIdx >= requestingPhase {
			continue
		}
		inputPath, ok := phase.ReverseMatch(rule.Pattern, rule.Template, id.Path)
		if !ok {
			continue
		}
		primaryInput := asset.New(id.Package, inputPath)
		if err := s.ensureBuilt(primaryInput, rule.PhaseIdx); err != nil {
			s.mu.Lock()
			s.errs = multierror.Append(s.errs, err)
			s.mu.Unlock()
		}
	}
}

func (s *Scheduler) builderFor(phaseIdx int) (phase.Builder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.builders[phaseIdx]; ok {
		return b, nil
	}
	p := s.phases[phaseIdx].InBuild
	b, err := p.Factory(p.Options)
	if err != nil {
		return nil, forgeerr.CannotBuild{Reason: err.Error()}
	}
	s.builders[phaseIdx] = b
	return b, nil
}

// runPostBuildPhase runs every post-process action against every source
// asset it applies to, recording a postProcessAnchor node per
// (source, action) pair (§3, §4.2).
func (s *Scheduler) runPostBuildPhase(idx int) error {
	post := s.phases[idx].PostBuild
	for _, action := range post.Actions {
		for _, n := range s.graph.All() {
			if n.Kind != assetgraph.KindSource {
				continue
			}
			if !action.AppliesTo.Matches(n.ID.Path) {
				continue
			}
			if err := s.runPostProcessAction(idx, action, n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scheduler) runPostProcessAction(phaseIdx int, action phase.PostProcessAction, source asset.ID) error {
	anchorID := asset.New(source.Package, "$postprocess$"+action.Key+"$"+source.Path)
	if !s.graph.Contains(anchorID) {
		s.graph.Add(assetgraph.NewAnchor(anchorID, source, action.Key))
	}

	step := buildstep.NewPostProcess(s.graph, s.rw, source, phaseIdx)
	outputs, err := buildstep.RunPostProcess(step, action.Run)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		wrapped := forgeerr.BuilderFailure{Builder: action.Key, Input: source.String(), Cause: err}
		s.errs = multierror.Append(s.errs, wrapped)
		s.results = append(s.results, buildstep.Result{Input: source, Failed: true, Err: wrapped})
		return nil
	}
	s.graph.UpdatePostProcessBuildStep(anchorID, outputs)
	s.results = append(s.results, buildstep.Result{Input: source, Outputs: outputs})
	return nil
}
